// Package tts drives a text-to-speech interface hosted by a standalone
// synthesis service: engine construction, speaker profiles and generation.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/voice-bootstrap/internal/tts/audio"
)

// API endpoints and paths.
const (
	apiHealth         = "/health"
	apiInterfaces     = "/v1/interfaces"
	apiSpeakersSuffix = "/speakers"
	apiGenerateSuffix = "/generate"
	formFieldFile     = "file"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

// Error messages.
const (
	errFmtServiceErrorWithCode = "%w (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "%w: non-OK status %s, body: %s"
	errFmtUnexpectedType       = "%w: expected %s, got %q"
	errFmtSendRequest          = "failed to send request to synthesis service at %s: %w"
)

var (
	// ErrService is wrapped by every error the service reports.
	ErrService = errors.New("synthesis service error")
	// ErrUnexpectedContentType is returned when a response has the wrong media type.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrEmptyAudio is returned when the service answers with no audio.
	ErrEmptyAudio = errors.New("received empty audio data")
	// ErrEmptyInterfaceID is returned when the service does not name the new interface.
	ErrEmptyInterfaceID = errors.New("service returned an empty interface id")
	// ErrEmptySpeaker is returned when the service returns no speaker profile.
	ErrEmptySpeaker = errors.New("service returned an empty speaker profile")
)

// ModelConfig describes the engine the service should construct.
type ModelConfig struct {
	ModelPath             string            `json:"model_path"`
	TokenizerPath         string            `json:"tokenizer_path"`
	InterfaceVersion      int               `json:"interface_version"`
	Backend               string            `json:"backend"`
	Device                string            `json:"device"`
	DType                 string            `json:"dtype"`
	AdditionalModelConfig map[string]any    `json:"additional_model_config,omitempty"`
	Environment           map[string]string `json:"environment,omitempty"`
}

// SamplerConfig holds the sampling parameters of a generation.
type SamplerConfig struct {
	Temperature float64 `json:"temperature"`
}

// GenerationConfig is one generation request.
type GenerationConfig struct {
	Text                string         `json:"text"`
	GenerationType      string         `json:"generation_type"`
	Speaker             SpeakerProfile `json:"speaker"`
	Sampler             SamplerConfig  `json:"sampler_config"`
	AdditionalGenConfig map[string]any `json:"additional_gen_config,omitempty"`
}

// ErrorResponse is the structured error body of the service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

type createInterfaceResponse struct {
	InterfaceID string `json:"interface_id"`
}

// HTTPClient talks to the synthesis service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient creates a client for the service at baseURL, for example
// "http://localhost:8000". The timeout applies to every request; zero means none.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// HealthCheck verifies that the service is up.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check failed with status: %s", ErrService, resp.Status)
	}

	return nil
}

// CreateInterface asks the service to construct an engine and returns a handle to it.
func (c *HTTPClient) CreateInterface(ctx context.Context, cfg ModelConfig) (*Interface, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal model config: %w", err)
	}

	resp, err := c.post(ctx, apiInterfaces, contentTypeJSON, contentTypeJSON, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var created createInterfaceResponse

	err = json.NewDecoder(resp.Body).Decode(&created)
	if err != nil {
		return nil, fmt.Errorf("failed to decode interface response: %w", err)
	}

	if created.InterfaceID == "" {
		return nil, ErrEmptyInterfaceID
	}

	return &Interface{client: c, ID: created.InterfaceID}, nil
}

func (c *HTTPClient) post(
	ctx context.Context,
	path, contentType, accept string,
	body io.Reader,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(headerContentType, contentType)
	req.Header.Set(headerAccept, accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtSendRequest, c.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		return nil, parseErrorResponse(resp)
	}

	err = checkMediaType(resp, accept)
	if err != nil {
		resp.Body.Close()

		return nil, err
	}

	return resp, nil
}

// Interface is an engine constructed on the service.
type Interface struct {
	client *HTTPClient
	ID     string
}

// CreateSpeaker uploads a reference recording and returns the speaker profile
// the service derives from it. The file is checked locally before upload.
func (i *Interface) CreateSpeaker(ctx context.Context, path string) (SpeakerProfile, error) {
	_, err := audio.InspectFile(path)
	if err != nil {
		return nil, fmt.Errorf("invalid speaker reference: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read speaker reference %s: %w", path, err)
	}

	var body bytes.Buffer

	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile(formFieldFile, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	_, err = part.Write(data)
	if err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}

	err = form.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	resp, err := i.client.post(ctx, i.path(apiSpeakersSuffix), form.FormDataContentType(), contentTypeJSON, &body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speaker profile: %w", err)
	}

	profile := SpeakerProfile(bytes.TrimSpace(raw))

	err = profile.Validate()
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// Generate runs one generation and returns the WAV bytes.
func (i *Interface) Generate(ctx context.Context, cfg GenerationConfig) ([]byte, error) {
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation config: %w", err)
	}

	resp, err := i.client.post(ctx, i.path(apiGenerateSuffix), contentTypeJSON, contentTypeWAV, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

func (i *Interface) path(suffix string) string {
	return apiInterfaces + "/" + url.PathEscape(i.ID) + suffix
}

func checkMediaType(resp *http.Response, expected string) error {
	header := resp.Header.Get(headerContentType)

	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil || mediaType != expected {
		return fmt.Errorf(errFmtUnexpectedType, ErrUnexpectedContentType, expected, header)
	}

	return nil
}

// parseErrorResponse decodes a structured error and falls back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, ErrService, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, ErrService, resp.Status, strings.TrimSpace(string(body)))
}
