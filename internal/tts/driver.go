package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-bootstrap/internal/config"
	"github.com/book-expert/voice-bootstrap/internal/fsutil"
	"github.com/book-expert/voice-bootstrap/internal/tts/audio"
	"github.com/book-expert/voice-bootstrap/internal/tts/text"
)

// Keys of the additional model and generation settings.
const (
	configKeyDeviceMap = "device_map"
	configKeyUseCache  = "use_cache"
)

const (
	logFmtInterfaceCreated = "Created synthesis interface %s for model %s on %s"
	logFmtSpeakerLoaded    = "Loaded speaker profile from %s"
	logFmtSpeakerCreated   = "Created speaker profile from %s"
	logFmtSpeakerSaved     = "Saved speaker profile to %s"
	logFmtGenerated        = "Generated %s of audio (%s)"
)

// ErrNotPrepared is returned by Synthesize before Prepare has succeeded.
var ErrNotPrepared = errors.New("voice driver is not prepared")

// Result describes the clip written by Run.
type Result struct {
	Path string
	Info audio.Info
}

// Driver runs the voice pipeline against the synthesis service.
type Driver struct {
	client  *HTTPClient
	cfg     config.VoiceConfig
	log     *logger.Logger
	iface   *Interface
	speaker SpeakerProfile
}

// NewDriver creates a driver. Prepare must be called before Synthesize.
func NewDriver(client *HTTPClient, cfg config.VoiceConfig, log *logger.Logger) *Driver {
	return &Driver{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// ModelConfig returns the engine settings sent to the service. env holds the
// bootstrap variables the engine process should run with.
func (d *Driver) ModelConfig(env map[string]string) ModelConfig {
	return ModelConfig{
		ModelPath:        d.cfg.ModelPath,
		TokenizerPath:    d.cfg.TokenizerPath,
		InterfaceVersion: d.cfg.InterfaceVersion,
		Backend:          d.cfg.Backend,
		Device:           d.cfg.Device,
		DType:            d.cfg.DType,
		AdditionalModelConfig: map[string]any{
			configKeyDeviceMap: d.cfg.DeviceMap,
		},
		Environment: env,
	}
}

// Prepare checks the service, constructs the engine and obtains the speaker
// profile. A cached profile is reused when the cache file exists.
func (d *Driver) Prepare(ctx context.Context, env map[string]string) error {
	err := d.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("synthesis service health check failed: %w", err)
	}

	iface, err := d.client.CreateInterface(ctx, d.ModelConfig(env))
	if err != nil {
		return fmt.Errorf("failed to create interface: %w", err)
	}

	d.log.Info(logFmtInterfaceCreated, iface.ID, d.cfg.ModelPath, d.cfg.Device)

	speaker, err := d.speakerProfile(ctx, iface)
	if err != nil {
		return err
	}

	d.iface = iface
	d.speaker = speaker

	return nil
}

func (d *Driver) speakerProfile(ctx context.Context, iface *Interface) (SpeakerProfile, error) {
	cache := d.cfg.SpeakerCache

	if cache != "" {
		exists, err := fileExists(cache)
		if err != nil {
			return nil, err
		}

		if exists {
			profile, err := LoadSpeaker(cache)
			if err != nil {
				return nil, fmt.Errorf("failed to load speaker cache: %w", err)
			}

			d.log.Info(logFmtSpeakerLoaded, cache)

			return profile, nil
		}
	}

	profile, err := iface.CreateSpeaker(ctx, d.cfg.SpeakerFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create speaker: %w", err)
	}

	d.log.Info(logFmtSpeakerCreated, d.cfg.SpeakerFile)

	if cache != "" {
		err = SaveSpeaker(cache, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to save speaker cache: %w", err)
		}

		d.log.Info(logFmtSpeakerSaved, cache)
	}

	return profile, nil
}

// Synthesize generates speech for input with the prepared speaker. A
// non-positive temperature selects the configured default.
func (d *Driver) Synthesize(ctx context.Context, input string, temperature float64) ([]byte, error) {
	if d.iface == nil {
		return nil, ErrNotPrepared
	}

	normalized, err := text.Normalize(input)
	if err != nil {
		return nil, err
	}

	if temperature <= 0 {
		temperature = d.cfg.Temperature
	}

	wavData, err := d.iface.Generate(ctx, GenerationConfig{
		Text:           normalized,
		GenerationType: d.cfg.GenerationType,
		Speaker:        d.speaker,
		Sampler:        SamplerConfig{Temperature: temperature},
		AdditionalGenConfig: map[string]any{
			configKeyUseCache: d.cfg.UseCache,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	info, err := audio.InspectBytes(wavData)
	if err != nil {
		return nil, fmt.Errorf("service returned unusable audio: %w", err)
	}

	d.log.Info(logFmtGenerated, fsutil.FormatDuration(info.Duration), fsutil.FormatFileSize(info.Size))

	return wavData, nil
}

// Run prepares the engine, synthesizes the configured text and writes the
// clip to the configured output path.
func (d *Driver) Run(ctx context.Context, env map[string]string) (Result, []byte, error) {
	err := d.Prepare(ctx, env)
	if err != nil {
		return Result{}, nil, err
	}

	wavData, err := d.Synthesize(ctx, d.cfg.Text, d.cfg.Temperature)
	if err != nil {
		return Result{}, nil, err
	}

	err = fsutil.EnsureDir(filepath.Dir(d.cfg.OutputPath))
	if err != nil {
		return Result{}, nil, err
	}

	err = os.WriteFile(d.cfg.OutputPath, wavData, filePermissions)
	if err != nil {
		return Result{}, nil, fmt.Errorf("failed to write %s: %w", d.cfg.OutputPath, err)
	}

	info, err := audio.InspectFile(d.cfg.OutputPath)
	if err != nil {
		return Result{}, nil, err
	}

	return Result{Path: d.cfg.OutputPath, Info: info}, wavData, nil
}
