package tts_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/book-expert/voice-bootstrap/internal/tts"
	"github.com/book-expert/voice-bootstrap/internal/tts/audio"
	"github.com/stretchr/testify/require"
)

const (
	testInterfaceID = "iface-1"
	testSpeakerJSON = `{"codes": [1, 2, 3], "transcript": "reference"}`
)

// received is what the fake service saw.
type received struct {
	modelConfigs []tts.ModelConfig
	generations  []tts.GenerationConfig
	uploads      []string
	uploadSizes  []int
}

// fakeService mimics the synthesis service.
type fakeService struct {
	mu   sync.Mutex
	wav  []byte
	seen received
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("POST /v1/interfaces", func(w http.ResponseWriter, r *http.Request) {
		var cfg tts.ModelConfig

		err := json.NewDecoder(r.Body).Decode(&cfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		f.mu.Lock()
		f.seen.modelConfigs = append(f.seen.modelConfigs, cfg)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"interface_id": "`+testInterfaceID+`"}`)
	})

	mux.HandleFunc("POST /v1/interfaces/{id}/speakers", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}
		defer file.Close()

		data, _ := io.ReadAll(file)

		f.mu.Lock()
		f.seen.uploads = append(f.seen.uploads, r.PathValue("id")+"/"+header.Filename)
		f.seen.uploadSizes = append(f.seen.uploadSizes, len(data))
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = io.WriteString(w, testSpeakerJSON)
	})

	mux.HandleFunc("POST /v1/interfaces/{id}/generate", func(w http.ResponseWriter, r *http.Request) {
		var cfg tts.GenerationConfig

		err := json.NewDecoder(r.Body).Decode(&cfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		f.mu.Lock()
		f.seen.generations = append(f.seen.generations, cfg)
		clip := f.wav
		f.mu.Unlock()

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(clip)
	})

	return mux
}

// setWAV replaces the clip returned by generate.
func (f *fakeService) setWAV(clip []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.wav = clip
}

func (f *fakeService) snapshot() received {
	f.mu.Lock()
	defer f.mu.Unlock()

	return received{
		modelConfigs: append([]tts.ModelConfig(nil), f.seen.modelConfigs...),
		generations:  append([]tts.GenerationConfig(nil), f.seen.generations...),
		uploads:      append([]string(nil), f.seen.uploads...),
		uploadSizes:  append([]int(nil), f.seen.uploadSizes...),
	}
}

func newFakeService(t *testing.T) (*fakeService, *httptest.Server) {
	t.Helper()

	service := &fakeService{wav: readWAV(t, writeWAV(t, t.TempDir(), "generated.wav", 24000))}

	server := httptest.NewServer(service.handler(t))
	t.Cleanup(server.Close)

	return service, server
}

// writeWAV writes a mono 24 kHz silent clip with the given number of samples.
func writeWAV(t *testing.T, dir, name string, samples int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, audio.WriteFile(path, audio.Silence(samples, 1), 24000, 1))

	return path
}

func readWAV(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return data
}
