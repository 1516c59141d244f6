package tts_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-bootstrap/internal/config"
	"github.com/book-expert/voice-bootstrap/internal/tts"
	"github.com/book-expert/voice-bootstrap/internal/tts/audio"
	"github.com/book-expert/voice-bootstrap/internal/tts/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "tts-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func voiceConfig(t *testing.T, serviceURL string) config.VoiceConfig {
	t.Helper()

	dir := t.TempDir()

	cfg := config.Default().Voice
	cfg.ServiceURL = serviceURL
	cfg.SpeakerFile = writeWAV(t, dir, "CleanedUpVoiceShort.wav", 12000)
	cfg.OutputPath = filepath.Join(dir, "out", "test_output.wav")

	return cfg
}

func TestDriver_Run(t *testing.T) {
	t.Parallel()

	service, server := newFakeService(t)
	cfg := voiceConfig(t, server.URL)
	env := map[string]string{"CUDA_VISIBLE_DEVICES": "0", "TRITON_CACHE_DIR": "/tmp/triton_cache"}

	driver := tts.NewDriver(tts.NewHTTPClient(cfg.ServiceURL, 5*time.Second), cfg, newTestLogger(t))

	result, wavData, err := driver.Run(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, cfg.OutputPath, result.Path)
	assert.Equal(t, time.Second, result.Info.Duration)
	assert.Equal(t, 24000, result.Info.SampleRate)

	written, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, wavData, written)

	seen := service.snapshot()

	require.Len(t, seen.modelConfigs, 1)
	model := seen.modelConfigs[0]
	assert.Equal(t, "OuteAI/Llama-OuteTTS-1.0-1B", model.ModelPath)
	assert.Equal(t, "OuteAI/Llama-OuteTTS-1.0-1B", model.TokenizerPath)
	assert.Equal(t, 3, model.InterfaceVersion)
	assert.Equal(t, "HF", model.Backend)
	assert.Equal(t, "cuda", model.Device)
	assert.Equal(t, "float16", model.DType)
	assert.Equal(t, "auto", model.AdditionalModelConfig["device_map"])
	assert.Equal(t, env, model.Environment)

	require.Len(t, seen.uploads, 1)
	assert.Equal(t, testInterfaceID+"/CleanedUpVoiceShort.wav", seen.uploads[0])

	require.Len(t, seen.generations, 1)
	generation := seen.generations[0]
	assert.Equal(t, cfg.Text, generation.Text)
	assert.Equal(t, "chunked", generation.GenerationType)
	assert.InDelta(t, 0.4, generation.Sampler.Temperature, 1e-9)
	assert.Equal(t, true, generation.AdditionalGenConfig["use_cache"])
	assert.JSONEq(t, testSpeakerJSON, string(generation.Speaker))
}

func TestDriver_SpeakerCacheReuse(t *testing.T) {
	t.Parallel()

	service, server := newFakeService(t)
	cfg := voiceConfig(t, server.URL)
	cfg.SpeakerCache = filepath.Join(t.TempDir(), "speaker.json")
	log := newTestLogger(t)

	first := tts.NewDriver(tts.NewHTTPClient(cfg.ServiceURL, 5*time.Second), cfg, log)
	require.NoError(t, first.Prepare(context.Background(), nil))

	cached, err := tts.LoadSpeaker(cfg.SpeakerCache)
	require.NoError(t, err)
	assert.JSONEq(t, testSpeakerJSON, string(cached))

	second := tts.NewDriver(tts.NewHTTPClient(cfg.ServiceURL, 5*time.Second), cfg, log)
	require.NoError(t, second.Prepare(context.Background(), nil))

	seen := service.snapshot()
	assert.Len(t, seen.modelConfigs, 2)
	assert.Len(t, seen.uploads, 1, "the second run reuses the cached profile")
}

func TestDriver_Synthesize(t *testing.T) {
	t.Parallel()

	service, server := newFakeService(t)
	cfg := voiceConfig(t, server.URL)

	driver := tts.NewDriver(tts.NewHTTPClient(cfg.ServiceURL, 5*time.Second), cfg, newTestLogger(t))

	_, err := driver.Synthesize(context.Background(), "Hello.", 0)
	require.ErrorIs(t, err, tts.ErrNotPrepared)

	require.NoError(t, driver.Prepare(context.Background(), nil))

	_, err = driver.Synthesize(context.Background(), "  \n ", 0)
	require.ErrorIs(t, err, text.ErrTextEmpty)

	_, err = driver.Synthesize(context.Background(), "Chapter one…  It begins—quietly.", 0)
	require.NoError(t, err)

	_, err = driver.Synthesize(context.Background(), "Chapter two.", 0.9)
	require.NoError(t, err)

	seen := service.snapshot()
	require.Len(t, seen.generations, 2)
	assert.Equal(t, "Chapter one... It begins - quietly.", seen.generations[0].Text)
	assert.InDelta(t, 0.4, seen.generations[0].Sampler.Temperature, 1e-9)
	assert.InDelta(t, 0.9, seen.generations[1].Sampler.Temperature, 1e-9)
}

func TestDriver_Run_RejectsEmptyClip(t *testing.T) {
	t.Parallel()

	service, server := newFakeService(t)
	service.setWAV(readWAV(t, writeWAV(t, t.TempDir(), "empty.wav", 0)))
	cfg := voiceConfig(t, server.URL)

	driver := tts.NewDriver(tts.NewHTTPClient(cfg.ServiceURL, 5*time.Second), cfg, newTestLogger(t))

	_, _, err := driver.Run(context.Background(), nil)
	require.ErrorIs(t, err, audio.ErrNoAudio)
	assert.NoFileExists(t, cfg.OutputPath)
}

func TestDriver_Prepare_ServiceDown(t *testing.T) {
	t.Parallel()

	_, server := newFakeService(t)
	cfg := voiceConfig(t, server.URL)
	server.Close()

	driver := tts.NewDriver(tts.NewHTTPClient(cfg.ServiceURL, time.Second), cfg, newTestLogger(t))

	_, _, err := driver.Run(context.Background(), nil)
	require.Error(t, err)

	_, statErr := os.Stat(cfg.OutputPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestSpeakerProfile_SaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "speaker.json")

	require.NoError(t, tts.SaveSpeaker(path, tts.SpeakerProfile(testSpeakerJSON)))

	loaded, err := tts.LoadSpeaker(path)
	require.NoError(t, err)
	assert.JSONEq(t, testSpeakerJSON, string(loaded))

	require.ErrorIs(t, tts.SaveSpeaker(path, nil), tts.ErrEmptySpeaker)
	require.ErrorIs(t, tts.SaveSpeaker(path, tts.SpeakerProfile(`[1, 2]`)), tts.ErrInvalidSpeaker)

	require.NoError(t, os.WriteFile(path, []byte("null"), 0o600))

	_, err = tts.LoadSpeaker(path)
	require.ErrorIs(t, err, tts.ErrInvalidSpeaker)
}
