// Package config_test tests the configuration loading for the bootstrap tools.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voice-bootstrap/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlData = `
[toolkit]
root = ""
candidates = ["/opt/cuda-12.6", "/opt/cuda-12.1"]
cache_dir = "kernel_cache"
visible_devices = "1"

[verify]
python = "/usr/bin/python3.11"
device_backend = "nvidia-smi"
speech_backend = "python"
speech_model = "base"
timeout_seconds = 30

[voice]
service_url = "http://tts:8000"
speaker_file = "voices/me.wav"
temperature = 0.7
output_path = "out/clip.wav"

[nats]
url = "nats://127.0.0.1:4222"
audio_object_store_bucket = "AUDIO"
`

func TestUnmarshalConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	err := toml.Unmarshal([]byte(tomlData), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"/opt/cuda-12.6", "/opt/cuda-12.1"}, cfg.Toolkit.Candidates)
	assert.Equal(t, "kernel_cache", cfg.Toolkit.CacheDir)
	assert.Equal(t, "1", cfg.Toolkit.VisibleDevices)
	assert.Equal(t, config.DeviceBackendNvidiaSMI, cfg.Verify.DeviceBackend)
	assert.Equal(t, "base", cfg.Verify.SpeechModel)
	assert.Equal(t, 30, cfg.Verify.TimeoutSeconds)
	assert.Equal(t, "http://tts:8000", cfg.Voice.ServiceURL)
	assert.InEpsilon(t, 0.7, cfg.Voice.Temperature, 0.001)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "AUDIO", cfg.NATS.AudioObjectStoreBucket)

	// Keys missing from the file keep their defaults.
	assert.Equal(t, "OuteAI/Llama-OuteTTS-1.0-1B", cfg.Voice.ModelPath)
	assert.Equal(t, "chunked", cfg.Voice.GenerationType)
	assert.True(t, cfg.Voice.UseCache)
	assert.Equal(t, "--version", cfg.Toolkit.VersionFlag)
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateVoice())
	assert.Equal(t, "0", cfg.Toolkit.VisibleDevices)
	assert.Equal(t, "triton_cache", cfg.Toolkit.CacheDir)
	assert.InEpsilon(t, 0.4, cfg.Voice.Temperature, 0.001)
	assert.Equal(t, 3, cfg.Voice.InterfaceVersion)
	assert.Equal(t, "float16", cfg.Voice.DType)
	assert.Equal(t, "auto", cfg.Voice.DeviceMap)
	assert.Equal(t, "test_output.wav", cfg.Voice.OutputPath)
	assert.Empty(t, cfg.NATS.URL)
}

func TestDefaultCandidates(t *testing.T) {
	t.Parallel()

	windows := config.DefaultCandidates("windows")
	require.Len(t, windows, 3)
	assert.Contains(t, windows[0], `v12.6`)
	assert.Contains(t, windows[2], `v12.1`)

	linux := config.DefaultCandidates("linux")
	require.NotEmpty(t, linux)
	assert.Equal(t, "/usr/local/cuda-12.6", linux[0])
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlData), 0o600))

	t.Setenv("CUDA_PATH", "/env/cuda")
	t.Setenv("VOICE_TTS_URL", "http://override:9000")

	cfg, err := config.Load(path, false, nil)
	require.NoError(t, err)

	assert.Equal(t, "/env/cuda", cfg.Toolkit.Root)
	assert.Equal(t, "http://override:9000", cfg.Voice.ServiceURL)
	assert.Equal(t, "kernel_cache", cfg.Toolkit.CacheDir)
}

func TestLoad_IgnoresInheritedToolkitVariables(t *testing.T) {
	for _, key := range []string{"TOOLKIT_VISIBLE_DEVICES", "TOOLKIT_CACHE_DIR"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	t.Setenv("CUDA_VISIBLE_DEVICES", "3")
	t.Setenv("TRITON_CACHE_DIR", "/inherited/cache")

	cfg, err := config.Load("", false, nil)
	require.NoError(t, err)

	assert.Equal(t, config.Default().Toolkit.VisibleDevices, cfg.Toolkit.VisibleDevices)
	assert.Equal(t, config.Default().Toolkit.CacheDir, cfg.Toolkit.CacheDir)

	t.Setenv("TOOLKIT_VISIBLE_DEVICES", "1")
	t.Setenv("TOOLKIT_CACHE_DIR", "/override/cache")

	cfg, err = config.Load("", false, nil)
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.Toolkit.VisibleDevices)
	assert.Equal(t, "/override/cache", cfg.Toolkit.CacheDir)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"), false, nil)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr error
		voice   bool
	}{
		{
			name:    "empty cache dir",
			mutate:  func(cfg *config.Config) { cfg.Toolkit.CacheDir = "" },
			wantErr: config.ErrCacheDirEmpty,
		},
		{
			name:    "unknown device backend",
			mutate:  func(cfg *config.Config) { cfg.Verify.DeviceBackend = "opencl" },
			wantErr: config.ErrUnknownDeviceBackend,
		},
		{
			name:    "unknown speech backend",
			mutate:  func(cfg *config.Config) { cfg.Verify.SpeechBackend = "remote" },
			wantErr: config.ErrUnknownSpeechBackend,
		},
		{
			name:    "negative verify timeout",
			mutate:  func(cfg *config.Config) { cfg.Verify.TimeoutSeconds = -1 },
			wantErr: config.ErrTimeoutNegative,
		},
		{
			name:    "negative temperature",
			mutate:  func(cfg *config.Config) { cfg.Voice.Temperature = -0.1 },
			wantErr: config.ErrTemperatureRange,
			voice:   true,
		},
		{
			name:    "missing speaker",
			mutate:  func(cfg *config.Config) { cfg.Voice.SpeakerFile = "" },
			wantErr: config.ErrSpeakerFileEmpty,
			voice:   true,
		},
		{
			name:    "missing service url",
			mutate:  func(cfg *config.Config) { cfg.Voice.ServiceURL = "" },
			wantErr: config.ErrServiceURLEmpty,
			voice:   true,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			testCase.mutate(cfg)

			var err error
			if testCase.voice {
				err = cfg.ValidateVoice()
			} else {
				err = cfg.Validate()
			}

			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}
