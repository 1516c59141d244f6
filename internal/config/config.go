// Package config provides the configuration structure for the bootstrap tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Backend names accepted by the verifier.
const (
	DeviceBackendTorch     = "torch"
	DeviceBackendNvidiaSMI = "nvidia-smi"
	SpeechBackendPython    = "python"
	SpeechBackendNative    = "native"
)

const osWindows = "windows"

var (
	// ErrCacheDirEmpty indicates that no cache directory was configured.
	ErrCacheDirEmpty = errors.New("toolkit cache_dir cannot be empty")
	// ErrUnknownDeviceBackend indicates an unsupported verify.device_backend.
	ErrUnknownDeviceBackend = errors.New("unknown device backend")
	// ErrUnknownSpeechBackend indicates an unsupported verify.speech_backend.
	ErrUnknownSpeechBackend = errors.New("unknown speech backend")
	// ErrServiceURLEmpty indicates that the synthesis service URL is missing.
	ErrServiceURLEmpty = errors.New("voice service_url cannot be empty")
	// ErrModelPathEmpty indicates that the synthesis model is missing.
	ErrModelPathEmpty = errors.New("voice model_path cannot be empty")
	// ErrSpeakerFileEmpty indicates that no reference sample was configured.
	ErrSpeakerFileEmpty = errors.New("voice speaker_file cannot be empty")
	// ErrOutputPathEmpty indicates that no output file was configured.
	ErrOutputPathEmpty = errors.New("voice output_path cannot be empty")
	// ErrTemperatureRange indicates a negative sampling temperature.
	ErrTemperatureRange = errors.New("temperature must be >= 0.0")
	// ErrTimeoutNegative indicates a negative timeout.
	ErrTimeoutNegative = errors.New("timeout_seconds must be non-negative")
)

// ToolkitConfig controls how the GPU toolkit is located and exported.
type ToolkitConfig struct {
	// Root is a pre-set installation path. When set it is trusted without checks.
	Root string `toml:"root" env:"CUDA_PATH"`
	// Candidates are scanned in order when Root is empty; list newest first.
	Candidates []string `toml:"candidates"`
	// CacheDir is the kernel compiler cache directory, created on demand.
	CacheDir string `toml:"cache_dir" env:"TOOLKIT_CACHE_DIR"`
	// VisibleDevices pins the accelerator index exposed to child processes.
	// An inherited CUDA_VISIBLE_DEVICES is ignored; override it with
	// TOOLKIT_VISIBLE_DEVICES.
	VisibleDevices string `toml:"visible_devices" env:"TOOLKIT_VISIBLE_DEVICES"`
	// VersionFlag is passed to the compiler binary.
	VersionFlag string `toml:"version_flag"`
}

// VerifyConfig controls the capability checks.
type VerifyConfig struct {
	Python          string `toml:"python" env:"VERIFY_PYTHON"`
	DeviceBackend   string `toml:"device_backend" env:"VERIFY_DEVICE_BACKEND"`
	SpeechBackend   string `toml:"speech_backend" env:"VERIFY_SPEECH_BACKEND"`
	SpeechModule    string `toml:"speech_module"`
	SpeechModel     string `toml:"speech_model"`
	NativeModelPath string `toml:"native_model_path" env:"WHISPER_MODEL_PATH"`
	Device          string `toml:"device"`
	KernelModule    string `toml:"kernel_module"`
	// TimeoutSeconds bounds each probe subprocess. Zero waits indefinitely.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// VoiceConfig holds every constant of the voice synthesis pipeline.
type VoiceConfig struct {
	ServiceURL       string  `toml:"service_url" env:"VOICE_TTS_URL"`
	ModelPath        string  `toml:"model_path"`
	TokenizerPath    string  `toml:"tokenizer_path"`
	InterfaceVersion int     `toml:"interface_version"`
	Backend          string  `toml:"backend"`
	Device           string  `toml:"device"`
	DType            string  `toml:"dtype"`
	DeviceMap        string  `toml:"device_map"`
	SpeakerFile      string  `toml:"speaker_file" env:"VOICE_SPEAKER_FILE"`
	SpeakerCache     string  `toml:"speaker_cache"`
	Text             string  `toml:"text" env:"VOICE_TEXT"`
	GenerationType   string  `toml:"generation_type"`
	Temperature      float64 `toml:"temperature"`
	UseCache         bool    `toml:"use_cache"`
	OutputPath       string  `toml:"output_path" env:"VOICE_OUTPUT_PATH"`
	TimeoutSeconds   int     `toml:"timeout_seconds"`
}

// NATSConfig holds the configuration for NATS. An empty URL disables publishing.
type NATSConfig struct {
	URL                      string `toml:"url" env:"NATS_URL"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
	TextObjectStoreBucket    string `toml:"text_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir" env:"BASE_LOGS_DIR"`
}

// Config is the root configuration structure.
type Config struct {
	Toolkit ToolkitConfig `toml:"toolkit"`
	Verify  VerifyConfig  `toml:"verify"`
	Voice   VoiceConfig   `toml:"voice"`
	NATS    NATSConfig    `toml:"nats"`
	Paths   PathsConfig   `toml:"paths"`
}

// Default returns the built-in configuration for the current platform.
func Default() *Config {
	return &Config{
		Toolkit: ToolkitConfig{
			Root:           "",
			Candidates:     DefaultCandidates(runtime.GOOS),
			CacheDir:       "triton_cache",
			VisibleDevices: "0",
			VersionFlag:    "--version",
		},
		Verify: VerifyConfig{
			Python:          defaultPython(runtime.GOOS),
			DeviceBackend:   DeviceBackendTorch,
			SpeechBackend:   SpeechBackendPython,
			SpeechModule:    "whisper",
			SpeechModel:     "tiny",
			NativeModelPath: "models/ggml-tiny.bin",
			Device:          "cuda",
			KernelModule:    "triton",
			TimeoutSeconds:  0,
		},
		Voice: VoiceConfig{
			ServiceURL:       "http://127.0.0.1:8000",
			ModelPath:        "OuteAI/Llama-OuteTTS-1.0-1B",
			TokenizerPath:    "OuteAI/Llama-OuteTTS-1.0-1B",
			InterfaceVersion: 3,
			Backend:          "HF",
			Device:           "cuda",
			DType:            "float16",
			DeviceMap:        "auto",
			SpeakerFile:      "CleanedUpVoiceShort.wav",
			SpeakerCache:     "",
			Text: "Hey, I hope you have a wonderful day. I'm a voice assistant created by OuteAI. " +
				"I'm here to help you with your questions and tasks.",
			GenerationType: "chunked",
			Temperature:    0.4,
			UseCache:       true,
			OutputPath:     "test_output.wav",
			TimeoutSeconds: 600,
		},
		NATS: NATSConfig{
			URL:                      "",
			TextProcessedSubject:     "text.processed",
			AudioChunkCreatedSubject: "audio.chunk.created",
			AudioObjectStoreBucket:   "AUDIO_FILES",
			TextObjectStoreBucket:    "TEXT_FILES",
		},
		Paths: PathsConfig{
			BaseLogsDir: os.TempDir(),
		},
	}
}

// DefaultCandidates lists the toolkit installation directories for goos, newest first.
func DefaultCandidates(goos string) []string {
	if goos == osWindows {
		return []string{
			`C:\Program Files\NVIDIA GPU Computing Toolkit\CUDA\v12.6`,
			`C:\Program Files\NVIDIA GPU Computing Toolkit\CUDA\v12.5`,
			`C:\Program Files\NVIDIA GPU Computing Toolkit\CUDA\v12.1`,
		}
	}

	return []string{
		"/usr/local/cuda-12.6",
		"/usr/local/cuda-12.5",
		"/usr/local/cuda-12.1",
		"/usr/local/cuda",
		"/opt/cuda",
	}
}

func defaultPython(goos string) string {
	if goos == osWindows {
		return "python"
	}

	return "python3"
}

// Load builds the configuration. Defaults are overlaid with the central project
// configuration when central is true, then with the TOML file at path when path is
// non-empty, and finally with environment variables.
func Load(path string, central bool, log *logger.Logger) (*Config, error) {
	cfg := Default()

	if central {
		err := configurator.Load(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
		}
	}

	if path != "" {
		err := decodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
	}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	err = toml.Unmarshal(data, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// Validate checks the settings shared by both tools.
func (c *Config) Validate() error {
	if c.Toolkit.CacheDir == "" {
		return ErrCacheDirEmpty
	}

	switch c.Verify.DeviceBackend {
	case DeviceBackendTorch, DeviceBackendNvidiaSMI:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDeviceBackend, c.Verify.DeviceBackend)
	}

	switch c.Verify.SpeechBackend {
	case SpeechBackendPython, SpeechBackendNative:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSpeechBackend, c.Verify.SpeechBackend)
	}

	if c.Verify.TimeoutSeconds < 0 {
		return fmt.Errorf("verify %w: got %d", ErrTimeoutNegative, c.Verify.TimeoutSeconds)
	}

	return nil
}

// ValidateVoice checks the voice pipeline settings.
func (c *Config) ValidateVoice() error {
	v := c.Voice

	if v.ServiceURL == "" {
		return ErrServiceURLEmpty
	}

	if v.ModelPath == "" {
		return ErrModelPathEmpty
	}

	if v.SpeakerFile == "" {
		return ErrSpeakerFileEmpty
	}

	if v.OutputPath == "" {
		return ErrOutputPathEmpty
	}

	if v.Temperature < 0.0 {
		return fmt.Errorf("%w: got %f", ErrTemperatureRange, v.Temperature)
	}

	if v.TimeoutSeconds < 0 {
		return fmt.Errorf("voice %w: got %d", ErrTimeoutNegative, v.TimeoutSeconds)
	}

	return nil
}
