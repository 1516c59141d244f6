// Package core defines the shared types and interfaces for the bootstrap tools.
package core

import "context"

// Command describes a single child process invocation.
// Env is the complete environment handed to the child; nil inherits the parent's.
type Command struct {
	Path string
	Args []string
	Env  []string
}

// CommandRunner executes a command and returns its captured stdout.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// DeviceInfo is what an ML framework reports about accelerator visibility.
type DeviceInfo struct {
	Available   bool
	CUDAVersion string
	Names       []string
}

// Count returns the number of visible devices.
func (d DeviceInfo) Count() int {
	return len(d.Names)
}

// SpeechInfo is the outcome of probing the speech-recognition library.
// Fields are filled in as far as the probe got before any failure.
type SpeechInfo struct {
	Found         bool
	Version       string
	VersionSource string
	Location      string
	ModelLoaded   bool
	Model         string
	Device        string
}

// Package is an installed package as seen by a package scan.
type Package struct {
	Name    string
	Version string
}

// KernelInfo is what the optional kernel compiler reports about itself.
type KernelInfo struct {
	Version          string
	BackendAvailable bool
}

// ToolkitProber runs the toolkit's version-reporting binary.
type ToolkitProber interface {
	CompilerVersion(ctx context.Context) (string, error)
}

// DeviceQuerier asks an ML framework which accelerators it can see.
type DeviceQuerier interface {
	QueryDevices(ctx context.Context) (DeviceInfo, error)
}

// SpeechProber checks that the speech model can be imported and loaded on the device.
type SpeechProber interface {
	ProbeSpeech(ctx context.Context) (SpeechInfo, error)
	FindPackages(ctx context.Context, substring string) ([]Package, error)
}

// KernelProber checks the optional kernel compiler.
type KernelProber interface {
	ProbeKernel(ctx context.Context) (KernelInfo, error)
}

// Synthesizer turns text into WAV audio using a prepared voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, temperature float64) ([]byte, error)
}
