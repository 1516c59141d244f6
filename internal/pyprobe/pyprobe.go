// Package pyprobe checks the Python ML stack by running short scripts in the
// configured interpreter and decoding the JSON they print.
package pyprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/book-expert/voice-bootstrap/internal/core"
)

const flagCommand = "-c"

// Error message constants.
const (
	errFmtRunScript   = "%s probe failed: %w"
	errFmtDecode      = "failed to decode %s probe output: %w"
	errFmtReported    = "%w: %s"
	errNoOutput       = "probe printed no output"
	probeNameDevices  = "device"
	probeNameSpeech   = "speech"
	probeNamePackages = "package"
	probeNameKernel   = "kernel compiler"
)

var (
	// ErrProbeReported wraps a failure the script caught and described itself.
	ErrProbeReported = errors.New("probe reported failure")
	// ErrNoOutput is returned when a script printed nothing.
	ErrNoOutput = errors.New(errNoOutput)
)

// Options configures a Probe.
type Options struct {
	// Python is the interpreter binary.
	Python string
	// Env is the environment for the interpreter, usually toolkit.Environment.Environ.
	Env []string
	// SpeechModule is the import name of the speech library (e.g. "whisper").
	SpeechModule string
	// SpeechModel is the model variant loaded during the check (e.g. "tiny").
	SpeechModel string
	// Device is the accelerator the model is loaded onto (e.g. "cuda").
	Device string
	// KernelModule is the import name of the kernel compiler (e.g. "triton").
	KernelModule string
}

// Probe implements the device, speech and kernel checks against a Python
// interpreter.
type Probe struct {
	runner core.CommandRunner
	opts   Options
}

// New creates a Probe.
func New(runner core.CommandRunner, opts Options) *Probe {
	return &Probe{
		runner: runner,
		opts:   opts,
	}
}

type deviceOutput struct {
	Available   bool     `json:"available"`
	CUDAVersion string   `json:"cuda_version"`
	Devices     []string `json:"devices"`
}

type speechOutput struct {
	Found         bool   `json:"found"`
	Version       string `json:"version"`
	VersionSource string `json:"version_source"`
	Location      string `json:"location"`
	Loaded        bool   `json:"loaded"`
	Error         string `json:"error"`
}

type packageOutput struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type kernelOutput struct {
	Missing          bool   `json:"missing"`
	Version          string `json:"version"`
	BackendAvailable bool   `json:"backend_available"`
	Error            string `json:"error"`
}

// QueryDevices asks the ML framework for accelerator visibility and names.
func (p *Probe) QueryDevices(ctx context.Context) (core.DeviceInfo, error) {
	var out deviceOutput

	err := p.runScript(ctx, probeNameDevices, deviceScript, nil, &out)
	if err != nil {
		return core.DeviceInfo{}, err
	}

	return core.DeviceInfo{
		Available:   out.Available,
		CUDAVersion: out.CUDAVersion,
		Names:       out.Devices,
	}, nil
}

// ProbeSpeech imports the speech module, resolves its version and location,
// and loads the configured model variant onto the device. The returned info
// holds everything learned before a failure.
func (p *Probe) ProbeSpeech(ctx context.Context) (core.SpeechInfo, error) {
	var out speechOutput

	info := core.SpeechInfo{
		Model:  p.opts.SpeechModel,
		Device: p.opts.Device,
	}

	args := []string{p.opts.SpeechModule, p.opts.SpeechModel, p.opts.Device}

	err := p.runScript(ctx, probeNameSpeech, speechScript, args, &out)
	if err != nil {
		return info, err
	}

	info.Found = out.Found
	info.Version = out.Version
	info.VersionSource = out.VersionSource
	info.Location = out.Location
	info.ModelLoaded = out.Loaded

	if out.Error != "" {
		return info, fmt.Errorf(errFmtReported, ErrProbeReported, out.Error)
	}

	return info, nil
}

// FindPackages lists installed distributions whose name contains substring,
// ignoring case, sorted by name.
func (p *Probe) FindPackages(ctx context.Context, substring string) ([]core.Package, error) {
	var out []packageOutput

	err := p.runScript(ctx, probeNamePackages, packagesScript, nil, &out)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(substring)

	var matches []core.Package

	for _, pkg := range out {
		if strings.Contains(strings.ToLower(pkg.Name), needle) {
			matches = append(matches, core.Package{Name: pkg.Name, Version: pkg.Version})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })

	return matches, nil
}

// ProbeKernel reports the kernel compiler's version and whether its CUDA
// backend is available. A missing library yields core.ErrOptionalMissing.
func (p *Probe) ProbeKernel(ctx context.Context) (core.KernelInfo, error) {
	var out kernelOutput

	err := p.runScript(ctx, probeNameKernel, kernelScript, []string{p.opts.KernelModule}, &out)
	if err != nil {
		return core.KernelInfo{}, err
	}

	if out.Missing {
		return core.KernelInfo{}, fmt.Errorf("%w: %s (%s)", core.ErrOptionalMissing, p.opts.KernelModule, out.Error)
	}

	info := core.KernelInfo{
		Version:          out.Version,
		BackendAvailable: out.BackendAvailable,
	}

	if out.Error != "" {
		return info, fmt.Errorf(errFmtReported, ErrProbeReported, out.Error)
	}

	return info, nil
}

func (p *Probe) runScript(ctx context.Context, name, script string, args []string, target any) error {
	cmdArgs := append([]string{flagCommand, script}, args...)

	stdout, err := p.runner.Run(ctx, core.Command{
		Path: p.opts.Python,
		Args: cmdArgs,
		Env:  p.opts.Env,
	})
	if err != nil {
		return fmt.Errorf(errFmtRunScript, name, err)
	}

	err = parseJSON(lastLine(stdout), target)
	if err != nil {
		return fmt.Errorf(errFmtDecode, name, err)
	}

	return nil
}

// lastLine returns the last non-blank line; libraries may print banners first.
func lastLine(stdout []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(stdout), []byte("\n"))

	return bytes.TrimSpace(lines[len(lines)-1])
}

func parseJSON(data []byte, target any) error {
	if len(data) == 0 {
		return ErrNoOutput
	}

	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}
