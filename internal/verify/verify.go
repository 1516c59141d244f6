// Package verify runs the GPU capability checks in order and records a typed
// result per check. The caller decides what to do with the report; Success
// applies the standard escalation policy.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-bootstrap/internal/core"
)

// Check names, in execution order.
const (
	CheckCompiler    = "compiler"
	CheckDevices     = "devices"
	CheckSpeech      = "speech model"
	CheckPackageScan = "package scan"
	CheckKernel      = "kernel compiler"
)

// Error categories. Each failed check wraps exactly one of them.
var (
	ErrCompilerInvocation = errors.New("could not verify toolkit compiler")
	ErrFrameworkQuery     = errors.New("error checking framework devices")
	ErrModelLoad          = errors.New("error checking speech model")
	ErrPackageScan        = errors.New("error searching packages")
	ErrKernelCheck        = errors.New("error checking kernel compiler")
)

// Status is the outcome of one check.
type Status int

// Check outcomes.
const (
	StatusPassed Status = iota
	StatusFailed
	StatusMissing
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusMissing:
		return "missing"
	case StatusSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// CheckResult is the outcome of one check with what it observed.
type CheckResult struct {
	Name   string
	Status Status
	// Details are human-readable observations, one per line.
	Details []string
	Err     error
	// Informational checks never affect Report.Success.
	Informational bool
}

// Report is the ordered list of check results for one run.
type Report struct {
	Results []CheckResult
	Devices core.DeviceInfo
	Speech  core.SpeechInfo
	Kernel  core.KernelInfo
	Matches []core.Package
}

// Success reports whether every non-informational check passed.
func (r Report) Success() bool {
	if len(r.Results) == 0 {
		return false
	}

	for _, result := range r.Results {
		if result.Informational {
			continue
		}

		if result.Status != StatusPassed {
			return false
		}
	}

	return true
}

// Result returns the result of the named check.
func (r Report) Result(name string) (CheckResult, bool) {
	for _, result := range r.Results {
		if result.Name == name {
			return result, true
		}
	}

	return CheckResult{}, false
}

// Probes groups the backends a Verifier calls.
type Probes struct {
	Toolkit core.ToolkitProber
	Devices core.DeviceQuerier
	Speech  core.SpeechProber
	// Kernel may be nil, in which case the check is recorded as skipped.
	Kernel core.KernelProber
	// ScanSubstring is matched against installed package names when the
	// speech check fails.
	ScanSubstring string
}

// Verifier runs the capability checks.
type Verifier struct {
	probes Probes
	log    *logger.Logger
}

// New creates a Verifier.
func New(probes Probes, log *logger.Logger) *Verifier {
	return &Verifier{
		probes: probes,
		log:    log,
	}
}

// Run executes the checks in order. A compiler, device or speech failure
// stops the run; later checks are recorded as skipped.
func (v *Verifier) Run(ctx context.Context) Report {
	var report Report

	compiler := v.checkCompiler(ctx)
	report.Results = append(report.Results, compiler)

	if compiler.Status != StatusPassed {
		return v.skipRemaining(report, CheckDevices, CheckSpeech, CheckKernel)
	}

	devices, deviceInfo := v.checkDevices(ctx)
	report.Devices = deviceInfo
	report.Results = append(report.Results, devices)

	if devices.Status != StatusPassed {
		return v.skipRemaining(report, CheckSpeech, CheckKernel)
	}

	speech, speechInfo := v.checkSpeech(ctx)
	report.Speech = speechInfo
	report.Results = append(report.Results, speech)

	if speech.Status != StatusPassed {
		scan, matches := v.scanPackages(ctx)
		report.Matches = matches
		report.Results = append(report.Results, scan)

		return v.skipRemaining(report, CheckKernel)
	}

	kernel, kernelInfo := v.checkKernel(ctx)
	report.Kernel = kernelInfo
	report.Results = append(report.Results, kernel)

	return report
}

func (v *Verifier) checkCompiler(ctx context.Context) CheckResult {
	result := CheckResult{Name: CheckCompiler}

	version, err := v.probes.Toolkit.CompilerVersion(ctx)
	if err != nil {
		return v.fail(result, ErrCompilerInvocation, err)
	}

	result.Status = StatusPassed
	result.Details = splitLines(version)
	v.logInfo("Compiler version check passed")

	return result
}

func (v *Verifier) checkDevices(ctx context.Context) (CheckResult, core.DeviceInfo) {
	result := CheckResult{Name: CheckDevices}

	info, err := v.probes.Devices.QueryDevices(ctx)
	if err != nil {
		return v.fail(result, ErrFrameworkQuery, err), info
	}

	result.Status = StatusPassed
	result.Details = append(result.Details, fmt.Sprintf("CUDA Available: %t", info.Available))

	if info.Available {
		if info.CUDAVersion != "" {
			result.Details = append(result.Details, "CUDA Version: "+info.CUDAVersion)
		}

		result.Details = append(result.Details, fmt.Sprintf("Number of GPUs: %d", info.Count()))

		for i, name := range info.Names {
			result.Details = append(result.Details, fmt.Sprintf("GPU %d: %s", i, name))
		}
	}

	v.logInfo("Device query passed: available=%t count=%d", info.Available, info.Count())

	return result, info
}

func (v *Verifier) checkSpeech(ctx context.Context) (CheckResult, core.SpeechInfo) {
	result := CheckResult{Name: CheckSpeech}

	info, err := v.probes.Speech.ProbeSpeech(ctx)
	result.Details = speechDetails(info)

	if err != nil {
		return v.fail(result, ErrModelLoad, err), info
	}

	result.Status = StatusPassed
	v.logInfo("Speech model %s loaded on %s", info.Model, info.Device)

	return result, info
}

func speechDetails(info core.SpeechInfo) []string {
	var details []string

	if !info.Found {
		return details
	}

	details = append(details, "Speech module found")

	if info.Version != "" {
		details = append(details, fmt.Sprintf("Version (%s): %s", info.VersionSource, info.Version))
	} else {
		details = append(details, "Could not determine version")
	}

	if info.Location != "" {
		details = append(details, "Location: "+info.Location)
	}

	if info.ModelLoaded {
		details = append(details, fmt.Sprintf("Loaded model %q on %s", info.Model, info.Device))
	}

	return details
}

// scanPackages is best effort: its failure is recorded but the run has
// already failed on the speech check.
func (v *Verifier) scanPackages(ctx context.Context) (CheckResult, []core.Package) {
	result := CheckResult{Name: CheckPackageScan, Informational: true}

	matches, err := v.probes.Speech.FindPackages(ctx, v.probes.ScanSubstring)
	if err != nil {
		return v.fail(result, ErrPackageScan, err), nil
	}

	result.Status = StatusPassed

	for _, pkg := range matches {
		result.Details = append(result.Details, fmt.Sprintf("Found related package: %s %s", pkg.Name, pkg.Version))
	}

	if len(matches) == 0 {
		result.Details = append(result.Details, fmt.Sprintf("No installed package matches %q", v.probes.ScanSubstring))
	}

	return result, matches
}

func (v *Verifier) checkKernel(ctx context.Context) (CheckResult, core.KernelInfo) {
	result := CheckResult{Name: CheckKernel, Informational: true}

	if v.probes.Kernel == nil {
		result.Status = StatusSkipped

		return result, core.KernelInfo{}
	}

	info, err := v.probes.Kernel.ProbeKernel(ctx)
	if errors.Is(err, core.ErrOptionalMissing) {
		result.Status = StatusMissing
		result.Err = err
		result.Details = []string{"Kernel compiler not installed"}
		v.logWarn("Kernel compiler not installed: %v", err)

		return result, info
	}

	if info.Version != "" {
		result.Details = append(result.Details, "Version: "+info.Version)
	}

	if err != nil {
		return v.fail(result, ErrKernelCheck, err), info
	}

	result.Status = StatusPassed
	result.Details = append(result.Details, fmt.Sprintf("CUDA Backend Available: %t", info.BackendAvailable))

	return result, info
}

func (v *Verifier) fail(result CheckResult, category, err error) CheckResult {
	result.Status = StatusFailed
	result.Err = fmt.Errorf("%w: %w", category, err)
	v.logError("Check %s failed: %v", result.Name, result.Err)

	return result
}

func (v *Verifier) skipRemaining(report Report, names ...string) Report {
	for _, name := range names {
		report.Results = append(report.Results, CheckResult{
			Name:          name,
			Status:        StatusSkipped,
			Informational: name == CheckKernel,
		})
	}

	return report
}

func (v *Verifier) logInfo(format string, args ...any) {
	if v.log != nil {
		v.log.Info(format, args...)
	}
}

func (v *Verifier) logWarn(format string, args ...any) {
	if v.log != nil {
		v.log.Warn(format, args...)
	}
}

func (v *Verifier) logError(format string, args ...any) {
	if v.log != nil {
		v.log.Error(format, args...)
	}
}

func splitLines(s string) []string {
	var lines []string

	for _, line := range strings.Split(strings.TrimRight(s, "\r\n"), "\n") {
		lines = append(lines, strings.TrimRight(line, "\r"))
	}

	return lines
}
