// Package speech probes the whisper.cpp speech-recognition engine linked into
// this binary through its Go bindings.
//
// The bindings need libwhisper at link time, so model loading is only compiled
// in with the "whisper" build tag. Without it NewNative reports
// ErrNativeUnavailable and the Python probe should be used instead.
package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/book-expert/voice-bootstrap/internal/core"
)

// BindingsModule is the module path of the whisper.cpp Go bindings.
const BindingsModule = "github.com/ggerganov/whisper.cpp/bindings/go"

// Version sources, in lookup order.
const (
	VersionSourceBuildInfo = "build info"
	VersionSourceReplace   = "replace directive"
)

var (
	// ErrNativeUnavailable is returned when the binary was built without the whisper tag.
	ErrNativeUnavailable = errors.New("native whisper support not compiled in (build with -tags whisper)")
	// ErrNoBuildInfo is returned when the binary carries no module information.
	ErrNoBuildInfo = errors.New("build information not available")
	// ErrModelPathEmpty is returned when no model file was configured.
	ErrModelPathEmpty = errors.New("whisper model path cannot be empty")
)

// NativeProbe implements core.SpeechProber for the linked whisper.cpp engine.
type NativeProbe struct {
	modelPath string
	device    string
	load      func(path string) error
	buildInfo func() (*debug.BuildInfo, bool)
}

// NewNative creates a probe that loads the ggml model file at modelPath.
func NewNative(modelPath, device string) (*NativeProbe, error) {
	if !nativeEnabled {
		return nil, ErrNativeUnavailable
	}

	if modelPath == "" {
		return nil, ErrModelPathEmpty
	}

	return &NativeProbe{
		modelPath: modelPath,
		device:    device,
		load:      loadModel,
		buildInfo: debug.ReadBuildInfo,
	}, nil
}

// ProbeSpeech reports the bindings version and loads the model once.
func (p *NativeProbe) ProbeSpeech(ctx context.Context) (core.SpeechInfo, error) {
	info := core.SpeechInfo{
		Found:    true,
		Location: BindingsModule,
		Model:    p.modelPath,
		Device:   p.device,
	}

	if build, ok := p.buildInfo(); ok {
		info.Version, info.VersionSource = ModuleVersion(build, BindingsModule)
	}

	err := ctx.Err()
	if err != nil {
		return info, fmt.Errorf("speech probe cancelled: %w", err)
	}

	_, err = os.Stat(p.modelPath)
	if err != nil {
		return info, fmt.Errorf("whisper model file: %w", err)
	}

	err = p.load(p.modelPath)
	if err != nil {
		return info, fmt.Errorf("failed to load whisper model %q: %w", p.modelPath, err)
	}

	info.ModelLoaded = true

	return info, nil
}

// FindPackages lists linked modules whose path contains substring.
func (p *NativeProbe) FindPackages(_ context.Context, substring string) ([]core.Package, error) {
	build, ok := p.buildInfo()
	if !ok {
		return nil, ErrNoBuildInfo
	}

	return MatchModules(build, substring), nil
}

// ModuleVersion resolves the version of modulePath from build info. The
// module's own version is preferred; a replaced module falls back to its
// replacement. Empty strings mean no strategy produced a version.
func ModuleVersion(build *debug.BuildInfo, modulePath string) (version, source string) {
	for _, dep := range build.Deps {
		if dep.Path != modulePath {
			continue
		}

		if dep.Version != "" && dep.Version != "(devel)" {
			return dep.Version, VersionSourceBuildInfo
		}

		if dep.Replace != nil {
			replacement := dep.Replace.Path
			if dep.Replace.Version != "" {
				replacement += "@" + dep.Replace.Version
			}

			return replacement, VersionSourceReplace
		}
	}

	return "", ""
}

// MatchModules returns the dependencies whose path contains substring,
// ignoring case, sorted by path.
func MatchModules(build *debug.BuildInfo, substring string) []core.Package {
	needle := strings.ToLower(substring)

	var matches []core.Package

	for _, dep := range build.Deps {
		if strings.Contains(strings.ToLower(dep.Path), needle) {
			matches = append(matches, core.Package{Name: dep.Path, Version: dep.Version})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })

	return matches
}
