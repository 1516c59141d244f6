package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime/debug"
	"testing"

	"github.com/book-expert/voice-bootstrap/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockLoad = errors.New("mock load error")

func testBuildInfo() *debug.BuildInfo {
	return &debug.BuildInfo{
		Deps: []*debug.Module{
			{Path: "github.com/stretchr/testify", Version: "v1.11.1"},
			{Path: BindingsModule, Version: "v0.0.0-20260227185758-9453b4b9be9b"},
			{Path: "github.com/example/whisper-extras", Version: "v1.2.0"},
		},
	}
}

func newTestProbe(t *testing.T, load func(string) error) (*NativeProbe, string) {
	t.Helper()

	modelPath := filepath.Join(t.TempDir(), "ggml-tiny.bin")
	require.NoError(t, os.WriteFile(modelPath, []byte("ggml"), 0o600))

	return &NativeProbe{
		modelPath: modelPath,
		device:    "cuda",
		load:      load,
		buildInfo: func() (*debug.BuildInfo, bool) { return testBuildInfo(), true },
	}, modelPath
}

func TestNativeProbe_ProbeSpeech(t *testing.T) {
	t.Parallel()

	var loaded string

	probe, modelPath := newTestProbe(t, func(path string) error {
		loaded = path

		return nil
	})

	info, err := probe.ProbeSpeech(context.Background())
	require.NoError(t, err)

	assert.Equal(t, modelPath, loaded)
	assert.True(t, info.Found)
	assert.True(t, info.ModelLoaded)
	assert.Equal(t, "v0.0.0-20260227185758-9453b4b9be9b", info.Version)
	assert.Equal(t, VersionSourceBuildInfo, info.VersionSource)
	assert.Equal(t, BindingsModule, info.Location)
}

func TestNativeProbe_LoadFailure(t *testing.T) {
	t.Parallel()

	probe, _ := newTestProbe(t, func(string) error { return errMockLoad })

	info, err := probe.ProbeSpeech(context.Background())
	require.ErrorIs(t, err, errMockLoad)
	assert.True(t, info.Found)
	assert.False(t, info.ModelLoaded)
}

func TestNativeProbe_MissingModelFile(t *testing.T) {
	t.Parallel()

	probe, modelPath := newTestProbe(t, func(string) error { return nil })
	require.NoError(t, os.Remove(modelPath))

	_, err := probe.ProbeSpeech(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestNativeProbe_FindPackages(t *testing.T) {
	t.Parallel()

	probe, _ := newTestProbe(t, nil)

	matches, err := probe.FindPackages(context.Background(), "WHISPER")
	require.NoError(t, err)

	assert.Equal(t, []core.Package{
		{Name: "github.com/example/whisper-extras", Version: "v1.2.0"},
		{Name: BindingsModule, Version: "v0.0.0-20260227185758-9453b4b9be9b"},
	}, matches)
}

func TestNativeProbe_FindPackagesWithoutBuildInfo(t *testing.T) {
	t.Parallel()

	probe := &NativeProbe{buildInfo: func() (*debug.BuildInfo, bool) { return nil, false }}

	_, err := probe.FindPackages(context.Background(), "whisper")
	require.ErrorIs(t, err, ErrNoBuildInfo)
}

func TestModuleVersion(t *testing.T) {
	t.Parallel()

	build := &debug.BuildInfo{
		Deps: []*debug.Module{
			{Path: "example.com/direct", Version: "v1.0.0"},
			{Path: "example.com/replaced", Version: "(devel)", Replace: &debug.Module{Path: "../local/bindings"}},
		},
	}

	version, source := ModuleVersion(build, "example.com/direct")
	assert.Equal(t, "v1.0.0", version)
	assert.Equal(t, VersionSourceBuildInfo, source)

	version, source = ModuleVersion(build, "example.com/replaced")
	assert.Equal(t, "../local/bindings", version)
	assert.Equal(t, VersionSourceReplace, source)

	version, source = ModuleVersion(build, "example.com/absent")
	assert.Empty(t, version)
	assert.Empty(t, source)
}
