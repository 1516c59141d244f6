// Package toolkit locates the GPU toolkit and computes the environment that
// downstream tools need to find it.
//
// The result is an immutable Environment value. Nothing here mutates the
// process environment; callers hand Environ() to child processes instead.
package toolkit

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/book-expert/voice-bootstrap/internal/fsutil"
)

// Variable names exported by the resolver.
const (
	EnvToolkitRoot    = "CUDA_PATH"
	EnvToolkitHome    = "CUDA_HOME"
	EnvPath           = "PATH"
	EnvCacheDir       = "TRITON_CACHE_DIR"
	EnvVisibleDevices = "CUDA_VISIBLE_DEVICES"
)

const (
	binDirName       = "bin"
	compilerName     = "nvcc"
	windowsExeSuffix = ".exe"
	defaultDeviceIdx = "0"
	osWindows        = "windows"
	posixListSep     = ":"
	windowsListSep   = ";"
	errFmtCacheDir   = "failed to prepare cache directory: %w"
)

// ErrToolkitNotFound is returned when no toolkit path was pre-set and no
// candidate directory exists.
var ErrToolkitNotFound = errors.New("toolkit not found")

// Settings are the inputs of a resolution.
type Settings struct {
	// PresetRoot is trusted verbatim when non-empty.
	PresetRoot string
	// Candidates are scanned in order, newest version first.
	Candidates []string
	// CacheDir is created if absent and exported as an absolute path.
	CacheDir string
	// VisibleDevices is the pinned accelerator index; defaults to "0".
	VisibleDevices string
	// BasePath is the binary search path the toolkit's bin dir is prepended to.
	BasePath string
	// GOOS selects the executable suffix and the PATH list separator. It
	// defaults to runtime.GOOS.
	GOOS string
}

// Environment is a resolved toolkit environment.
type Environment struct {
	Root           string
	BinDir         string
	Path           string
	CacheDir       string
	VisibleDevices string
	goos           string
}

// Resolve locates the toolkit and prepares the cache directory.
// On failure nothing is created on disk.
func Resolve(settings Settings) (*Environment, error) {
	root := settings.PresetRoot
	if root == "" {
		found, err := fsutil.FirstExistingDir(settings.Candidates)
		if err != nil {
			return nil, fmt.Errorf("%w: checked %s", ErrToolkitNotFound,
				strings.Join(settings.Candidates, ", "))
		}

		root = found
	}

	return build(root, settings)
}

// PassThrough prepares the environment without scanning for the toolkit.
// A pre-set root is propagated if present; the cache directory and device
// pin are always applied.
func PassThrough(settings Settings) (*Environment, error) {
	return build(settings.PresetRoot, settings)
}

func build(root string, settings Settings) (*Environment, error) {
	goos := settings.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	env := &Environment{
		Root:           root,
		Path:           settings.BasePath,
		VisibleDevices: settings.VisibleDevices,
		goos:           goos,
	}

	if env.VisibleDevices == "" {
		env.VisibleDevices = defaultDeviceIdx
	}

	if root != "" {
		env.BinDir = filepath.Join(root, binDirName)
		env.Path = PrependPath(env.BinDir, settings.BasePath, goos)
	}

	cacheDir, err := fsutil.EnsureAbsDir(settings.CacheDir)
	if err != nil {
		return nil, fmt.Errorf(errFmtCacheDir, err)
	}

	env.CacheDir = cacheDir

	return env, nil
}

// PrependPath puts dir at the front of a search path in goos's list format.
// An existing occurrence of dir is removed so it never appears twice.
func PrependPath(dir, searchPath, goos string) string {
	sep := listSeparator(goos)
	entries := []string{dir}

	if searchPath != "" {
		for _, entry := range strings.Split(searchPath, sep) {
			if entry == "" || filepath.Clean(entry) == filepath.Clean(dir) {
				continue
			}

			entries = append(entries, entry)
		}
	}

	return strings.Join(entries, sep)
}

func listSeparator(goos string) string {
	if goos == osWindows {
		return windowsListSep
	}

	return posixListSep
}

// CompilerPath returns the location of the toolkit's version-reporting binary.
func (e *Environment) CompilerPath() string {
	name := compilerName
	if e.goos == osWindows {
		name += windowsExeSuffix
	}

	if e.BinDir == "" {
		return name
	}

	return filepath.Join(e.BinDir, name)
}

// Var is one exported variable.
type Var struct {
	Key   string
	Value string
}

// Vars returns the exported variables in a stable order. Toolkit variables
// are omitted when no root is known.
func (e *Environment) Vars() []Var {
	var vars []Var

	if e.Root != "" {
		vars = append(vars,
			Var{Key: EnvToolkitRoot, Value: e.Root},
			Var{Key: EnvPath, Value: e.Path},
			Var{Key: EnvToolkitHome, Value: e.Root},
		)
	}

	vars = append(vars,
		Var{Key: EnvCacheDir, Value: e.CacheDir},
		Var{Key: EnvVisibleDevices, Value: e.VisibleDevices},
	)

	return vars
}

// Map returns the exported variables keyed by name.
func (e *Environment) Map() map[string]string {
	out := make(map[string]string)
	for _, v := range e.Vars() {
		out[v.Key] = v.Value
	}

	return out
}

// Environ overlays the exported variables onto base, a list of "KEY=value"
// strings such as os.Environ(). Keys in base that are exported are replaced.
func (e *Environment) Environ(base []string) []string {
	overrides := e.Map()
	out := make([]string, 0, len(base)+len(overrides))

	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}

		out = append(out, kv)
	}

	for _, v := range e.Vars() {
		out = append(out, v.Key+"="+v.Value)
	}

	return out
}

// Shell dialects understood by ShellExports.
const (
	ShellPOSIX      = "posix"
	ShellPowerShell = "powershell"
)

// ShellExports renders the variables as statements an operator can source
// into their own shell.
func (e *Environment) ShellExports(shell string) string {
	var builder strings.Builder

	for _, v := range e.Vars() {
		if shell == ShellPowerShell {
			fmt.Fprintf(&builder, "$env:%s = \"%s\"\n", v.Key, strings.ReplaceAll(v.Value, `"`, "`\""))

			continue
		}

		fmt.Fprintf(&builder, "export %s='%s'\n", v.Key, strings.ReplaceAll(v.Value, "'", `'\''`))
	}

	return builder.String()
}
