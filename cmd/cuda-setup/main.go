// Command cuda-setup locates the GPU toolkit, exports the environment the ML
// libraries need and verifies that they can use the GPU.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-bootstrap/internal/config"
	"github.com/book-expert/voice-bootstrap/internal/core"
	"github.com/book-expert/voice-bootstrap/internal/gpu"
	"github.com/book-expert/voice-bootstrap/internal/pyprobe"
	"github.com/book-expert/voice-bootstrap/internal/shell"
	"github.com/book-expert/voice-bootstrap/internal/speech"
	"github.com/book-expert/voice-bootstrap/internal/toolkit"
	"github.com/book-expert/voice-bootstrap/internal/verify"
	"github.com/spf13/cobra"
)

const (
	bootstrapLogFile = "cuda-setup-bootstrap.log"
	logFile          = "cuda-setup.log"
)

// Flag names and descriptions.
const (
	flagConfig       = "config"
	flagCentral      = "central"
	flagPrintEnv     = "print-env"
	flagConfigDesc   = "Path to a TOML configuration file"
	flagCentralDesc  = "Load the central project configuration first"
	flagPrintEnvDesc = "Print the exported variables as shell statements (posix or powershell)"
)

// Console messages.
const (
	msgToolkitFound   = "Toolkit found at: %s\n"
	msgToolkitMissing = "Toolkit not found. Please ensure it is installed.\n"
	msgCacheDir       = "Kernel cache directory: %s\n"
	msgVisibleDevices = "Visible devices: %s\n\n"
)

var (
	// ErrVerificationFailed is returned when a required check did not pass.
	ErrVerificationFailed = errors.New("GPU environment verification failed")
	// ErrUnknownShell is returned for an unsupported --print-env value.
	ErrUnknownShell = errors.New("unknown shell dialect")
)

type options struct {
	configPath string
	central    bool
	printEnv   string
}

func main() {
	err := newRootCmd(os.Stdout).Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cuda-setup: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "cuda-setup",
		Short:         "Locate the GPU toolkit and verify the ML stack can use it",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, opts, out)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, flagConfig, "", flagConfigDesc)
	cmd.Flags().BoolVar(&opts.central, flagCentral, false, flagCentralDesc)
	cmd.Flags().StringVar(&opts.printEnv, flagPrintEnv, "", flagPrintEnvDesc)

	return cmd
}

func run(ctx context.Context, opts options, out io.Writer) error {
	switch opts.printEnv {
	case "", toolkit.ShellPOSIX, toolkit.ShellPowerShell:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownShell, opts.printEnv)
	}

	cfg, log, err := setup(opts)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	env, err := toolkit.Resolve(toolkitSettings(cfg))
	if err != nil {
		log.Error("Failed to resolve toolkit: %v", err)

		if errors.Is(err, toolkit.ErrToolkitNotFound) {
			fmt.Fprint(out, msgToolkitMissing)
		}

		return err
	}

	log.Info("Resolved toolkit at %s, cache %s", env.Root, env.CacheDir)
	fmt.Fprintf(out, msgToolkitFound, env.Root)
	fmt.Fprintf(out, msgCacheDir, env.CacheDir)
	fmt.Fprintf(out, msgVisibleDevices, env.VisibleDevices)

	if opts.printEnv != "" {
		fmt.Fprintln(out, env.ShellExports(opts.printEnv))
	}

	runner := shell.NewExecRunner(time.Duration(cfg.Verify.TimeoutSeconds)*time.Second, log)

	probes, err := buildProbes(cfg, env, runner)
	if err != nil {
		log.Error("Failed to configure probes: %v", err)

		return err
	}

	report := verify.New(probes, log).Run(ctx)
	verify.PrintReport(out, report)

	if !report.Success() {
		return ErrVerificationFailed
	}

	log.System("GPU environment verified")

	return nil
}

// setup loads the configuration with a bootstrap logger, then opens the
// final logger in the configured directory.
func setup(opts options) (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := logger.New(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}
	defer bootstrapLog.Close()

	cfg, err := config.Load(opts.configPath, opts.central, bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		bootstrapLog.Error("Invalid configuration: %v", err)

		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return cfg, log, nil
}

func toolkitSettings(cfg *config.Config) toolkit.Settings {
	return toolkit.Settings{
		PresetRoot:     cfg.Toolkit.Root,
		Candidates:     cfg.Toolkit.Candidates,
		CacheDir:       cfg.Toolkit.CacheDir,
		VisibleDevices: cfg.Toolkit.VisibleDevices,
		BasePath:       os.Getenv(toolkit.EnvPath),
	}
}

// buildProbes wires the configured backends. Child processes run with the
// resolved environment overlaid on this process's environment.
func buildProbes(cfg *config.Config, env *toolkit.Environment, runner core.CommandRunner) (verify.Probes, error) {
	childEnv := env.Environ(os.Environ())

	python := pyprobe.New(runner, pyprobe.Options{
		Python:       cfg.Verify.Python,
		Env:          childEnv,
		SpeechModule: cfg.Verify.SpeechModule,
		SpeechModel:  cfg.Verify.SpeechModel,
		Device:       cfg.Verify.Device,
		KernelModule: cfg.Verify.KernelModule,
	})

	probes := verify.Probes{
		Toolkit:       toolkit.NewCompilerProbe(runner, env, cfg.Toolkit.VersionFlag),
		Devices:       python,
		Speech:        python,
		ScanSubstring: cfg.Verify.SpeechModule,
	}

	if cfg.Verify.KernelModule != "" {
		probes.Kernel = python
	}

	if cfg.Verify.DeviceBackend == config.DeviceBackendNvidiaSMI {
		probes.Devices = gpu.NewSMIQuerier(runner, "", childEnv)
	}

	if cfg.Verify.SpeechBackend == config.SpeechBackendNative {
		native, err := speech.NewNative(cfg.Verify.NativeModelPath, cfg.Verify.Device)
		if err != nil {
			return verify.Probes{}, fmt.Errorf("native speech backend: %w", err)
		}

		probes.Speech = native
	}

	return probes, nil
}
