// Command voice-generator clones a reference voice on the synthesis service
// and renders a clip with it. The serve subcommand does the same for jobs
// received over NATS.
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

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-bootstrap/internal/config"
	"github.com/book-expert/voice-bootstrap/internal/fsutil"
	"github.com/book-expert/voice-bootstrap/internal/objectstore"
	"github.com/book-expert/voice-bootstrap/internal/toolkit"
	"github.com/book-expert/voice-bootstrap/internal/tts"
	"github.com/book-expert/voice-bootstrap/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"
)

const (
	bootstrapLogFile = "voice-generator-bootstrap.log"
	logFile          = "voice-generator.log"
	natsClientName   = "voice-generator"
)

// Flag names and descriptions.
const (
	flagConfig      = "config"
	flagCentral     = "central"
	flagText        = "text"
	flagOutput      = "output"
	flagConfigDesc  = "Path to a TOML configuration file"
	flagCentralDesc = "Load the central project configuration first"
	flagTextDesc    = "Text to synthesize instead of the configured text"
	flagOutputDesc  = "Output file path (.wav)"
)

// Console messages.
const (
	msgSaved     = "Audio saved to %s (%s, %s)\n"
	msgPublished = "Published audio %s to bucket %s\n"
)

// ErrNATSURLEmpty is returned by serve when no NATS server is configured.
var ErrNATSURLEmpty = errors.New("nats url cannot be empty")

type options struct {
	configPath string
	central    bool
	text       string
	output     string
}

func main() {
	err := newRootCmd(os.Stdout).Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voice-generator: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "voice-generator",
		Short:         "Clone a reference voice and synthesize a clip",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runGenerate(ctx, opts, out)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, flagConfig, "", flagConfigDesc)
	cmd.PersistentFlags().BoolVar(&opts.central, flagCentral, false, flagCentralDesc)
	cmd.Flags().StringVar(&opts.text, flagText, "", flagTextDesc)
	cmd.Flags().StringVar(&opts.output, flagOutput, "", flagOutputDesc)

	cmd.AddCommand(newServeCmd(&opts))

	return cmd
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Synthesize text jobs received over NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, *opts)
		},
	}
}

// runGenerate renders the configured text once and optionally publishes it.
func runGenerate(ctx context.Context, opts options, out io.Writer) error {
	cfg, log, err := setup(opts)
	if err != nil {
		return err
	}
	defer closeLogger(log)

	driver, env, err := newDriver(cfg, log)
	if err != nil {
		return err
	}

	result, wavData, err := driver.Run(ctx, env.Map())
	if err != nil {
		log.Error("Voice generation failed: %v", err)

		return err
	}

	log.Info("Audio saved to %s", result.Path)
	fmt.Fprintf(out, msgSaved, result.Path,
		fsutil.FormatDuration(result.Info.Duration), fsutil.FormatFileSize(result.Info.Size))

	if cfg.NATS.URL == "" {
		return nil
	}

	return publish(ctx, cfg, wavData, out)
}

func publish(ctx context.Context, cfg *config.Config, wavData []byte, out io.Writer) error {
	natsConnection, js, err := connect(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer natsConnection.Close()

	store, err := objectstore.New(ctx, js, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	publisher := worker.NewPublisher(natsConnection, store, cfg.NATS.AudioChunkCreatedSubject)

	event, err := publisher.Publish(ctx, events.AudioChunkCreatedEvent{Header: worker.NewHeader("")}, wavData)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, msgPublished, event.AudioKey, store.Bucket())

	return nil
}

// runServe prepares the voice once and then serves jobs until ctx is done.
func runServe(ctx context.Context, opts options) error {
	cfg, log, err := setup(opts)
	if err != nil {
		return err
	}
	defer closeLogger(log)

	if cfg.NATS.URL == "" {
		return ErrNATSURLEmpty
	}

	driver, env, err := newDriver(cfg, log)
	if err != nil {
		return err
	}

	err = driver.Prepare(ctx, env.Map())
	if err != nil {
		log.Error("Failed to prepare voice: %v", err)

		return err
	}

	natsConnection, js, err := connect(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer natsConnection.Close()

	textStore, err := objectstore.New(ctx, js, cfg.NATS.TextObjectStoreBucket)
	if err != nil {
		return err
	}

	audioStore, err := objectstore.New(ctx, js, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return err
	}

	publisher := worker.NewPublisher(natsConnection, audioStore, cfg.NATS.AudioChunkCreatedSubject)
	natsWorker := worker.NewNatsWorker(natsConnection, cfg.NATS.TextProcessedSubject, textStore, publisher, driver, log)

	return natsWorker.Run(ctx)
}

func newDriver(cfg *config.Config, log *logger.Logger) (*tts.Driver, *toolkit.Environment, error) {
	env, err := toolkit.PassThrough(toolkit.Settings{
		PresetRoot:     cfg.Toolkit.Root,
		CacheDir:       cfg.Toolkit.CacheDir,
		VisibleDevices: cfg.Toolkit.VisibleDevices,
		BasePath:       os.Getenv(toolkit.EnvPath),
	})
	if err != nil {
		log.Error("Failed to prepare environment: %v", err)

		return nil, nil, err
	}

	client := tts.NewHTTPClient(cfg.Voice.ServiceURL, time.Duration(cfg.Voice.TimeoutSeconds)*time.Second)

	return tts.NewDriver(client, cfg.Voice, log), env, nil
}

func connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	natsConnection, err := nats.Connect(url, nats.Name(natsClientName))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(natsConnection)
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return natsConnection, js, nil
}

// setup loads and validates the configuration with a bootstrap logger, then
// opens the final logger in the configured directory.
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

	if opts.text != "" {
		cfg.Voice.Text = opts.text
	}

	if opts.output != "" {
		cfg.Voice.OutputPath = opts.output
	}

	err = errors.Join(cfg.Validate(), cfg.ValidateVoice())
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

func closeLogger(log *logger.Logger) {
	err := log.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", err)
	}
}
