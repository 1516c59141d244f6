// Package worker runs the voice pipeline for synthesis jobs received over NATS.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-bootstrap/internal/core"
	"github.com/nats-io/nats.go"
)

const handleMessageTimeout = 5 * time.Minute

var (
	// ErrTextKeyEmpty indicates a job without a text object.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrTemperatureRange indicates a negative sampling temperature.
	ErrTemperatureRange = errors.New("temperature must be >= 0.0")
	// ErrAlreadyStarted is returned by Start on a running worker.
	ErrAlreadyStarted = errors.New("worker already started")
)

// NatsWorker listens for TextProcessedEvent jobs and answers each with an
// AudioChunkCreatedEvent.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	textStore      core.ObjectStore
	publisher      *Publisher
	synthesizer    core.Synthesizer
	log            *logger.Logger
	subscription   *nats.Subscription
}

// NewNatsWorker creates a worker. Text is downloaded from textStore and audio
// is stored and announced through publisher.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	textStore core.ObjectStore,
	publisher *Publisher,
	synthesizer core.Synthesizer,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		textStore:      textStore,
		publisher:      publisher,
		synthesizer:    synthesizer,
		log:            log,
	}
}

// Start subscribes to the job subject. The subscription is registered with
// the server before Start returns.
func (w *NatsWorker) Start() error {
	if w.subscription != nil {
		return ErrAlreadyStarted
	}

	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	err = w.natsConnection.Flush()
	if err != nil {
		_ = sub.Unsubscribe()

		return fmt.Errorf("failed to register subscription on %s: %w", w.subject, err)
	}

	w.subscription = sub

	return nil
}

// Stop drains the subscription, letting in-flight jobs finish.
func (w *NatsWorker) Stop() error {
	if w.subscription == nil {
		return nil
	}

	err := w.subscription.Drain()
	w.subscription = nil

	if err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}

	return nil
}

// Run starts the worker and blocks until ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	err := w.Start()
	if err != nil {
		return err
	}

	w.log.System("Listening for synthesis jobs on subject: %s", w.subject)

	<-ctx.Done()

	return w.Stop()
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := parseAndValidateEvent(msg.Data)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	replyEvent, err := w.processJob(ctx, event)
	if err != nil {
		w.log.Error("Failed to process synthesis job for workflow %s: %v", event.Header.WorkflowID, err)

		return
	}

	if msg.Reply == "" {
		return
	}

	err = respond(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processJob downloads the text, synthesizes it and stores the audio.
func (w *NatsWorker) processJob(
	ctx context.Context,
	event *events.TextProcessedEvent,
) (*events.AudioChunkCreatedEvent, error) {
	textData, err := w.textStore.Download(ctx, event.TextKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	audioData, err := w.synthesizer.Synthesize(ctx, string(textData), event.Temperature)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize text '%s': %w", event.TextKey, err)
	}

	replyEvent, err := w.publisher.Publish(ctx, events.AudioChunkCreatedEvent{
		Header:     NewHeader(event.Header.WorkflowID),
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}, audioData)
	if err != nil {
		return nil, err
	}

	w.log.Info("Synthesized %s into %s for workflow %s", event.TextKey, replyEvent.AudioKey, event.Header.WorkflowID)

	return replyEvent, nil
}

func respond(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseAndValidateEvent(data []byte) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	if event.Temperature < 0.0 {
		return nil, fmt.Errorf("%w: got %f", ErrTemperatureRange, event.Temperature)
	}

	return &event, nil
}
