package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/voice-bootstrap/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	audioKeySuffix = ".wav"
	flushTimeout   = 5 * time.Second
)

// NewHeader starts a new event header for workflowID. An empty workflowID
// starts a new workflow.
func NewHeader(workflowID string) events.EventHeader {
	if workflowID == "" {
		workflowID = uuid.NewString()
	}

	return events.EventHeader{
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		EventID:    uuid.NewString(),
	}
}

// Publisher stores synthesized audio and announces it.
type Publisher struct {
	natsConnection *nats.Conn
	store          core.ObjectStore
	subject        string
}

// NewPublisher creates a publisher. An empty subject disables announcements;
// audio is still uploaded.
func NewPublisher(natsConnection *nats.Conn, store core.ObjectStore, subject string) *Publisher {
	return &Publisher{
		natsConnection: natsConnection,
		store:          store,
		subject:        subject,
	}
}

// UploadAudio stores the WAV under a new unique key and returns the key.
func (p *Publisher) UploadAudio(ctx context.Context, audioData []byte) (string, error) {
	audioKey := uuid.NewString() + audioKeySuffix

	err := p.store.Upload(ctx, audioKey, audioData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	return audioKey, nil
}

// Publish uploads the WAV and publishes event with its AudioKey set to the
// uploaded object.
func (p *Publisher) Publish(
	ctx context.Context,
	event events.AudioChunkCreatedEvent,
	audioData []byte,
) (*events.AudioChunkCreatedEvent, error) {
	audioKey, err := p.UploadAudio(ctx, audioData)
	if err != nil {
		return nil, err
	}

	event.AudioKey = audioKey

	if p.subject == "" {
		return &event, nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audio event: %w", err)
	}

	err = p.natsConnection.Publish(p.subject, data)
	if err != nil {
		return nil, fmt.Errorf("failed to publish audio event on %s: %w", p.subject, err)
	}

	err = p.natsConnection.FlushTimeout(flushTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to flush audio event: %w", err)
	}

	return &event, nil
}
