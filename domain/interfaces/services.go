package interfaces

import (
	"context"
	"io"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
)

// EventSource reads domain events from the external event bus
type EventSource interface {
	// FetchSince returns the events after the watermark. It is idempotent for the
	// same watermark and never hides transport failures behind an empty result.
	FetchSince(ctx context.Context, lastUID *string, since time.Time, hints entities.FetchHints) ([]entities.DigestEvent, error)

	// Emit posts a notification event back onto the bus
	Emit(ctx context.Context, event BusEvent) error
}

// BusEvent is an event this service emits onto the external bus
type BusEvent struct {
	EventType string               `json:"eventType"`
	AccountID string               `json:"accountId"`
	Source    entities.EventSource `json:"source"`
	Data      map[string]any       `json:"data"`
	Timestamp time.Time            `json:"timestamp"`
}

// EmailProvider delivers one rendered message. Failures are *entities.ProviderError.
type EmailProvider interface {
	Send(ctx context.Context, msg entities.EmailMessage) (string, error)
}

// TemplateRenderer renders a template against an event batch
type TemplateRenderer interface {
	Render(tmpl *entities.Template, events []entities.DigestEvent, meta entities.DigestMeta) (*entities.RenderedMessage, error)
}

// SnapshotArchive stores serialized run snapshots outside the database
type SnapshotArchive interface {
	// Put stores the snapshot and returns its object key
	Put(ctx context.Context, key string, body io.Reader, size int64) (string, error)
}

// MessageSender delivers a rendered digest to its recipients
type MessageSender interface {
	// SendBatch renders once and sends to every recipient, writing one delivery log each.
	// Per-recipient failures are counted, not returned.
	SendBatch(ctx context.Context, run *entities.Run, tmpl *entities.Template, events []entities.DigestEvent, recipients []string, meta entities.DigestMeta) (entities.SendResult, error)

	// SendTest sends a preview without delivery logs and returns the provider message ID
	SendTest(ctx context.Context, tmpl *entities.Template, events []entities.DigestEvent, recipient string, meta entities.DigestMeta) (string, error)
}
