package interfaces

import (
	"context"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/events"
)

// DigestRepository defines the interface for digest configuration access
type DigestRepository interface {
	// GetByID retrieves a digest by its ID, returning nil when it does not exist
	GetByID(ctx context.Context, id string) (*entities.Digest, error)

	// ListActive returns every digest with is_active set
	ListActive(ctx context.Context) ([]*entities.Digest, error)

	// UpdateWatermark advances the digest watermark if nobody moved it since
	// ExpectedVersion was read. Returns entities.ErrWatermarkConflict otherwise.
	UpdateWatermark(ctx context.Context, id string, update entities.WatermarkUpdate) error
}

// RunRepository defines the interface for run history
type RunRepository interface {
	// Create inserts a new run
	Create(ctx context.Context, run *entities.Run) error

	// Complete writes the terminal state of a run. Returns entities.ErrRunFinalized
	// if the stored run is already terminal.
	Complete(ctx context.Context, run *entities.Run) error

	// GetByID retrieves a run by its ID, returning nil when it does not exist
	GetByID(ctx context.Context, id string) (*entities.Run, error)

	// ListByDigest returns the most recent runs of a digest, newest first
	ListByDigest(ctx context.Context, digestID string, limit int) ([]*entities.Run, error)
}

// TemplateRepository defines the interface for template access
type TemplateRepository interface {
	// GetByID retrieves a template by its ID, returning nil when it does not exist
	GetByID(ctx context.Context, id string) (*entities.Template, error)
}

// DeliveryLogRepository defines the interface for per-recipient delivery logs
type DeliveryLogRepository interface {
	// Create inserts a pending delivery log and sets its ID
	Create(ctx context.Context, entry *entities.DeliveryLog) error

	// MarkSent records the provider message ID of a delivered email
	MarkSent(ctx context.Context, id int64, providerMessageID string) error

	// MarkFailed records why an email could not be delivered
	MarkFailed(ctx context.Context, id int64, errMsg string) error

	// ListByRun returns the delivery logs of a run ordered by ID
	ListByRun(ctx context.Context, runID string) ([]*entities.DeliveryLog, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	Publish(event events.Event) error
}

// EventSubscriber defines the interface for consuming domain events
type EventSubscriber interface {
	Subscribe(eventType events.EventType, handler func(context.Context, events.Event) error) error
}
