package infrastructure

import (
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/events"

	log "github.com/sirupsen/logrus"
)

// NoopEventPublisher drops domain events. Used when NATS is not configured
// and by one-shot CLI commands.
type NoopEventPublisher struct{}

// NewNoopEventPublisher creates a new no-op event publisher
func NewNoopEventPublisher() *NoopEventPublisher {
	return &NoopEventPublisher{}
}

// Publish logs the event at debug level and drops it
func (n *NoopEventPublisher) Publish(event events.Event) error {
	log.WithField("eventType", event.Type()).Debug("Dropping domain event, no publisher configured")
	return nil
}
