package application

import (
	"context"
	"fmt"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/events"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// DigestSyncer keeps a digest's timer in line with its stored configuration
type DigestSyncer interface {
	SyncDigest(ctx context.Context, digestID string) error
}

// DigestConfigListener resyncs the scheduler when a digest is created, edited or deleted
type DigestConfigListener struct {
	syncer DigestSyncer
}

// NewDigestConfigListener creates a new config change listener
func NewDigestConfigListener(syncer DigestSyncer) *DigestConfigListener {
	return &DigestConfigListener{syncer: syncer}
}

// HandleDigestConfigChanged processes a digest config change event
func (l *DigestConfigListener) HandleDigestConfigChanged(ctx context.Context, event events.Event) error {
	var changed events.DigestConfigChangedEvent
	switch e := event.(type) {
	case events.DigestConfigChangedEvent:
		changed = e
	case *events.DigestConfigChangedEvent:
		changed = *e
	default:
		return fmt.Errorf("unexpected event type %T", event)
	}

	if changed.DigestID == "" {
		log.Warn("Ignoring digest config change without digest ID")
		return nil
	}

	log.WithFields(log.Fields{
		"digest_id": changed.DigestID,
		"action":    changed.Action,
	}).Info("Digest configuration changed, syncing schedule")

	if err := l.syncer.SyncDigest(ctx, changed.DigestID); err != nil {
		return fmt.Errorf("failed to sync digest %s: %w", changed.DigestID, err)
	}
	return nil
}

// RegisterApplicationSubscriptions registers all application-level event subscriptions
func RegisterApplicationSubscriptions(subscriber interfaces.EventSubscriber, syncer DigestSyncer) error {
	listener := NewDigestConfigListener(syncer)
	return subscriber.Subscribe(events.EventTypeDigestConfigChanged, listener.HandleDigestConfigChanged)
}
