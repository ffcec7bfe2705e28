package application

import (
	"context"
	"fmt"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/events"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

const (
	DigestActionCreated = "created"
	DigestActionPaused  = "paused"
	DigestActionResumed = "resumed"
)

// DigestStateStore toggles the stored pause flag of a digest
type DigestStateStore interface {
	SetPaused(ctx context.Context, id string, paused bool) error
}

// DigestControl changes digest state and tells every scheduler about it
type DigestControl struct {
	store     DigestStateStore
	publisher interfaces.EventPublisher
	syncer    DigestSyncer // nil outside the serving process
}

// NewDigestControl creates a new digest control. syncer may be nil.
func NewDigestControl(store DigestStateStore, publisher interfaces.EventPublisher, syncer DigestSyncer) *DigestControl {
	return &DigestControl{
		store:     store,
		publisher: publisher,
		syncer:    syncer,
	}
}

// Pause stops scheduled runs of a digest. Manual runs are skipped while paused.
func (c *DigestControl) Pause(ctx context.Context, digestID string) error {
	return c.setPaused(ctx, digestID, true)
}

// Resume re-enables scheduled runs of a paused digest
func (c *DigestControl) Resume(ctx context.Context, digestID string) error {
	return c.setPaused(ctx, digestID, false)
}

// Created announces a digest that was just stored
func (c *DigestControl) Created(ctx context.Context, digestID string) error {
	return c.changed(ctx, digestID, DigestActionCreated)
}

func (c *DigestControl) setPaused(ctx context.Context, digestID string, paused bool) error {
	if err := c.store.SetPaused(ctx, digestID, paused); err != nil {
		return fmt.Errorf("failed to set pause state: %w", err)
	}

	action := DigestActionResumed
	if paused {
		action = DigestActionPaused
	}
	return c.changed(ctx, digestID, action)
}

// changed resyncs the local scheduler and notifies the others. A publish
// failure is logged only; the stored state already changed.
func (c *DigestControl) changed(ctx context.Context, digestID, action string) error {
	log.WithFields(log.Fields{
		"digest_id": digestID,
		"action":    action,
	}).Info("Digest configuration updated")

	if c.syncer != nil {
		if err := c.syncer.SyncDigest(ctx, digestID); err != nil {
			return fmt.Errorf("failed to sync digest %s: %w", digestID, err)
		}
	}

	if err := c.publisher.Publish(events.DigestConfigChangedEvent{
		DigestID: digestID,
		Action:   action,
	}); err != nil {
		log.WithError(err).WithField("digest_id", digestID).Warn("Failed to publish digest config change")
	}
	return nil
}
