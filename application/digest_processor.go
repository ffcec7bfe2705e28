package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/events"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/services"
	"github.com/phumblot-gs/gs-stream-digest-sub000/infrastructure/observability"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	// ServiceName is the source application of events this service emits
	ServiceName = "gs-stream-digest"

	// DigestSentEventType is emitted on the event bus after a digest went out
	DigestSentEventType = "digest.sent"
)

// ProcessOptions describes how a run was triggered
type ProcessOptions struct {
	RunType     entities.RunType
	TriggeredBy *string
	TestEmail   string // test runs only; falls back to the digest's test recipients
}

// ProcessResult is the outcome of Process. Run is nil when the digest was skipped.
type ProcessResult struct {
	Run           *entities.Run
	Skipped       bool
	SkipReason    string
	EventsFetched int
}

// ProcessorConfig holds the tunables of a DigestProcessor
type ProcessorConfig struct {
	Lookback    time.Duration // window for a digest that never ran
	Environment string        // source environment of emitted bus events
}

// DigestProcessor executes one digest run end to end: fetch, filter, send, record
type DigestProcessor struct {
	digests   interfaces.DigestRepository
	runs      interfaces.RunRepository
	templates interfaces.TemplateRepository
	source    interfaces.EventSource
	sender    interfaces.MessageSender
	publisher interfaces.EventPublisher
	archive   interfaces.SnapshotArchive
	cfg       ProcessorConfig
	now       func() time.Time
}

// NewDigestProcessor creates a new digest processor. archive may be nil.
func NewDigestProcessor(
	digests interfaces.DigestRepository,
	runs interfaces.RunRepository,
	templates interfaces.TemplateRepository,
	source interfaces.EventSource,
	sender interfaces.MessageSender,
	publisher interfaces.EventPublisher,
	archive interfaces.SnapshotArchive,
	cfg ProcessorConfig,
) *DigestProcessor {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	return &DigestProcessor{
		digests:   digests,
		runs:      runs,
		templates: templates,
		source:    source,
		sender:    sender,
		publisher: publisher,
		archive:   archive,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Process executes one run of a digest.
//
// Inactive or paused digests are skipped without a Run. Any failure before the
// terminal state is written marks the run failed and is returned. Once the run is
// terminal it is never re-flipped: a watermark conflict is returned as
// entities.ErrWatermarkConflict with the successful run attached.
//
// Cancelling ctx does not stop a run. The store, bus and provider clients bound
// each call with their own timeouts.
func (p *DigestProcessor) Process(ctx context.Context, digestID string, opts ProcessOptions) (*ProcessResult, error) {
	startTime := p.now()
	if ctx.Done() != nil {
		ctx = context.WithoutCancel(ctx)
	}

	if !opts.RunType.IsValid() {
		return nil, fmt.Errorf("invalid run type %q", opts.RunType)
	}

	digest, err := p.digests.GetByID(ctx, digestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get digest: %w", err)
	}
	if digest == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrDigestNotFound, digestID)
	}

	if !digest.IsSchedulable() {
		reason := "inactive"
		if digest.IsPaused {
			reason = "paused"
		}
		p.skip(digest, opts.RunType, reason, startTime)
		return &ProcessResult{Skipped: true, SkipReason: reason}, nil
	}

	run := &entities.Run{
		ID:          uuid.New().String(),
		DigestID:    digest.ID,
		RunAt:       startTime,
		RunType:     opts.RunType,
		Status:      entities.RunStatusProcessing,
		TriggeredBy: opts.TriggeredBy,
	}
	if err := p.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	logger := log.WithFields(log.Fields{
		"digest_id": digest.ID,
		"run_id":    run.ID,
		"run_type":  run.RunType,
	})
	logger.Info("Digest run started")

	result := &ProcessResult{Run: run}

	batch, err := p.collect(ctx, digest, run, opts, startTime, logger)
	if err != nil {
		p.failRun(ctx, run, err, startTime, logger)
		return result, err
	}
	result.EventsFetched = batch.fetched

	if err := p.complete(ctx, run, batch, startTime); err != nil {
		if !errors.Is(err, entities.ErrRunFinalized) {
			p.failRun(ctx, run, err, startTime, logger)
		}
		return result, err
	}

	if !run.IsTest() {
		if err := p.advanceWatermark(ctx, digest, batch.events); err != nil {
			logger.WithError(err).Warn("Digest run finished but the watermark was not advanced")
			return result, err
		}
	}

	p.announce(ctx, digest, run, logger)

	logger.WithFields(log.Fields{
		"status":        run.Status,
		"events_count":  run.EventsCount,
		"emails_sent":   run.EmailsSent,
		"emails_failed": run.EmailsFailed,
		"duration_ms":   *run.DurationMs,
	}).Info("Digest run completed")

	return result, nil
}

// runBatch is what a run collected and delivered before its terminal write
type runBatch struct {
	events  []entities.DigestEvent
	fetched int
	sent    entities.SendResult
}

// collect fetches, filters and delivers the batch for a run
func (p *DigestProcessor) collect(
	ctx context.Context,
	digest *entities.Digest,
	run *entities.Run,
	opts ProcessOptions,
	startTime time.Time,
	logger *log.Entry,
) (*runBatch, error) {
	tmpl, err := p.templates.GetByID(ctx, digest.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrTemplateNotFound, digest.TemplateID)
	}

	since := digest.WindowStart(startTime, p.cfg.Lookback)
	fetched, err := p.fetch(ctx, digest.LastEventUID, since, digest.Filters.Hints())
	if err != nil {
		return nil, err
	}

	filtered := services.FilterEventsAt(fetched, digest.Filters, startTime)
	observability.GetMetrics().RecordEvents(len(fetched), len(filtered))

	logger.WithFields(log.Fields{
		"since":    since,
		"fetched":  len(fetched),
		"filtered": len(filtered),
	}).Debug("Fetched digest events")

	batch := &runBatch{fetched: len(fetched)}
	if len(filtered) == 0 {
		return batch, nil
	}

	batch.events = services.SortEvents(filtered, "timestamp", services.SortDescending)

	recipients, err := resolveRecipients(digest, opts)
	if err != nil {
		return nil, err
	}

	meta := entities.DigestMeta{
		DigestID:    digest.ID,
		DigestName:  digest.Name,
		Description: digest.Description,
		AccountID:   digest.OwnerAccountID,
		RunID:       run.ID,
		RunType:     run.RunType,
		PeriodStart: since,
		PeriodEnd:   startTime,
	}

	batch.sent, err = p.sender.SendBatch(ctx, run, tmpl, batch.events, recipients, meta)
	if err != nil {
		return nil, fmt.Errorf("failed to send digest: %w", err)
	}
	return batch, nil
}

// fetch reads events after the watermark and drops the watermark event itself
// when the bus returns it first
func (p *DigestProcessor) fetch(ctx context.Context, lastUID *string, since time.Time, hints entities.FetchHints) ([]entities.DigestEvent, error) {
	fetched, err := p.source.FetchSince(ctx, lastUID, since, hints)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	if lastUID != nil && len(fetched) > 0 && fetched[0].UID == *lastUID {
		fetched = fetched[1:]
	}
	return fetched, nil
}

func resolveRecipients(digest *entities.Digest, opts ProcessOptions) ([]string, error) {
	if opts.RunType == entities.RunTypeTest {
		if opts.TestEmail != "" {
			return []string{opts.TestEmail}, nil
		}
		if len(digest.TestRecipients) > 0 {
			return digest.TestRecipients, nil
		}
		return nil, entities.ErrTestEmailRequired
	}
	if len(digest.Recipients) == 0 {
		return nil, entities.ErrNoRecipients
	}
	return digest.Recipients, nil
}

// complete writes the terminal success or partial state of a run
func (p *DigestProcessor) complete(ctx context.Context, run *entities.Run, batch *runBatch, startTime time.Time) error {
	events := batch.events
	if events == nil {
		events = []entities.DigestEvent{}
	}
	snapshot, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events snapshot: %w", err)
	}

	if p.archive != nil && len(batch.events) > 0 {
		key := fmt.Sprintf("runs/%s/%s.json", run.DigestID, run.ID)
		if stored, err := p.archive.Put(ctx, key, bytes.NewReader(snapshot), int64(len(snapshot))); err != nil {
			log.WithError(err).WithField("run_id", run.ID).Warn("Failed to archive events snapshot")
		} else {
			run.SnapshotKey = &stored
		}
	}

	completedAt := p.now()
	run.Succeed(batch.events, snapshot, batch.sent.Sent, batch.sent.Failed, completedAt, completedAt.Sub(startTime))

	if err := p.runs.Complete(ctx, run); err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	observability.GetMetrics().RecordRun(string(run.RunType), string(run.Status), completedAt.Sub(startTime))
	return nil
}

// advanceWatermark moves lastCheckAt forward and, when events were processed,
// lastEventUid to the newest one
func (p *DigestProcessor) advanceWatermark(ctx context.Context, digest *entities.Digest, processed []entities.DigestEvent) error {
	update := entities.WatermarkUpdate{
		LastCheckAt:     p.now(),
		ExpectedVersion: digest.WatermarkVersion,
	}
	if len(processed) > 0 {
		newest := processed[0].UID
		update.LastEventUID = &newest
	}

	if err := p.digests.UpdateWatermark(ctx, digest.ID, update); err != nil {
		return fmt.Errorf("failed to update watermark: %w", err)
	}
	return nil
}

// failRun persists the failed state. Persistence errors are only logged so the
// original error reaches the caller.
func (p *DigestProcessor) failRun(ctx context.Context, run *entities.Run, cause error, startTime time.Time, logger *log.Entry) {
	completedAt := p.now()
	run.Fail(cause, completedAt, completedAt.Sub(startTime))

	logger.WithError(cause).Error("Digest run failed")

	if err := p.runs.Complete(ctx, run); err != nil {
		logger.WithError(err).Error("Failed to record failed run")
	}
	observability.GetMetrics().RecordRun(string(run.RunType), string(run.Status), completedAt.Sub(startTime))

	if err := p.publisher.Publish(events.DigestRunFailedEvent{
		DigestID: run.DigestID,
		RunID:    run.ID,
		RunType:  string(run.RunType),
		Error:    cause.Error(),
		FailedAt: completedAt,
	}); err != nil {
		logger.WithError(err).Warn("Failed to publish run failed event")
	}
}

func (p *DigestProcessor) skip(digest *entities.Digest, runType entities.RunType, reason string, at time.Time) {
	log.WithFields(log.Fields{
		"digest_id": digest.ID,
		"run_type":  runType,
		"reason":    reason,
	}).Info("Skipping digest run")

	observability.GetMetrics().RecordRunSkipped(string(runType))

	if err := p.publisher.Publish(events.DigestRunSkippedEvent{
		DigestID: digest.ID,
		RunType:  string(runType),
		Reason:   reason,
		At:       at,
	}); err != nil {
		log.WithError(err).WithField("digest_id", digest.ID).Warn("Failed to publish run skipped event")
	}
}

// announce notifies the bus and NATS of a finished run. Failures are logged only.
func (p *DigestProcessor) announce(ctx context.Context, digest *entities.Digest, run *entities.Run, logger *log.Entry) {
	if run.EventsCount > 0 && !run.IsTest() {
		err := p.source.Emit(ctx, interfaces.BusEvent{
			EventType: DigestSentEventType,
			AccountID: digest.OwnerAccountID,
			Source: entities.EventSource{
				Application: ServiceName,
				Environment: p.cfg.Environment,
			},
			Data: map[string]any{
				"digestId":     digest.ID,
				"digestName":   digest.Name,
				"runId":        run.ID,
				"runType":      string(run.RunType),
				"status":       string(run.Status),
				"eventsCount":  run.EventsCount,
				"emailsSent":   run.EmailsSent,
				"emailsFailed": run.EmailsFailed,
			},
			Timestamp: *run.CompletedAt,
		})
		if err != nil {
			logger.WithError(err).Warn("Failed to emit digest sent event")
		}
	}

	if err := p.publisher.Publish(events.DigestRunCompletedEvent{
		DigestID:     run.DigestID,
		RunID:        run.ID,
		RunType:      string(run.RunType),
		Status:       string(run.Status),
		EventsCount:  run.EventsCount,
		EmailsSent:   run.EmailsSent,
		EmailsFailed: run.EmailsFailed,
		DurationMs:   *run.DurationMs,
		CompletedAt:  *run.CompletedAt,
	}); err != nil {
		logger.WithError(err).Warn("Failed to publish run completed event")
	}
}

// SendTest sends a preview of the digest to one address. It reads the lookback
// window without touching the watermark and records no Run.
func (p *DigestProcessor) SendTest(ctx context.Context, digestID, email string) (string, error) {
	now := p.now()

	digest, err := p.digests.GetByID(ctx, digestID)
	if err != nil {
		return "", fmt.Errorf("failed to get digest: %w", err)
	}
	if digest == nil {
		return "", fmt.Errorf("%w: %s", entities.ErrDigestNotFound, digestID)
	}

	if email == "" {
		if len(digest.TestRecipients) == 0 {
			return "", entities.ErrTestEmailRequired
		}
		email = digest.TestRecipients[0]
	}

	tmpl, err := p.templates.GetByID(ctx, digest.TemplateID)
	if err != nil {
		return "", fmt.Errorf("failed to get template: %w", err)
	}
	if tmpl == nil {
		return "", fmt.Errorf("%w: %s", entities.ErrTemplateNotFound, digest.TemplateID)
	}

	since := now.Add(-p.cfg.Lookback)
	fetched, err := p.fetch(ctx, nil, since, digest.Filters.Hints())
	if err != nil {
		return "", err
	}
	filtered := services.SortEvents(services.FilterEventsAt(fetched, digest.Filters, now), "timestamp", services.SortDescending)

	meta := entities.DigestMeta{
		DigestID:    digest.ID,
		DigestName:  digest.Name,
		Description: digest.Description,
		AccountID:   digest.OwnerAccountID,
		RunType:     entities.RunTypeTest,
		PeriodStart: since,
		PeriodEnd:   now,
	}
	return p.sender.SendTest(ctx, tmpl, filtered, email, meta)
}
