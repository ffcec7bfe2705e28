package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"
	"github.com/phumblot-gs/gs-stream-digest-sub000/infrastructure/observability"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// DigestRunner executes a single digest run
type DigestRunner interface {
	Process(ctx context.Context, digestID string, opts ProcessOptions) (*ProcessResult, error)
}

// JobStatus describes one registered digest timer
type JobStatus struct {
	DigestID       string     `json:"digestId"`
	CronExpression string     `json:"cronExpression"`
	NextRun        *time.Time `json:"nextRun"`
}

// SchedulerStatus is a snapshot of the scheduler registry
type SchedulerStatus struct {
	IsRunning bool        `json:"isRunning"`
	Jobs      []JobStatus `json:"jobs"`
}

type registration struct {
	entryID        cron.EntryID
	cronExpression string
}

// Scheduler owns the cron timers of every live digest. One per process.
type Scheduler struct {
	digests     interfaces.DigestRepository
	runner      DigestRunner
	cron        *cron.Cron
	stopTimeout time.Duration

	mu       sync.Mutex
	registry map[string]registration
	inFlight map[string]struct{}
	started  bool
}

// NewScheduler creates a scheduler whose timers fire in UTC
func NewScheduler(digests interfaces.DigestRepository, runner DigestRunner) *Scheduler {
	return &Scheduler{
		digests:     digests,
		runner:      runner,
		cron:        cron.New(cron.WithLocation(time.UTC)),
		stopTimeout: 30 * time.Second,
		registry:    make(map[string]registration),
		inFlight:    make(map[string]struct{}),
	}
}

// Initialize schedules every active, unpaused digest and starts the timers
func (s *Scheduler) Initialize(ctx context.Context) error {
	digests, err := s.digests.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active digests: %w", err)
	}

	scheduled := 0
	for _, digest := range digests {
		if !digest.IsSchedulable() {
			continue
		}
		if err := s.ScheduleDigest(digest.ID, digest.CronExpression()); err != nil {
			log.WithError(err).WithField("digest_id", digest.ID).Error("Failed to schedule digest")
			continue
		}
		scheduled++
	}

	s.mu.Lock()
	if !s.started {
		s.cron.Start()
		s.started = true
	}
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"active":    len(digests),
		"scheduled": scheduled,
	}).Info("Digest scheduler initialized")
	return nil
}

// ScheduleDigest registers a timer for the digest, replacing any existing one
func (s *Scheduler) ScheduleDigest(digestID, cronExpression string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unscheduleLocked(digestID)

	entryID, err := s.cron.AddFunc(cronExpression, func() {
		s.runScheduled(digestID)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for digest %s: %w", cronExpression, digestID, err)
	}

	s.registry[digestID] = registration{entryID: entryID, cronExpression: cronExpression}
	observability.GetMetrics().UpdateScheduledJobs(1)

	log.WithFields(log.Fields{
		"digest_id": digestID,
		"cron":      cronExpression,
	}).Info("Digest scheduled")
	return nil
}

// UnscheduleDigest removes the digest's timer. Unknown digests are ignored.
func (s *Scheduler) UnscheduleDigest(digestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unscheduleLocked(digestID) {
		log.WithField("digest_id", digestID).Info("Digest unscheduled")
	}
}

// RescheduleDigest replaces the digest's timer with a new expression
func (s *Scheduler) RescheduleDigest(digestID, cronExpression string) error {
	s.UnscheduleDigest(digestID)
	return s.ScheduleDigest(digestID, cronExpression)
}

func (s *Scheduler) unscheduleLocked(digestID string) bool {
	reg, ok := s.registry[digestID]
	if !ok {
		return false
	}
	s.cron.Remove(reg.entryID)
	delete(s.registry, digestID)
	observability.GetMetrics().UpdateScheduledJobs(-1)
	return true
}

// SyncDigest reloads a digest and brings its timer in line with its state
func (s *Scheduler) SyncDigest(ctx context.Context, digestID string) error {
	digest, err := s.digests.GetByID(ctx, digestID)
	if err != nil {
		return fmt.Errorf("failed to get digest: %w", err)
	}
	if digest == nil || !digest.IsSchedulable() {
		s.UnscheduleDigest(digestID)
		return nil
	}

	s.mu.Lock()
	reg, ok := s.registry[digestID]
	s.mu.Unlock()

	cronExpression := digest.CronExpression()
	if ok && reg.cronExpression == cronExpression {
		return nil
	}
	return s.RescheduleDigest(digestID, cronExpression)
}

// RunDigestNow runs a digest synchronously as a manual run
func (s *Scheduler) RunDigestNow(ctx context.Context, digestID string, triggeredBy *string) (*ProcessResult, error) {
	return s.runNow(ctx, digestID, ProcessOptions{
		RunType:     entities.RunTypeManual,
		TriggeredBy: triggeredBy,
	})
}

// RunTestNow runs a digest synchronously as a test run delivered to one address
func (s *Scheduler) RunTestNow(ctx context.Context, digestID, email string, triggeredBy *string) (*ProcessResult, error) {
	return s.runNow(ctx, digestID, ProcessOptions{
		RunType:     entities.RunTypeTest,
		TriggeredBy: triggeredBy,
		TestEmail:   email,
	})
}

func (s *Scheduler) runNow(ctx context.Context, digestID string, opts ProcessOptions) (*ProcessResult, error) {
	digest, err := s.digests.GetByID(ctx, digestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get digest: %w", err)
	}
	if digest == nil {
		return nil, fmt.Errorf("%w: %s", entities.ErrDigestNotFound, digestID)
	}

	if !s.acquire(digestID) {
		return nil, fmt.Errorf("%w: %s", entities.ErrDigestAlreadyRunning, digestID)
	}
	defer s.release(digestID)

	return s.runner.Process(ctx, digestID, opts)
}

// runScheduled is the timer callback. Errors end here.
func (s *Scheduler) runScheduled(digestID string) {
	logger := log.WithFields(log.Fields{
		"digest_id": digestID,
		"run_type":  entities.RunTypeScheduled,
	})

	if !s.acquire(digestID) {
		logger.Warn("Previous run still in progress, skipping scheduled tick")
		return
	}
	defer s.release(digestID)

	if _, err := s.runner.Process(context.Background(), digestID, ProcessOptions{RunType: entities.RunTypeScheduled}); err != nil {
		logger.WithError(err).Error("Scheduled digest run failed")
	}
}

func (s *Scheduler) acquire(digestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inFlight[digestID]; busy {
		return false
	}
	s.inFlight[digestID] = struct{}{}
	return true
}

func (s *Scheduler) release(digestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, digestID)
}

// Stop removes every timer and waits for running jobs up to the stop timeout
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for digestID := range s.registry {
		s.unscheduleLocked(digestID)
	}
	started := s.started
	s.started = false
	s.mu.Unlock()

	if !started {
		return
	}

	done := s.cron.Stop()
	select {
	case <-done.Done():
		log.Info("Digest scheduler stopped")
	case <-time.After(s.stopTimeout):
		log.Warn("Digest scheduler stop timed out with runs still in progress")
	}
}

// GetStatus returns the registered timers ordered by digest ID
func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SchedulerStatus{
		IsRunning: len(s.registry) > 0,
		Jobs:      make([]JobStatus, 0, len(s.registry)),
	}
	for digestID, reg := range s.registry {
		job := JobStatus{DigestID: digestID, CronExpression: reg.cronExpression}
		if next := s.cron.Entry(reg.entryID).Next; !next.IsZero() {
			job.NextRun = &next
		}
		status.Jobs = append(status.Jobs, job)
	}
	sort.Slice(status.Jobs, func(i, j int) bool {
		return status.Jobs[i].DigestID < status.Jobs[j].DigestID
	})
	return status
}

// IsRunning reports whether a run of the digest is in progress
func (s *Scheduler) IsRunning(digestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inFlight[digestID]
	return busy
}
