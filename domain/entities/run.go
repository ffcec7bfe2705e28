package entities

import (
	"encoding/json"
	"time"
)

// RunType identifies what triggered a digest run
type RunType string

const (
	RunTypeScheduled RunType = "scheduled"
	RunTypeManual    RunType = "manual"
	RunTypeTest      RunType = "test"
)

// IsValid returns true if the run type is known
func (t RunType) IsValid() bool {
	switch t {
	case RunTypeScheduled, RunTypeManual, RunTypeTest:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of a run
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusSuccess    RunStatus = "success"
	RunStatusPartial    RunStatus = "partial"
	RunStatusFailed     RunStatus = "failed"
)

// IsTerminal returns true once the status can no longer change
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusPartial || s == RunStatusFailed
}

// Run is one recorded execution attempt of a digest pipeline
type Run struct {
	ID             string          `db:"id"`
	DigestID       string          `db:"digest_id"`
	RunAt          time.Time       `db:"run_at"`
	RunType        RunType         `db:"run_type"`
	Status         RunStatus       `db:"status"`
	TriggeredBy    *string         `db:"triggered_by"`
	EventsCount    int             `db:"events_count"`
	EventsSnapshot json.RawMessage `db:"events_snapshot"`
	SnapshotKey    *string         `db:"snapshot_key"`    // Object storage key when the snapshot was archived
	EventUIDStart  *string         `db:"event_uid_start"` // Oldest processed uid
	EventUIDEnd    *string         `db:"event_uid_end"`   // Newest processed uid
	EmailsSent     int             `db:"emails_sent"`
	EmailsFailed   int             `db:"emails_failed"`
	Error          *string         `db:"error"`
	DurationMs     *int64          `db:"duration_ms"`
	CompletedAt    *time.Time      `db:"completed_at"`
	CreatedAt      time.Time       `db:"created_at"`
}

// CanTransitionTo enforces pending -> processing -> {success|partial|failed}
func (r *Run) CanTransitionTo(next RunStatus) bool {
	switch r.Status {
	case RunStatusPending:
		return next == RunStatusProcessing || next == RunStatusFailed
	case RunStatusProcessing:
		return next.IsTerminal()
	}
	return false
}

// IsTest returns true for runs that must not touch the production watermark
func (r *Run) IsTest() bool {
	return r.RunType == RunTypeTest
}

// Succeed records a finished delivery. Any failed recipient makes the run partial.
func (r *Run) Succeed(events []DigestEvent, snapshot json.RawMessage, sent, failed int, completedAt time.Time, duration time.Duration) {
	r.Status = RunStatusSuccess
	if failed > 0 {
		r.Status = RunStatusPartial
	}
	r.EventsCount = len(events)
	r.EventsSnapshot = snapshot
	if len(events) > 0 {
		// events are sorted newest first
		newest := events[0].UID
		oldest := events[len(events)-1].UID
		r.EventUIDEnd = &newest
		r.EventUIDStart = &oldest
	}
	r.EmailsSent = sent
	r.EmailsFailed = failed
	r.finish(completedAt, duration)
}

// Fail records the error that ended the run
func (r *Run) Fail(err error, completedAt time.Time, duration time.Duration) {
	r.Status = RunStatusFailed
	msg := err.Error()
	r.Error = &msg
	r.finish(completedAt, duration)
}

func (r *Run) finish(completedAt time.Time, duration time.Duration) {
	ms := duration.Milliseconds()
	r.DurationMs = &ms
	r.CompletedAt = &completedAt
}
