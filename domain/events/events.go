package events

import "time"

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeDigestRunSkipped    EventType = "digest_run_skipped"
	EventTypeDigestRunCompleted  EventType = "digest_run_completed"
	EventTypeDigestRunFailed     EventType = "digest_run_failed"
	EventTypeDigestConfigChanged EventType = "digest_config_changed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// DigestRunSkippedEvent is published when a digest is triggered while inactive or paused
type DigestRunSkippedEvent struct {
	DigestID string    `json:"digestId"`
	RunType  string    `json:"runType"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

func (e DigestRunSkippedEvent) Type() EventType {
	return EventTypeDigestRunSkipped
}

// DigestRunCompletedEvent is published once a run reached success or partial
type DigestRunCompletedEvent struct {
	DigestID     string    `json:"digestId"`
	RunID        string    `json:"runId"`
	RunType      string    `json:"runType"`
	Status       string    `json:"status"`
	EventsCount  int       `json:"eventsCount"`
	EmailsSent   int       `json:"emailsSent"`
	EmailsFailed int       `json:"emailsFailed"`
	DurationMs   int64     `json:"durationMs"`
	CompletedAt  time.Time `json:"completedAt"`
}

func (e DigestRunCompletedEvent) Type() EventType {
	return EventTypeDigestRunCompleted
}

// DigestRunFailedEvent is published when a run ended in the failed state
type DigestRunFailedEvent struct {
	DigestID string    `json:"digestId"`
	RunID    string    `json:"runId"`
	RunType  string    `json:"runType"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}

func (e DigestRunFailedEvent) Type() EventType {
	return EventTypeDigestRunFailed
}

// DigestConfigChangedEvent is sent after a digest is created, updated,
// paused, resumed or deleted
type DigestConfigChangedEvent struct {
	DigestID string `json:"digestId"`
	Action   string `json:"action"` // "created", "updated", "paused", "resumed", "deleted"
}

func (e DigestConfigChangedEvent) Type() EventType {
	return EventTypeDigestConfigChanged
}
