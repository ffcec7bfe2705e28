package entities

import (
	"time"
)

// EventSource identifies the application and environment that produced an event
type EventSource struct {
	Application string `json:"application"`
	Environment string `json:"environment"`
}

// DigestEvent is an immutable domain fact read from the event bus
type DigestEvent struct {
	UID       string         `json:"uid"`
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"eventType"`
	AccountID string         `json:"accountId"`
	UserID    *string        `json:"userId,omitempty"`
	Source    EventSource    `json:"source"`
	Data      map[string]any `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Document returns the event in the JSON shape filter paths are written against,
// e.g. "source.application" or "data.files[0].name".
func (e *DigestEvent) Document() map[string]any {
	doc := map[string]any{
		"uid":       e.UID,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		"eventType": e.EventType,
		"accountId": e.AccountID,
		"source": map[string]any{
			"application": e.Source.Application,
			"environment": e.Source.Environment,
		},
	}
	if e.UserID != nil {
		doc["userId"] = *e.UserID
	}
	if e.Data != nil {
		doc["data"] = e.Data
	}
	if e.Metadata != nil {
		doc["metadata"] = e.Metadata
	}
	return doc
}

// FilterOperator is the comparison a field filter applies
type FilterOperator string

const (
	OperatorEquals      FilterOperator = "equals"
	OperatorNotEquals   FilterOperator = "not_equals"
	OperatorContains    FilterOperator = "contains"
	OperatorNotContains FilterOperator = "not_contains"
	OperatorExists      FilterOperator = "exists"
	OperatorNotExists   FilterOperator = "not_exists"
)

// FieldFilter is a predicate on a value inside the event document
type FieldFilter struct {
	Path     string         `json:"path"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value,omitempty"`
}

// EventFilters is the conjunctive predicate set attached to a digest.
// Nil or empty lists mean "no constraint".
type EventFilters struct {
	AccountIDs         []string      `json:"accountIds,omitempty"`
	EventTypes         []string      `json:"eventTypes,omitempty"`
	SourceApplications []string      `json:"sourceApplications,omitempty"`
	SourceEnvironments []string      `json:"sourceEnvironments,omitempty"`
	UserIDs            []string      `json:"userIds,omitempty"`
	MaxAgeHours        *float64      `json:"maxAgeHours,omitempty"`
	FieldFilters       []FieldFilter `json:"fieldFilters,omitempty"`
}

// IsEmpty returns true if no predicate is configured
func (f EventFilters) IsEmpty() bool {
	return len(f.AccountIDs) == 0 &&
		len(f.EventTypes) == 0 &&
		len(f.SourceApplications) == 0 &&
		len(f.SourceEnvironments) == 0 &&
		len(f.UserIDs) == 0 &&
		f.MaxAgeHours == nil &&
		len(f.FieldFilters) == 0
}

// FetchHints narrows the event bus query. The bus only accepts a single account.
type FetchHints struct {
	AccountID  string
	EventTypes []string
}

// Hints derives the bus query hints from the filters
func (f EventFilters) Hints() FetchHints {
	hints := FetchHints{EventTypes: f.EventTypes}
	if len(f.AccountIDs) == 1 {
		hints.AccountID = f.AccountIDs[0]
	}
	return hints
}

// EventStats summarises an event batch
type EventStats struct {
	Total         int            `json:"total"`
	ByType        map[string]int `json:"byType"`
	ByAccount     map[string]int `json:"byAccount"`
	ByApplication map[string]int `json:"byApplication"`
	TimeRange     TimeRange      `json:"timeRange"`
}

// TimeRange is the span covered by a batch; both ends are nil for an empty batch
type TimeRange struct {
	Earliest *time.Time `json:"earliest"`
	Latest   *time.Time `json:"latest"`
}
