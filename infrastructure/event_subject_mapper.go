package infrastructure

import (
	"fmt"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/events"
)

// DomainEventStream is the JetStream stream holding every digest domain event
const DomainEventStream = "digest_events"

var subjectsByEventType = map[events.EventType]string{
	events.EventTypeDigestRunSkipped:    "digests.runs.skipped",
	events.EventTypeDigestRunCompleted:  "digests.runs.completed",
	events.EventTypeDigestRunFailed:     "digests.runs.failed",
	events.EventTypeDigestConfigChanged: "digests.config.changed",
}

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	return m.MapEventTypeToSubject(event.Type())
}

// MapEventTypeToSubject converts an event type to its NATS subject
func (m *EventSubjectMapper) MapEventTypeToSubject(eventType events.EventType) string {
	if subject, ok := subjectsByEventType[eventType]; ok {
		return subject
	}
	return fmt.Sprintf("unknown.%s", eventType)
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	for eventType, s := range subjectsByEventType {
		if s == subject {
			return eventType
		}
	}
	return events.EventType(subject)
}

// GetAllSubjects returns every subject of the domain event stream
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		"digests.runs.skipped",
		"digests.runs.completed",
		"digests.runs.failed",
		"digests.config.changed",
	}
}
