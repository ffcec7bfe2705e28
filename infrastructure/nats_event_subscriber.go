package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/events"
	"github.com/phumblot-gs/gs-stream-digest-sub000/infrastructure/observability"

	log "github.com/sirupsen/logrus"
)

// messageSubscriber is the part of NATSClient the subscriber needs
type messageSubscriber interface {
	Subscribe(subject string, handler func([]byte) error) error
}

// NATSEventSubscriber subscribes to NATS subjects and deserializes events for application handlers
type NATSEventSubscriber struct {
	natsClient    messageSubscriber
	subjectMapper *EventSubjectMapper
	handlers      map[string]func(context.Context, events.Event) error
}

// NewNATSEventSubscriber creates a new NATS event subscriber
func NewNATSEventSubscriber(natsClient messageSubscriber, subjectMapper *EventSubjectMapper) *NATSEventSubscriber {
	return &NATSEventSubscriber{
		natsClient:    natsClient,
		subjectMapper: subjectMapper,
		handlers:      make(map[string]func(context.Context, events.Event) error),
	}
}

// Subscribe registers a handler for a specific event type
func (s *NATSEventSubscriber) Subscribe(eventType events.EventType, handler func(context.Context, events.Event) error) error {
	subject := s.subjectMapper.MapEventTypeToSubject(eventType)
	s.handlers[subject] = handler

	log.WithFields(log.Fields{
		"eventType": eventType,
		"subject":   subject,
	}).Info("Registering event handler for subject")

	return s.natsClient.Subscribe(subject, func(data []byte) error {
		return s.handleMessage(subject, data)
	})
}

// handleMessage deserializes a NATS message and routes it to the subject's handler
func (s *NATSEventSubscriber) handleMessage(subject string, data []byte) error {
	var envelope EventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}

	eventType := events.EventType(envelope.EventType)
	observability.GetMetrics().RecordNATSMessage(observability.NATSDirectionReceived, envelope.EventType)

	event, err := deserializeEvent(eventType, envelope.Payload)
	if err != nil {
		log.WithFields(log.Fields{
			"subject":     subject,
			"eventType":   eventType,
			"eventId":     envelope.EventID,
			"payloadSize": len(envelope.Payload),
			"error":       err,
		}).Error("Failed to deserialize event payload")
		return fmt.Errorf("failed to deserialize event payload: %w", err)
	}

	handler, exists := s.handlers[subject]
	if !exists {
		return fmt.Errorf("no handler registered for subject %s", subject)
	}

	if err := handler(context.Background(), event); err != nil {
		log.WithFields(log.Fields{
			"subject":   subject,
			"eventType": eventType,
			"eventId":   envelope.EventID,
			"error":     err,
		}).Error("Event handler failed")
		return err
	}

	log.WithFields(log.Fields{
		"subject":   subject,
		"eventType": eventType,
		"eventId":   envelope.EventID,
	}).Debug("Successfully processed NATS event")
	return nil
}

// deserializeEvent decodes the payload into the event type's struct
func deserializeEvent(eventType events.EventType, payload []byte) (events.Event, error) {
	var event events.Event

	switch eventType {
	case events.EventTypeDigestConfigChanged:
		event = &events.DigestConfigChangedEvent{}
	case events.EventTypeDigestRunSkipped:
		event = &events.DigestRunSkippedEvent{}
	case events.EventTypeDigestRunCompleted:
		event = &events.DigestRunCompletedEvent{}
	case events.EventTypeDigestRunFailed:
		event = &events.DigestRunFailedEvent{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, err
	}
	return event, nil
}
