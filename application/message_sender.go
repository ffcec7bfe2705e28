package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"
	"github.com/phumblot-gs/gs-stream-digest-sub000/infrastructure/observability"

	log "github.com/sirupsen/logrus"
)

// TestSubjectPrefix marks preview emails
const TestSubjectPrefix = "[TEST] "

// MessageSender renders a digest once and delivers it to each recipient
type MessageSender struct {
	renderer     interfaces.TemplateRenderer
	provider     interfaces.EmailProvider
	deliveryLogs interfaces.DeliveryLogRepository
	from         string
}

// NewMessageSender creates a new message sender
func NewMessageSender(
	renderer interfaces.TemplateRenderer,
	provider interfaces.EmailProvider,
	deliveryLogs interfaces.DeliveryLogRepository,
	from string,
) *MessageSender {
	return &MessageSender{
		renderer:     renderer,
		provider:     provider,
		deliveryLogs: deliveryLogs,
		from:         from,
	}
}

// SendBatch renders the template once and sends it to every recipient.
// A failed recipient is logged and counted; it never stops the batch.
// Only render errors are returned.
func (s *MessageSender) SendBatch(
	ctx context.Context,
	run *entities.Run,
	tmpl *entities.Template,
	events []entities.DigestEvent,
	recipients []string,
	meta entities.DigestMeta,
) (entities.SendResult, error) {
	var result entities.SendResult

	rendered, err := s.renderer.Render(tmpl, events, meta)
	if err != nil {
		return result, fmt.Errorf("failed to render template: %w", err)
	}

	for _, recipient := range recipients {
		entry := &entities.DeliveryLog{
			RunID:     run.ID,
			DigestID:  run.DigestID,
			Recipient: recipient,
			Status:    entities.DeliveryStatusPending,
		}
		// A recipient without a log row counts as failed and is not contacted
		if err := s.deliveryLogs.Create(ctx, entry); err != nil {
			result.Failed++
			observability.GetMetrics().RecordEmail(observability.EmailStatusFailed)
			log.WithFields(log.Fields{
				"run_id":    run.ID,
				"digest_id": run.DigestID,
				"recipient": recipient,
				"error":     err,
			}).Error("Failed to create delivery log")
			continue
		}

		messageID, sendErr := s.provider.Send(ctx, s.buildMessage(rendered, recipient, run.ID, run.DigestID, ""))
		if sendErr != nil {
			result.Failed++
			observability.GetMetrics().RecordEmail(observability.EmailStatusFailed)

			errMsg := deliveryErrorMessage(sendErr)
			log.WithFields(log.Fields{
				"run_id":    run.ID,
				"digest_id": run.DigestID,
				"recipient": recipient,
				"error":     sendErr,
			}).Warn("Failed to send digest email")

			if err := s.deliveryLogs.MarkFailed(ctx, entry.ID, errMsg); err != nil {
				log.WithError(err).WithField("delivery_log_id", entry.ID).Error("Failed to mark delivery as failed")
			}
			continue
		}

		result.Sent++
		observability.GetMetrics().RecordEmail(observability.EmailStatusSent)
		if err := s.deliveryLogs.MarkSent(ctx, entry.ID, messageID); err != nil {
			log.WithError(err).WithField("delivery_log_id", entry.ID).Error("Failed to mark delivery as sent")
		}
	}

	log.WithFields(log.Fields{
		"run_id":     run.ID,
		"digest_id":  run.DigestID,
		"recipients": len(recipients),
		"sent":       result.Sent,
		"failed":     result.Failed,
	}).Info("Digest batch delivered")

	return result, nil
}

// SendTest renders and sends a preview to one address. No delivery log is written.
func (s *MessageSender) SendTest(
	ctx context.Context,
	tmpl *entities.Template,
	events []entities.DigestEvent,
	recipient string,
	meta entities.DigestMeta,
) (string, error) {
	rendered, err := s.renderer.Render(tmpl, events, meta)
	if err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}

	messageID, err := s.provider.Send(ctx, s.buildMessage(rendered, recipient, meta.RunID, meta.DigestID, TestSubjectPrefix))
	if err != nil {
		var providerErr *entities.ProviderError
		if errors.As(err, &providerErr) && providerErr.Kind == entities.ProviderErrorAuth {
			return "", fmt.Errorf("failed to send test email: %s: %w", entities.ProviderAuthMessage, err)
		}
		return "", fmt.Errorf("failed to send test email: %w", err)
	}

	log.WithFields(log.Fields{
		"digest_id":  meta.DigestID,
		"recipient":  recipient,
		"message_id": messageID,
	}).Info("Test digest email sent")

	return messageID, nil
}

func (s *MessageSender) buildMessage(rendered *entities.RenderedMessage, recipient, runID, digestID, subjectPrefix string) entities.EmailMessage {
	tags := []entities.EmailTag{{Name: "digest_id", Value: digestID}}
	if runID != "" {
		tags = append(tags, entities.EmailTag{Name: "run_id", Value: runID})
	}
	return entities.EmailMessage{
		From:    s.from,
		To:      []string{recipient},
		Subject: subjectPrefix + rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
		Tags:    tags,
	}
}

// deliveryErrorMessage is the text stored on a failed delivery log
func deliveryErrorMessage(err error) string {
	var providerErr *entities.ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.UserMessage()
	}
	return err.Error()
}
