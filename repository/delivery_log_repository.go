package repository

import (
	"context"
	"fmt"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"
	"github.com/phumblot-gs/gs-stream-digest-sub000/infrastructure/observability"
)

// DeliveryLogRepository implements interfaces.DeliveryLogRepository on PostgreSQL
type DeliveryLogRepository struct {
	q Queryable
}

var _ interfaces.DeliveryLogRepository = (*DeliveryLogRepository)(nil)

// NewDeliveryLogRepository creates a new delivery log repository
func NewDeliveryLogRepository(q Queryable) *DeliveryLogRepository {
	return &DeliveryLogRepository{q: q}
}

// Create inserts a pending delivery log and sets its ID
func (r *DeliveryLogRepository) Create(ctx context.Context, entry *entities.DeliveryLog) error {
	defer observability.GetMetrics().MeasureDatabaseQuery("delivery_log", "Create")()

	if entry.Status == "" {
		entry.Status = entities.DeliveryStatusPending
	}

	query := `
		INSERT INTO email_delivery_logs (run_id, digest_id, recipient, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		entry.RunID,
		entry.DigestID,
		entry.Recipient,
		string(entry.Status),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create delivery log for %s: %w", entry.Recipient, err)
	}
	return nil
}

// MarkSent records the provider message ID of a delivered email
func (r *DeliveryLogRepository) MarkSent(ctx context.Context, id int64, providerMessageID string) error {
	defer observability.GetMetrics().MeasureDatabaseQuery("delivery_log", "MarkSent")()

	query := `
		UPDATE email_delivery_logs
		SET status = 'sent', provider_message_id = $2, error = NULL, sent_at = NOW()
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, id, providerMessageID)
	if err != nil {
		return fmt.Errorf("failed to mark delivery log %d sent: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery log %d not found", id)
	}
	return nil
}

// MarkFailed records why an email could not be delivered
func (r *DeliveryLogRepository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	defer observability.GetMetrics().MeasureDatabaseQuery("delivery_log", "MarkFailed")()

	query := `
		UPDATE email_delivery_logs
		SET status = 'failed', error = $2
		WHERE id = $1
	`

	tag, err := r.q.Exec(ctx, query, id, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark delivery log %d failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery log %d not found", id)
	}
	return nil
}

// ListByRun returns the delivery logs of a run ordered by ID
func (r *DeliveryLogRepository) ListByRun(ctx context.Context, runID string) ([]*entities.DeliveryLog, error) {
	defer observability.GetMetrics().MeasureDatabaseQuery("delivery_log", "ListByRun")()

	if !isUUID(runID) {
		return nil, nil
	}

	query := `
		SELECT id, run_id, digest_id, recipient, status, provider_message_id, error, created_at, sent_at
		FROM email_delivery_logs
		WHERE run_id = $1
		ORDER BY id
	`

	rows, err := r.q.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery logs of run %s: %w", runID, err)
	}
	defer rows.Close()

	var logs []*entities.DeliveryLog
	for rows.Next() {
		var entry entities.DeliveryLog
		var status string
		if err := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.DigestID,
			&entry.Recipient,
			&status,
			&entry.ProviderMessageID,
			&entry.Error,
			&entry.CreatedAt,
			&entry.SentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan delivery log: %w", err)
		}
		entry.Status = entities.DeliveryStatus(status)
		logs = append(logs, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate delivery logs: %w", err)
	}
	return logs, nil
}
