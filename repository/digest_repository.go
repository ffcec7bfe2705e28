package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"
	"github.com/phumblot-gs/gs-stream-digest-sub000/infrastructure/observability"

	"github.com/jackc/pgx/v5"
)

const digestColumns = `
	id, owner_account_id, name, description, filters, schedule,
	recipients, test_recipients, template_id, is_active, is_paused,
	last_event_uid, last_check_at, watermark_version, created_at, updated_at`

// DigestRepository implements interfaces.DigestRepository on PostgreSQL
type DigestRepository struct {
	q Queryable
}

var _ interfaces.DigestRepository = (*DigestRepository)(nil)

// NewDigestRepository creates a new digest repository
func NewDigestRepository(q Queryable) *DigestRepository {
	return &DigestRepository{q: q}
}

// GetByID retrieves a digest by its ID
func (r *DigestRepository) GetByID(ctx context.Context, id string) (*entities.Digest, error) {
	defer observability.GetMetrics().MeasureDatabaseQuery("digest", "GetByID")()

	if !isUUID(id) {
		return nil, nil
	}

	query := `SELECT ` + digestColumns + ` FROM digests WHERE id = $1`

	digest, err := scanDigest(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get digest %s: %w", id, err)
	}
	return digest, nil
}

// ListActive returns every active digest, paused ones included
func (r *DigestRepository) ListActive(ctx context.Context) ([]*entities.Digest, error) {
	defer observability.GetMetrics().MeasureDatabaseQuery("digest", "ListActive")()

	query := `SELECT ` + digestColumns + ` FROM digests WHERE is_active ORDER BY created_at, id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active digests: %w", err)
	}
	defer rows.Close()

	var digests []*entities.Digest
	for rows.Next() {
		digest, err := scanDigest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan digest: %w", err)
		}
		digests = append(digests, digest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate digests: %w", err)
	}
	return digests, nil
}

// UpdateWatermark moves the watermark and bumps watermark_version, but only if
// the stored version still equals update.ExpectedVersion
func (r *DigestRepository) UpdateWatermark(ctx context.Context, id string, update entities.WatermarkUpdate) error {
	defer observability.GetMetrics().MeasureDatabaseQuery("digest", "UpdateWatermark")()

	query := `
		UPDATE digests
		SET last_event_uid = COALESCE($2, last_event_uid),
		    last_check_at = $3,
		    watermark_version = watermark_version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND watermark_version = $4
	`

	tag, err := r.q.Exec(ctx, query, id, update.LastEventUID, update.LastCheckAt, update.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update watermark of digest %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrWatermarkConflict
	}
	return nil
}

// Create inserts a digest
func (r *DigestRepository) Create(ctx context.Context, digest *entities.Digest) error {
	defer observability.GetMetrics().MeasureDatabaseQuery("digest", "Create")()

	filtersJSON, err := json.Marshal(digest.Filters)
	if err != nil {
		return fmt.Errorf("failed to marshal digest filters: %w", err)
	}
	scheduleJSON, err := json.Marshal(digest.Schedule)
	if err != nil {
		return fmt.Errorf("failed to marshal digest schedule: %w", err)
	}

	recipients := digest.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	testRecipients := digest.TestRecipients
	if testRecipients == nil {
		testRecipients = []string{}
	}

	query := `
		INSERT INTO digests
		(id, owner_account_id, name, description, filters, schedule, recipients,
		 test_recipients, template_id, is_active, is_paused, last_event_uid, last_check_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING watermark_version, created_at, updated_at
	`

	err = r.q.QueryRow(ctx, query,
		digest.ID,
		digest.OwnerAccountID,
		digest.Name,
		digest.Description,
		filtersJSON,
		scheduleJSON,
		recipients,
		testRecipients,
		digest.TemplateID,
		digest.IsActive,
		digest.IsPaused,
		digest.LastEventUID,
		digest.LastCheckAt,
	).Scan(&digest.WatermarkVersion, &digest.CreatedAt, &digest.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create digest %s: %w", digest.ID, err)
	}
	return nil
}

// SetPaused toggles the pause flag of a digest
func (r *DigestRepository) SetPaused(ctx context.Context, id string, paused bool) error {
	defer observability.GetMetrics().MeasureDatabaseQuery("digest", "SetPaused")()

	if !isUUID(id) {
		return entities.ErrDigestNotFound
	}

	tag, err := r.q.Exec(ctx, `UPDATE digests SET is_paused = $2, updated_at = NOW() WHERE id = $1`, id, paused)
	if err != nil {
		return fmt.Errorf("failed to update pause state of digest %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrDigestNotFound
	}
	return nil
}

func scanDigest(row pgx.Row) (*entities.Digest, error) {
	var digest entities.Digest
	var filtersJSON, scheduleJSON []byte

	err := row.Scan(
		&digest.ID,
		&digest.OwnerAccountID,
		&digest.Name,
		&digest.Description,
		&filtersJSON,
		&scheduleJSON,
		&digest.Recipients,
		&digest.TestRecipients,
		&digest.TemplateID,
		&digest.IsActive,
		&digest.IsPaused,
		&digest.LastEventUID,
		&digest.LastCheckAt,
		&digest.WatermarkVersion,
		&digest.CreatedAt,
		&digest.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(filtersJSON) > 0 {
		if err := json.Unmarshal(filtersJSON, &digest.Filters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal filters of digest %s: %w", digest.ID, err)
		}
	}
	if len(scheduleJSON) > 0 {
		if err := json.Unmarshal(scheduleJSON, &digest.Schedule); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schedule of digest %s: %w", digest.ID, err)
		}
	}
	return &digest, nil
}
