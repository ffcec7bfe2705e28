package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/entities"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"
	"github.com/phumblot-gs/gs-stream-digest-sub000/infrastructure/observability"

	"github.com/jackc/pgx/v5"
)

const runColumns = `
	id, digest_id, run_at, run_type, status, triggered_by, events_count,
	events_snapshot, snapshot_key, event_uid_start, event_uid_end,
	emails_sent, emails_failed, error, duration_ms, completed_at, created_at`

// RunRepository implements interfaces.RunRepository on PostgreSQL
type RunRepository struct {
	q Queryable
}

var _ interfaces.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a new run repository
func NewRunRepository(q Queryable) *RunRepository {
	return &RunRepository{q: q}
}

// Create inserts a new run
func (r *RunRepository) Create(ctx context.Context, run *entities.Run) error {
	defer observability.GetMetrics().MeasureDatabaseQuery("run", "Create")()

	query := `
		INSERT INTO digest_runs (id, digest_id, run_at, run_type, status, triggered_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.q.QueryRow(ctx, query,
		run.ID,
		run.DigestID,
		run.RunAt,
		string(run.RunType),
		string(run.Status),
		run.TriggeredBy,
	).Scan(&run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// Complete writes the terminal state of a run. Rows already in a terminal
// status are never rewritten.
func (r *RunRepository) Complete(ctx context.Context, run *entities.Run) error {
	defer observability.GetMetrics().MeasureDatabaseQuery("run", "Complete")()

	if !run.Status.IsTerminal() {
		return fmt.Errorf("run %s cannot be completed with status %s", run.ID, run.Status)
	}

	var snapshot []byte
	if len(run.EventsSnapshot) > 0 {
		snapshot = run.EventsSnapshot
	}

	query := `
		UPDATE digest_runs
		SET status = $2,
		    events_count = $3,
		    events_snapshot = $4,
		    snapshot_key = $5,
		    event_uid_start = $6,
		    event_uid_end = $7,
		    emails_sent = $8,
		    emails_failed = $9,
		    error = $10,
		    duration_ms = $11,
		    completed_at = $12
		WHERE id = $1 AND status IN ('pending', 'processing')
	`

	tag, err := r.q.Exec(ctx, query,
		run.ID,
		string(run.Status),
		run.EventsCount,
		snapshot,
		run.SnapshotKey,
		run.EventUIDStart,
		run.EventUIDEnd,
		run.EmailsSent,
		run.EmailsFailed,
		run.Error,
		run.DurationMs,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrRunFinalized
	}
	return nil
}

// GetByID retrieves a run by its ID
func (r *RunRepository) GetByID(ctx context.Context, id string) (*entities.Run, error) {
	defer observability.GetMetrics().MeasureDatabaseQuery("run", "GetByID")()

	if !isUUID(id) {
		return nil, nil
	}

	query := `SELECT ` + runColumns + ` FROM digest_runs WHERE id = $1`

	run, err := scanRun(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListByDigest returns the most recent runs of a digest, newest first
func (r *RunRepository) ListByDigest(ctx context.Context, digestID string, limit int) ([]*entities.Run, error) {
	defer observability.GetMetrics().MeasureDatabaseQuery("run", "ListByDigest")()

	if !isUUID(digestID) {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM digest_runs WHERE digest_id = $1 ORDER BY run_at DESC, created_at DESC LIMIT $2`

	rows, err := r.q.Query(ctx, query, digestID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs of digest %s: %w", digestID, err)
	}
	defer rows.Close()

	var runs []*entities.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*entities.Run, error) {
	var run entities.Run
	var runType, status string
	var snapshot []byte

	err := row.Scan(
		&run.ID,
		&run.DigestID,
		&run.RunAt,
		&runType,
		&status,
		&run.TriggeredBy,
		&run.EventsCount,
		&snapshot,
		&run.SnapshotKey,
		&run.EventUIDStart,
		&run.EventUIDEnd,
		&run.EmailsSent,
		&run.EmailsFailed,
		&run.Error,
		&run.DurationMs,
		&run.CompletedAt,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.RunType = entities.RunType(runType)
	run.Status = entities.RunStatus(status)
	if len(snapshot) > 0 {
		run.EventsSnapshot = snapshot
	}
	return &run, nil
}
