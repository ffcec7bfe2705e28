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

// TemplateRepository implements interfaces.TemplateRepository on PostgreSQL
type TemplateRepository struct {
	q Queryable
}

var _ interfaces.TemplateRepository = (*TemplateRepository)(nil)

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(q Queryable) *TemplateRepository {
	return &TemplateRepository{q: q}
}

// GetByID retrieves a template by its ID
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*entities.Template, error) {
	defer observability.GetMetrics().MeasureDatabaseQuery("template", "GetByID")()

	if !isUUID(id) {
		return nil, nil
	}

	query := `
		SELECT id, name, subject_template, html_template, text_template, created_at, updated_at
		FROM digest_templates
		WHERE id = $1
	`

	var tmpl entities.Template
	err := r.q.QueryRow(ctx, query, id).Scan(
		&tmpl.ID,
		&tmpl.Name,
		&tmpl.SubjectTemplate,
		&tmpl.HTMLTemplate,
		&tmpl.TextTemplate,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template %s: %w", id, err)
	}
	return &tmpl, nil
}

// Create inserts a template
func (r *TemplateRepository) Create(ctx context.Context, tmpl *entities.Template) error {
	defer observability.GetMetrics().MeasureDatabaseQuery("template", "Create")()

	query := `
		INSERT INTO digest_templates (id, name, subject_template, html_template, text_template)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		tmpl.ID,
		tmpl.Name,
		tmpl.SubjectTemplate,
		tmpl.HTMLTemplate,
		tmpl.TextTemplate,
	).Scan(&tmpl.CreatedAt, &tmpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template %s: %w", tmpl.ID, err)
	}
	return nil
}
