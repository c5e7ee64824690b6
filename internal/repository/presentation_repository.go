package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/transferscope/portal-api/internal/models"
)

const presentationColumns = `id, user_id, prompt, n_slides, language, theme, export_as, status, file_path, static_url, error, created_at, updated_at`

// PresentationRepository persists presentation requests and artifacts.
type PresentationRepository struct {
	db *sqlx.DB
}

// NewPresentationRepository creates a new instance of PresentationRepository.
func NewPresentationRepository(db *sqlx.DB) *PresentationRepository {
	return &PresentationRepository{db: db}
}

// Create inserts a pending presentation record.
func (r *PresentationRepository) Create(ctx context.Context, p *models.Presentation) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	const query = `INSERT INTO presentations (id, user_id, prompt, n_slides, language, theme, export_as, status, file_path, static_url, error, created_at, updated_at) VALUES (:id, :user_id, :prompt, :n_slides, :language, :theme, :export_as, :status, :file_path, :static_url, :error, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("create presentation: %w", err)
	}
	return nil
}

// FindByID returns a presentation by identifier.
func (r *PresentationRepository) FindByID(ctx context.Context, id string) (*models.Presentation, error) {
	query := fmt.Sprintf(`SELECT %s FROM presentations WHERE id = $1 LIMIT 1`, presentationColumns)
	var p models.Presentation
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find presentation: %w", err)
	}
	return &p, nil
}

// List returns presentations newest first.
func (r *PresentationRepository) List(ctx context.Context, page, pageSize int) ([]models.Presentation, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT %s FROM presentations ORDER BY created_at DESC LIMIT %d OFFSET %d`, presentationColumns, pageSize, offset)
	var presentations []models.Presentation
	if err := r.db.SelectContext(ctx, &presentations, listQuery); err != nil {
		return nil, 0, fmt.Errorf("list presentations: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM presentations`); err != nil {
		return nil, 0, fmt.Errorf("count presentations: %w", err)
	}

	return presentations, total, nil
}

// MarkReady records the generated artifact and signed URL.
func (r *PresentationRepository) MarkReady(ctx context.Context, id, filePath, staticURL string) error {
	const query = `UPDATE presentations SET status = $2, file_path = $3, static_url = $4, error = NULL, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.PresentationReady, filePath, staticURL, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark presentation ready: %w", err)
	}
	return nil
}

// MarkFailed records a terminal generation failure.
func (r *PresentationRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `UPDATE presentations SET status = $2, error = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.PresentationFailed, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark presentation failed: %w", err)
	}
	return nil
}

// Delete removes a presentation record.
func (r *PresentationRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM presentations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete presentation: %w", err)
	}
	return nil
}
