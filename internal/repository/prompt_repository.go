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

// PromptRepository stores prompt overrides and their edit history.
type PromptRepository struct {
	db *sqlx.DB
}

// NewPromptRepository creates a new instance of PromptRepository.
func NewPromptRepository(db *sqlx.DB) *PromptRepository {
	return &PromptRepository{db: db}
}

// Find returns the stored override for a prompt slot, sql.ErrNoRows when the
// slot still serves its compiled-in default.
func (r *PromptRepository) Find(ctx context.Context, t models.PromptType) (*models.Prompt, error) {
	const query = `SELECT type, content, source, updated_by, updated_at FROM prompts WHERE type = $1 LIMIT 1`
	var prompt models.Prompt
	if err := r.db.GetContext(ctx, &prompt, query, t); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find prompt: %w", err)
	}
	return &prompt, nil
}

// FindAll returns every stored prompt override.
func (r *PromptRepository) FindAll(ctx context.Context) ([]models.Prompt, error) {
	const query = `SELECT type, content, source, updated_by, updated_at FROM prompts ORDER BY type`
	var prompts []models.Prompt
	if err := r.db.SelectContext(ctx, &prompts, query); err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return prompts, nil
}

// Upsert writes new content for a slot and snapshots any previous content
// into the history table inside one transaction.
func (r *PromptRepository) Upsert(ctx context.Context, prompt *models.Prompt) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prompt upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var previous models.Prompt
	err = tx.GetContext(ctx, &previous, `SELECT type, content, source, updated_by, updated_at FROM prompts WHERE type = $1 FOR UPDATE`, prompt.Type)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read previous prompt: %w", err)
	}
	if err == nil {
		updatedBy := ""
		if previous.UpdatedBy != nil {
			updatedBy = *previous.UpdatedBy
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prompt_history (id, type, content, updated_by, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), previous.Type, previous.Content, updatedBy, previous.UpdatedAt); err != nil {
			return fmt.Errorf("snapshot prompt history: %w", err)
		}
	}

	prompt.UpdatedAt = time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO prompts (type, content, source, updated_by, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (type) DO UPDATE SET content = EXCLUDED.content, source = EXCLUDED.source, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`,
		prompt.Type, prompt.Content, prompt.Source, prompt.UpdatedBy, prompt.UpdatedAt); err != nil {
		return fmt.Errorf("upsert prompt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prompt upsert: %w", err)
	}
	return nil
}

// Delete removes the override so the slot falls back to its default.
func (r *PromptRepository) Delete(ctx context.Context, t models.PromptType) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM prompts WHERE type = $1`, t); err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	return nil
}

// History returns prior versions for a slot, newest first.
func (r *PromptRepository) History(ctx context.Context, t models.PromptType, limit int) ([]models.PromptHistory, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id, type, content, updated_by, updated_at FROM prompt_history WHERE type = $1 ORDER BY updated_at DESC LIMIT %d`, limit)
	var history []models.PromptHistory
	if err := r.db.SelectContext(ctx, &history, query, t); err != nil {
		return nil, fmt.Errorf("list prompt history: %w", err)
	}
	return history, nil
}
