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

const comparisonColumns = `id, user_id, schools, weights, schools_data, ai_report, completed, created_at`

// ComparisonRepository persists finished streaming comparison results.
type ComparisonRepository struct {
	db *sqlx.DB
}

// NewComparisonRepository creates a new instance of ComparisonRepository.
func NewComparisonRepository(db *sqlx.DB) *ComparisonRepository {
	return &ComparisonRepository{db: db}
}

// Create stores a comparison result.
func (r *ComparisonRepository) Create(ctx context.Context, cmp *models.Comparison) error {
	if cmp.ID == "" {
		cmp.ID = uuid.NewString()
	}
	if cmp.CreatedAt.IsZero() {
		cmp.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO comparisons (id, user_id, schools, weights, schools_data, ai_report, completed, created_at) VALUES (:id, :user_id, :schools, :weights, :schools_data, :ai_report, :completed, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cmp); err != nil {
		return fmt.Errorf("create comparison: %w", err)
	}
	return nil
}

// FindByID returns one stored comparison.
func (r *ComparisonRepository) FindByID(ctx context.Context, id string) (*models.Comparison, error) {
	query := fmt.Sprintf(`SELECT %s FROM comparisons WHERE id = $1 LIMIT 1`, comparisonColumns)
	var cmp models.Comparison
	if err := r.db.GetContext(ctx, &cmp, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find comparison: %w", err)
	}
	return &cmp, nil
}

// List returns stored comparisons in descending creation-time order.
func (r *ComparisonRepository) List(ctx context.Context, filter models.ComparisonFilter) ([]models.Comparison, int, error) {
	baseQuery := `FROM comparisons WHERE 1=1`
	var args []interface{}

	if filter.UserID != nil {
		baseQuery += fmt.Sprintf(" AND user_id = $%d", len(args)+1)
		args = append(args, *filter.UserID)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", comparisonColumns, baseQuery, pageSize, offset)

	var comparisons []models.Comparison
	if err := r.db.SelectContext(ctx, &comparisons, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list comparisons: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count comparisons: %w", err)
	}

	return comparisons, total, nil
}
