package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/transferscope/portal-api/internal/models"
)

const institutionColumns = `id, name, city, state, ownership, student_size, admission_rate, in_state_tuition, out_of_state_tuition, median_earnings_10yr, created_at, updated_at`

// InstitutionRepository reads the institution catalog.
type InstitutionRepository struct {
	db *sqlx.DB
}

// NewInstitutionRepository creates a new instance of InstitutionRepository.
func NewInstitutionRepository(db *sqlx.DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

// Search returns institutions whose name, city or state matches the query.
func (r *InstitutionRepository) Search(ctx context.Context, query string, limit int) ([]models.Institution, error) {
	if limit <= 0 {
		limit = 20
	}
	sqlQuery := fmt.Sprintf(`SELECT %s FROM institutions WHERE name ILIKE $1 OR city ILIKE $1 OR state ILIKE $1 ORDER BY student_size DESC LIMIT %d`, institutionColumns, limit)

	var institutions []models.Institution
	pattern := "%" + strings.TrimSpace(query) + "%"
	if err := r.db.SelectContext(ctx, &institutions, sqlQuery, pattern); err != nil {
		return nil, fmt.Errorf("search institutions: %w", err)
	}
	return institutions, nil
}

// FindByNames resolves a list of institution names, preserving request order.
// Names with no catalog match are silently dropped.
func (r *InstitutionRepository) FindByNames(ctx context.Context, names []string) ([]models.Institution, error) {
	if len(names) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(names))
	args := make([]interface{}, len(names))
	for i, name := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = name
	}
	sqlQuery := fmt.Sprintf(`SELECT %s FROM institutions WHERE name IN (%s)`, institutionColumns, strings.Join(placeholders, ", "))

	var rows []models.Institution
	if err := r.db.SelectContext(ctx, &rows, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("find institutions by name: %w", err)
	}

	byName := make(map[string]models.Institution, len(rows))
	for _, inst := range rows {
		byName[inst.Name] = inst
	}

	ordered := make([]models.Institution, 0, len(names))
	for _, name := range names {
		if inst, ok := byName[name]; ok {
			ordered = append(ordered, inst)
		}
	}
	return ordered, nil
}
