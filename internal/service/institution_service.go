package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/transferscope/portal-api/internal/models"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
)

type institutionRepository interface {
	Search(ctx context.Context, query string, limit int) ([]models.Institution, error)
	FindByNames(ctx context.Context, names []string) ([]models.Institution, error)
}

// SearchConfig bounds the institution search endpoint.
type SearchConfig struct {
	CacheTTL   time.Duration
	MaxResults int
}

// InstitutionService searches the institution catalog with a Redis cache
// keyed by the normalized query.
type InstitutionService struct {
	repo      institutionRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	config    SearchConfig
}

// NewInstitutionService constructs an InstitutionService.
func NewInstitutionService(repo institutionRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger, config SearchConfig) *InstitutionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 20
	}
	return &InstitutionService{repo: repo, cache: cache, validator: validate, logger: logger, config: config}
}

// Search returns institutions matching the query by name, city or state.
func (s *InstitutionService) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid search payload")
	}

	normalized := strings.ToLower(strings.TrimSpace(req.Query))
	cacheKey := "search:institutions:" + normalized

	var cached models.SearchResponse
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	schools, err := s.repo.Search(ctx, normalized, s.config.MaxResults)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search institutions")
	}

	resp := &models.SearchResponse{Schools: schools}
	if err := s.cache.Set(ctx, cacheKey, resp, s.config.CacheTTL); err != nil {
		s.logger.Warn("failed to cache search results", zap.String("query", normalized), zap.Error(err))
	}
	return resp, nil
}

// Lookup loads institutions by exact name, preserving request order.
// Unknown names are omitted rather than failing the whole lookup.
func (s *InstitutionService) Lookup(ctx context.Context, names []string) ([]models.Institution, error) {
	if len(names) == 0 {
		return nil, nil
	}
	institutions, err := s.repo.FindByNames(ctx, names)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institutions")
	}
	return institutions, nil
}
