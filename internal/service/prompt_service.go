package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/transferscope/portal-api/internal/models"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
)

type promptRepository interface {
	Find(ctx context.Context, t models.PromptType) (*models.Prompt, error)
	FindAll(ctx context.Context) ([]models.Prompt, error)
	Upsert(ctx context.Context, prompt *models.Prompt) error
	Delete(ctx context.Context, t models.PromptType) error
	History(ctx context.Context, t models.PromptType, limit int) ([]models.PromptHistory, error)
}

// defaultPrompts are the compiled-in templates used until an admin saves a
// custom version for the slot.
var defaultPrompts = map[models.PromptType]string{
	models.PromptAssessment: "You are an expert college transfer advisor. " +
		"Analyze the following institutions for transfer friendliness. " +
		"Weigh admission rate, cost, size and outcomes according to the " +
		"provided weights and produce a clear comparative report with a " +
		"recommendation.",
	models.PromptPresentation: "Create a concise slide deck comparing the " +
		"selected institutions for a prospective transfer student. One idea " +
		"per slide, plain language, finish with a recommendation slide.",
	models.PromptFirecrawl: "Extract tuition, enrollment and admission " +
		"statistics from the given institution web page. Return structured " +
		"fields only; ignore marketing copy.",
}

// PromptService manages the configurable prompt slots. Reading a slot that
// was never customized returns the compiled-in default; resetting a slot
// deletes the stored row so the default shows through again.
type PromptService struct {
	repo      promptRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPromptService constructs a PromptService.
func NewPromptService(repo promptRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *PromptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PromptService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// Get returns the active prompt for the slot.
func (s *PromptService) Get(ctx context.Context, t models.PromptType) (*models.Prompt, error) {
	if !models.ValidPromptType(t) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown prompt type")
	}

	prompt, err := s.repo.Find(ctx, t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.defaultPrompt(t), nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prompt")
	}
	return prompt, nil
}

// GetAll returns active prompts for every slot, stored or default.
func (s *PromptService) GetAll(ctx context.Context) ([]models.Prompt, error) {
	stored, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prompts")
	}

	byType := make(map[models.PromptType]models.Prompt, len(stored))
	for _, p := range stored {
		byType[p.Type] = p
	}

	out := make([]models.Prompt, 0, len(defaultPrompts))
	for _, t := range []models.PromptType{models.PromptAssessment, models.PromptPresentation, models.PromptFirecrawl} {
		if p, ok := byType[t]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, *s.defaultPrompt(t))
	}
	return out, nil
}

// Active returns just the content of the active prompt for a slot.
func (s *PromptService) Active(ctx context.Context, t models.PromptType) (string, error) {
	prompt, err := s.Get(ctx, t)
	if err != nil {
		return "", err
	}
	return prompt.Content, nil
}

// Update saves new content for the slot, snapshotting the previous version.
func (s *PromptService) Update(ctx context.Context, t models.PromptType, userID string, req models.UpdatePromptRequest) (*models.Prompt, error) {
	if !models.ValidPromptType(t) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown prompt type")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prompt payload")
	}

	prompt := &models.Prompt{
		Type:      t,
		Content:   req.Content,
		Source:    "custom",
		UpdatedBy: &userID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, prompt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save prompt")
	}

	if err := s.cache.Invalidate(ctx, "prompt:*"); err != nil {
		s.logger.Warn("failed to invalidate prompt cache", zap.Error(err))
	}
	return prompt, nil
}

// Reset removes the stored version so the compiled-in default applies.
func (s *PromptService) Reset(ctx context.Context, t models.PromptType) (*models.Prompt, error) {
	if !models.ValidPromptType(t) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown prompt type")
	}
	if err := s.repo.Delete(ctx, t); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset prompt")
	}
	if err := s.cache.Invalidate(ctx, "prompt:*"); err != nil {
		s.logger.Warn("failed to invalidate prompt cache", zap.Error(err))
	}
	return s.defaultPrompt(t), nil
}

// History lists prior versions for the slot, newest first.
func (s *PromptService) History(ctx context.Context, t models.PromptType, limit int) ([]models.PromptHistory, error) {
	if !models.ValidPromptType(t) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown prompt type")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	history, err := s.repo.History(ctx, t, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prompt history")
	}
	return history, nil
}

func (s *PromptService) defaultPrompt(t models.PromptType) *models.Prompt {
	return &models.Prompt{
		Type:    t,
		Content: defaultPrompts[t],
		Source:  "default",
	}
}
