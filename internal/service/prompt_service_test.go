package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/transferscope/portal-api/internal/models"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
)

type mockPromptRepo struct {
	stored  map[models.PromptType]*models.Prompt
	history []models.PromptHistory
	deleted []models.PromptType
}

func newMockPromptRepo() *mockPromptRepo {
	return &mockPromptRepo{stored: make(map[models.PromptType]*models.Prompt)}
}

func (m *mockPromptRepo) Find(ctx context.Context, t models.PromptType) (*models.Prompt, error) {
	p, ok := m.stored[t]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

func (m *mockPromptRepo) FindAll(ctx context.Context) ([]models.Prompt, error) {
	out := make([]models.Prompt, 0, len(m.stored))
	for _, p := range m.stored {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockPromptRepo) Upsert(ctx context.Context, prompt *models.Prompt) error {
	if prev, ok := m.stored[prompt.Type]; ok {
		m.history = append(m.history, models.PromptHistory{Type: prev.Type, Content: prev.Content})
	}
	m.stored[prompt.Type] = prompt
	return nil
}

func (m *mockPromptRepo) Delete(ctx context.Context, t models.PromptType) error {
	delete(m.stored, t)
	m.deleted = append(m.deleted, t)
	return nil
}

func (m *mockPromptRepo) History(ctx context.Context, t models.PromptType, limit int) ([]models.PromptHistory, error) {
	return m.history, nil
}

func TestPromptGetFallsBackToDefault(t *testing.T) {
	svc := NewPromptService(newMockPromptRepo(), nil, nil, zap.NewNop())

	prompt, err := svc.Get(context.Background(), models.PromptAssessment)
	require.NoError(t, err)
	assert.Equal(t, "default", prompt.Source)
	assert.NotEmpty(t, prompt.Content)
}

func TestPromptGetUnknownType(t *testing.T) {
	svc := NewPromptService(newMockPromptRepo(), nil, nil, zap.NewNop())

	_, err := svc.Get(context.Background(), models.PromptType("bogus"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPromptUpdateThenReset(t *testing.T) {
	repo := newMockPromptRepo()
	svc := NewPromptService(repo, nil, nil, zap.NewNop())

	updated, err := svc.Update(context.Background(), models.PromptAssessment, "a1", models.UpdatePromptRequest{Content: "custom content"})
	require.NoError(t, err)
	assert.Equal(t, "custom", updated.Source)

	prompt, err := svc.Get(context.Background(), models.PromptAssessment)
	require.NoError(t, err)
	assert.Equal(t, "custom content", prompt.Content)

	reset, err := svc.Reset(context.Background(), models.PromptAssessment)
	require.NoError(t, err)
	assert.Equal(t, "default", reset.Source)
	assert.Equal(t, []models.PromptType{models.PromptAssessment}, repo.deleted)

	prompt, err = svc.Get(context.Background(), models.PromptAssessment)
	require.NoError(t, err)
	assert.Equal(t, "default", prompt.Source)
}

func TestPromptGetAllMergesStoredAndDefault(t *testing.T) {
	repo := newMockPromptRepo()
	repo.stored[models.PromptPresentation] = &models.Prompt{Type: models.PromptPresentation, Content: "custom deck", Source: "custom"}
	svc := NewPromptService(repo, nil, nil, zap.NewNop())

	all, err := svc.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)

	sources := make(map[models.PromptType]string, len(all))
	for _, p := range all {
		sources[p.Type] = p.Source
	}
	assert.Equal(t, "default", sources[models.PromptAssessment])
	assert.Equal(t, "custom", sources[models.PromptPresentation])
	assert.Equal(t, "default", sources[models.PromptFirecrawl])
}

func TestPromptHistoryRecordsPriorVersions(t *testing.T) {
	repo := newMockPromptRepo()
	svc := NewPromptService(repo, nil, nil, zap.NewNop())

	_, err := svc.Update(context.Background(), models.PromptAssessment, "a1", models.UpdatePromptRequest{Content: "v1"})
	require.NoError(t, err)
	_, err = svc.Update(context.Background(), models.PromptAssessment, "a1", models.UpdatePromptRequest{Content: "v2"})
	require.NoError(t, err)

	history, err := svc.History(context.Background(), models.PromptAssessment, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "v1", history[0].Content)
}
