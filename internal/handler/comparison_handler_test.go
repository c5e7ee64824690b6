package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transferscope/portal-api/internal/models"
	"github.com/transferscope/portal-api/internal/service"
)

type comparisonRepoStub struct {
	created []*models.Comparison
}

func (m *comparisonRepoStub) Create(ctx context.Context, cmp *models.Comparison) error {
	m.created = append(m.created, cmp)
	return nil
}

func (m *comparisonRepoStub) FindByID(ctx context.Context, id string) (*models.Comparison, error) {
	return nil, errors.New("not found")
}

func (m *comparisonRepoStub) List(ctx context.Context, filter models.ComparisonFilter) ([]models.Comparison, int, error) {
	return nil, 0, nil
}

type institutionFinderStub struct {
	institutions []models.Institution
}

func (m *institutionFinderStub) FindByNames(ctx context.Context, names []string) ([]models.Institution, error) {
	return m.institutions, nil
}

type promptProviderStub struct{}

func (m *promptProviderStub) Active(ctx context.Context, t models.PromptType) (string, error) {
	return "Assess transfer friendliness.", nil
}

func compareInstitutions() []models.Institution {
	return []models.Institution{
		{
			Name: "State University", City: "Springfield", State: "IL",
			Ownership: "Public", StudentSize: 30000, AdmissionRate: 0.72,
			InStateTuition: 12000, OutOfStateTuition: 28000, MedianEarnings10yr: 55000,
		},
		{
			Name: "Tech College", City: "Riverside", State: "CA",
			Ownership: "Private nonprofit", StudentSize: 8000, AdmissionRate: 0.35,
			InStateTuition: 42000, OutOfStateTuition: 42000, MedianEarnings10yr: 78000,
		},
	}
}

func newComparisonHandler(repo *comparisonRepoStub) *ComparisonHandler {
	svc := service.NewComparisonService(repo, &institutionFinderStub{institutions: compareInstitutions()}, &promptProviderStub{}, nil, nil, nil, service.CompareConfig{ChunkSize: 80})
	return NewComparisonHandler(svc, nil)
}

func TestComparisonHandlerCompareStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &comparisonRepoStub{}
	handler := newComparisonHandler(repo)

	payload, _ := json.Marshal(models.CompareRequest{Schools: []string{"State University", "Tech College"}})
	c, w := newGinContext(http.MethodPost, "/compare", payload)

	handler.Compare(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimRight(w.Body.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 3)

	var frames []models.StreamFrame
	for _, line := range lines {
		require.True(t, strings.HasPrefix(line, "data: "), "unexpected line %q", line)
		var frame models.StreamFrame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}

	assert.Equal(t, "schools_data", frames[0].Type)
	assert.Len(t, frames[0].SchoolsData, 2)
	last := frames[len(frames)-1]
	assert.Equal(t, "complete", last.Type)
	assert.NotEmpty(t, last.ComparisonID)
	require.Len(t, repo.created, 1)
	assert.Equal(t, last.ComparisonID, repo.created[0].ID)
}

func TestComparisonHandlerCompareInvalidPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newComparisonHandler(&comparisonRepoStub{})

	payload, _ := json.Marshal(models.CompareRequest{Schools: []string{"Only One"}})
	c, w := newGinContext(http.MethodPost, "/compare", payload)

	handler.Compare(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
}

func TestComparisonHandlerAssess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newComparisonHandler(&comparisonRepoStub{})

	payload, _ := json.Marshal(models.AssessmentRequest{PrimaryCollege: "State University", CompetitorColleges: []string{"Tech College"}})
	c, w := newGinContext(http.MethodPost, "/transfer-assessment", payload)

	handler.Assess(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.AssessmentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data.SchoolsData, 2)
	assert.NotEmpty(t, envelope.Data.AIReport)
}

func TestComparisonHandlerExportCSVNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newComparisonHandler(&comparisonRepoStub{})

	c, w := newGinContext(http.MethodGet, "/comparisons/missing/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.ExportCSV(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
