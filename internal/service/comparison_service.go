package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/transferscope/portal-api/internal/models"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
	"github.com/transferscope/portal-api/pkg/export"
)

type comparisonRepository interface {
	Create(ctx context.Context, cmp *models.Comparison) error
	FindByID(ctx context.Context, id string) (*models.Comparison, error)
	List(ctx context.Context, filter models.ComparisonFilter) ([]models.Comparison, int, error)
}

type comparisonInstitutionRepository interface {
	FindByNames(ctx context.Context, names []string) ([]models.Institution, error)
}

type promptProvider interface {
	Active(ctx context.Context, t models.PromptType) (string, error)
}

// CompareConfig bounds the streaming comparison endpoint.
type CompareConfig struct {
	MinSchools int
	MaxSchools int
	ChunkSize  int
}

// ComparisonService produces transfer friendliness reports. The streaming
// variant emits the full school data first, then the report text in chunks,
// and persists the result before the terminating frame goes out.
type ComparisonService struct {
	repo         comparisonRepository
	institutions comparisonInstitutionRepository
	prompts      promptProvider
	metrics      *MetricsService
	csv          *export.CSVExporter
	validator    *validator.Validate
	logger       *zap.Logger
	config       CompareConfig
}

// NewComparisonService constructs a ComparisonService.
func NewComparisonService(repo comparisonRepository, institutions comparisonInstitutionRepository, prompts promptProvider, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config CompareConfig) *ComparisonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.MinSchools < 2 {
		config.MinSchools = 2
	}
	if config.MaxSchools <= 0 {
		config.MaxSchools = 10
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = 160
	}
	return &ComparisonService{
		repo:         repo,
		institutions: institutions,
		prompts:      prompts,
		metrics:      metrics,
		csv:          export.NewCSVExporter(),
		validator:    validate,
		logger:       logger,
		config:       config,
	}
}

// Compare runs a streaming comparison. Frames are handed to emit in order;
// any emit error aborts the stream. The comparison ID is returned after the
// complete frame is emitted.
func (s *ComparisonService) Compare(ctx context.Context, req models.CompareRequest, userID *string, emit func(models.StreamFrame) error) (string, error) {
	if err := s.validateCompare(req); err != nil {
		return "", err
	}

	found, err := s.institutions.FindByNames(ctx, req.Schools)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institutions")
	}
	if len(found) == 0 {
		return "", appErrors.Clone(appErrors.ErrNotFound, "none of the requested schools were found")
	}

	schoolsData := make([]models.SchoolData, 0, len(found))
	for _, inst := range found {
		schoolsData = append(schoolsData, models.SchoolDataFrom(inst))
	}

	if err := s.emit(emit, models.StreamFrame{Type: models.FrameSchoolsData, SchoolsData: schoolsData}); err != nil {
		return "", err
	}

	promptContent, err := s.prompts.Active(ctx, models.PromptAssessment)
	if err != nil {
		s.logger.Warn("failed to load assessment prompt, using empty preamble", zap.Error(err))
		promptContent = ""
	}

	report := buildReport(promptContent, schoolsData, req.Weights)
	for _, chunk := range chunkText(report, s.config.ChunkSize) {
		if err := s.emit(emit, models.StreamFrame{Type: models.FrameAIChunk, Text: chunk}); err != nil {
			return "", err
		}
	}

	comparison, err := s.persist(ctx, userID, req.Schools, req.Weights, schoolsData, report)
	if err != nil {
		return "", err
	}

	if err := s.emit(emit, models.StreamFrame{Type: models.FrameComplete, ComparisonID: comparison.ID}); err != nil {
		return "", err
	}
	return comparison.ID, nil
}

// Assess produces a non-streaming assessment of a primary school against
// its competitors.
func (s *ComparisonService) Assess(ctx context.Context, req models.AssessmentRequest, userID *string) (*models.AssessmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}

	names := append([]string{req.PrimaryCollege}, req.CompetitorColleges...)
	found, err := s.institutions.FindByNames(ctx, names)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load institutions")
	}
	if len(found) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "none of the requested schools were found")
	}

	schoolsData := make([]models.SchoolData, 0, len(found))
	for _, inst := range found {
		schoolsData = append(schoolsData, models.SchoolDataFrom(inst))
	}

	promptContent, err := s.prompts.Active(ctx, models.PromptAssessment)
	if err != nil {
		promptContent = ""
	}

	report := buildReport(promptContent, schoolsData, nil)
	if _, err := s.persist(ctx, userID, names, nil, schoolsData, report); err != nil {
		s.logger.Warn("failed to persist assessment", zap.Error(err))
	}

	return &models.AssessmentResponse{SchoolsData: schoolsData, AIReport: report}, nil
}

// List pages through stored comparisons, newest first.
func (s *ComparisonService) List(ctx context.Context, filter models.ComparisonFilter) ([]models.Comparison, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	comparisons, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comparisons")
	}
	return comparisons, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// ExportCSV renders a stored comparison's school data as CSV.
func (s *ComparisonService) ExportCSV(ctx context.Context, id string) ([]byte, error) {
	comparison, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "comparison not found")
	}

	var schoolsData []models.SchoolData
	if err := json.Unmarshal(comparison.SchoolsData, &schoolsData); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode stored school data")
	}

	dataset := export.Dataset{
		Headers: []string{"Name", "City", "State", "Ownership", "Student Size", "Admission Rate", "In-State Tuition", "Out-of-State Tuition", "Median Earnings (10yr)"},
	}
	for _, sd := range schoolsData {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Name":                   sd.Name,
			"City":                   sd.City,
			"State":                  sd.State,
			"Ownership":              sd.Ownership,
			"Student Size":           fmt.Sprintf("%d", sd.StudentSize),
			"Admission Rate":         fmt.Sprintf("%.2f", sd.AdmissionRate),
			"In-State Tuition":       fmt.Sprintf("%d", sd.InStateTuition),
			"Out-of-State Tuition":   fmt.Sprintf("%d", sd.OutOfStateTuition),
			"Median Earnings (10yr)": fmt.Sprintf("%d", sd.MedianEarnings10yr),
		})
	}

	rendered, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return rendered, nil
}

func (s *ComparisonService) validateCompare(req models.CompareRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid compare payload")
	}
	if len(req.Schools) < s.config.MinSchools {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at least %d schools are required", s.config.MinSchools))
	}
	if len(req.Schools) > s.config.MaxSchools {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d schools are allowed", s.config.MaxSchools))
	}
	for name, weight := range req.Weights {
		if weight < 0 {
			return appErrors.Clone(appErrors.ErrInvalidWeights, "weight for "+name+" must be non-negative")
		}
	}
	return nil
}

func (s *ComparisonService) emit(emit func(models.StreamFrame) error, frame models.StreamFrame) error {
	if err := emit(frame); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to emit stream frame")
	}
	if s.metrics != nil {
		s.metrics.RecordStreamFrame(frame.Type)
	}
	return nil
}

func (s *ComparisonService) persist(ctx context.Context, userID *string, schools []string, weights map[string]float64, schoolsData []models.SchoolData, report string) (*models.Comparison, error) {
	schoolsJSON, _ := json.Marshal(schools)
	weightsJSON, _ := json.Marshal(weights)
	dataJSON, _ := json.Marshal(schoolsData)

	comparison := &models.Comparison{
		ID:          uuid.NewString(),
		UserID:      userID,
		Schools:     schoolsJSON,
		Weights:     weightsJSON,
		SchoolsData: dataJSON,
		AIReport:    report,
		Completed:   true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, comparison); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist comparison")
	}
	return comparison, nil
}

// buildReport composes the comparative report from the active assessment
// prompt, institution data and the caller's weights.
func buildReport(preamble string, schools []models.SchoolData, weights map[string]float64) string {
	var b strings.Builder
	if preamble != "" {
		b.WriteString(preamble)
		b.WriteString("\n\n")
	}

	b.WriteString("## Transfer Friendliness Comparison\n\n")
	if len(weights) > 0 {
		b.WriteString("Weighting: ")
		keys := make([]string, 0, len(weights))
		for k := range weights {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%.2f", k, weights[k])
		}
		b.WriteString("\n\n")
	}

	scores := scoreSchools(schools, weights)
	for _, sd := range schools {
		fmt.Fprintf(&b, "### %s (%s, %s)\n", sd.Name, sd.City, sd.State)
		fmt.Fprintf(&b, "- Ownership: %s, enrollment %d\n", sd.Ownership, sd.StudentSize)
		fmt.Fprintf(&b, "- Admission rate: %.0f%%\n", sd.AdmissionRate*100)
		fmt.Fprintf(&b, "- Tuition: $%d in-state, $%d out-of-state\n", sd.InStateTuition, sd.OutOfStateTuition)
		fmt.Fprintf(&b, "- Median earnings after 10 years: $%d\n", sd.MedianEarnings10yr)
		fmt.Fprintf(&b, "- Weighted score: %.2f\n\n", scores[sd.Name])
	}

	best := ""
	bestScore := -1.0
	for name, score := range scores {
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	if best != "" {
		fmt.Fprintf(&b, "**Recommendation:** %s scores highest under the given weighting.\n", best)
	}
	return b.String()
}

// scoreSchools normalizes each metric across the cohort and combines them
// with the caller's weights. Missing or unknown weight keys fall back to an
// equal weighting of the four core metrics.
func scoreSchools(schools []models.SchoolData, weights map[string]float64) map[string]float64 {
	if len(schools) == 0 {
		return nil
	}

	get := func(key string, fallback float64) float64 {
		if w, ok := weights[key]; ok {
			return w
		}
		return fallback
	}
	wAdmission := get("admission_rate", 1)
	wCost := get("cost", 1)
	wSize := get("size", 1)
	wEarnings := get("earnings", 1)
	total := wAdmission + wCost + wSize + wEarnings
	if total <= 0 {
		total = 1
	}

	maxSize, maxEarnings, maxTuition := 1.0, 1.0, 1.0
	for _, sd := range schools {
		maxSize = maxFloat(maxSize, float64(sd.StudentSize))
		maxEarnings = maxFloat(maxEarnings, float64(sd.MedianEarnings10yr))
		maxTuition = maxFloat(maxTuition, float64(sd.OutOfStateTuition))
	}

	scores := make(map[string]float64, len(schools))
	for _, sd := range schools {
		admission := sd.AdmissionRate
		cost := 1 - float64(sd.OutOfStateTuition)/maxTuition
		size := float64(sd.StudentSize) / maxSize
		earnings := float64(sd.MedianEarnings10yr) / maxEarnings
		scores[sd.Name] = (admission*wAdmission + cost*wCost + size*wSize + earnings*wEarnings) / total
	}
	return scores
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// chunkText splits s into rune-safe chunks of at most size bytes per chunk
// boundary target.
func chunkText(s string, size int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	var chunks []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
