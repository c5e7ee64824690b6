package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/transferscope/portal-api/internal/models"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
	"github.com/transferscope/portal-api/pkg/export"
	"github.com/transferscope/portal-api/pkg/jobs"
	"github.com/transferscope/portal-api/pkg/storage"
)

type presentationRepository interface {
	Create(ctx context.Context, p *models.Presentation) error
	FindByID(ctx context.Context, id string) (*models.Presentation, error)
	List(ctx context.Context, page, pageSize int) ([]models.Presentation, int, error)
	MarkReady(ctx context.Context, id, filePath, staticURL string) error
	MarkFailed(ctx context.Context, id, reason string) error
	Delete(ctx context.Context, id string) error
}

const jobTypeGenerateDeck = "presentation.generate"

// PresentationService accepts deck requests and generates PDFs in the
// background. A record stays PENDING until its worker run marks it READY
// with a signed download URL, or FAILED with the reason.
type PresentationService struct {
	repo       presentationRepository
	prompts    promptProvider
	storage    *storage.LocalStorage
	signer     *storage.SignedURLSigner
	pdf        *export.PDFExporter
	queue      *jobs.Queue
	maxRetries int
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewPresentationService constructs a PresentationService and its queue.
// Call StartWorkers before accepting requests.
func NewPresentationService(repo presentationRepository, prompts promptProvider, store *storage.LocalStorage, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger, queueCfg jobs.QueueConfig) *PresentationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	s := &PresentationService{
		repo:      repo,
		prompts:   prompts,
		storage:   store,
		signer:    signer,
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
	}
	queueCfg.Logger = logger
	if queueCfg.MaxRetries <= 0 {
		queueCfg.MaxRetries = 3
	}
	s.maxRetries = queueCfg.MaxRetries
	s.queue = jobs.NewQueue("presentations", s.handleJob, queueCfg)
	return s
}

// StartWorkers launches the background workers.
func (s *PresentationService) StartWorkers(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopWorkers drains and stops the background workers.
func (s *PresentationService) StopWorkers() {
	s.queue.Stop()
}

// Create persists a PENDING record and enqueues generation.
func (s *PresentationService) Create(ctx context.Context, userID string, req models.CreatePresentationRequest) (*models.Presentation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid presentation payload")
	}
	if req.Language == "" {
		req.Language = "en"
	}
	if req.Theme == "" {
		req.Theme = "default"
	}
	if req.ExportAs == "" {
		req.ExportAs = "pdf"
	}

	now := time.Now().UTC()
	presentation := &models.Presentation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Prompt:    req.Prompt,
		NSlides:   req.NSlides,
		Language:  req.Language,
		Theme:     req.Theme,
		ExportAs:  req.ExportAs,
		Status:    models.PresentationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, presentation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist presentation")
	}

	if err := s.queue.Enqueue(jobs.Job{
		ID:      presentation.ID,
		Type:    jobTypeGenerateDeck,
		Payload: presentation.ID,
	}); err != nil {
		if markErr := s.repo.MarkFailed(ctx, presentation.ID, "queue is full"); markErr != nil {
			s.logger.Warn("failed to mark presentation failed", zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue generation")
	}

	return presentation, nil
}

// Get returns a presentation by ID.
func (s *PresentationService) Get(ctx context.Context, id string) (*models.Presentation, error) {
	presentation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "presentation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load presentation")
	}
	return presentation, nil
}

// List pages through presentations, newest first.
func (s *PresentationService) List(ctx context.Context, page, pageSize int) ([]models.Presentation, *models.Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	presentations, total, err := s.repo.List(ctx, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list presentations")
	}
	return presentations, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Delete removes the record and its stored artifact.
func (s *PresentationService) Delete(ctx context.Context, id string) error {
	presentation, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if presentation.FilePath != nil {
		if err := s.storage.Delete(*presentation.FilePath); err != nil {
			s.logger.Warn("failed to delete presentation artifact", zap.String("id", id), zap.Error(err))
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete presentation")
	}
	return nil
}

// OpenArtifact validates a signed download token and opens the PDF.
func (s *PresentationService) OpenArtifact(ctx context.Context, token string) (*models.Presentation, string, error) {
	recordID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	presentation, err := s.Get(ctx, recordID)
	if err != nil {
		return nil, "", err
	}
	if presentation.FilePath == nil || *presentation.FilePath != relPath {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "artifact not found")
	}
	return presentation, s.storage.Path(relPath), nil
}

func (s *PresentationService) handleJob(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	presentation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load presentation %s: %w", id, err)
	}

	if err := s.generate(ctx, presentation); err != nil {
		if job.Attempt >= s.maxRetries {
			if markErr := s.repo.MarkFailed(ctx, id, err.Error()); markErr != nil {
				s.logger.Warn("failed to mark presentation failed", zap.Error(markErr))
			}
		}
		return err
	}
	return nil
}

func (s *PresentationService) generate(ctx context.Context, presentation *models.Presentation) error {
	template, err := s.prompts.Active(ctx, models.PromptPresentation)
	if err != nil {
		template = ""
	}

	deck := composeDeck(template, presentation)
	rendered, err := s.pdf.RenderDeck(deck)
	if err != nil {
		return fmt.Errorf("render deck: %w", err)
	}

	relPath := fmt.Sprintf("decks/%s.pdf", presentation.ID)
	if _, err := s.storage.Save(relPath, rendered); err != nil {
		return fmt.Errorf("store deck: %w", err)
	}

	signedURL, _, err := s.signer.Generate(presentation.ID, relPath)
	if err != nil {
		return fmt.Errorf("sign download url: %w", err)
	}

	if err := s.repo.MarkReady(ctx, presentation.ID, relPath, signedURL); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}

	s.logger.Info("presentation generated",
		zap.String("id", presentation.ID),
		zap.Int("slides", presentation.NSlides))
	return nil
}

// composeDeck derives slide text from the presentation prompt. The first
// line of the prompt becomes the deck title; the rest is distributed over
// the requested number of slides.
func composeDeck(template string, presentation *models.Presentation) export.Deck {
	nSlides := presentation.NSlides
	if nSlides < 1 {
		nSlides = 1
	}

	title := strings.TrimSpace(presentation.Prompt)
	if idx := strings.IndexByte(title, '\n'); idx > 0 {
		title = title[:idx]
	}
	if len(title) > 80 {
		title = title[:80]
	}

	body := strings.TrimSpace(template)
	if body != "" {
		body += "\n\n"
	}
	body += strings.TrimSpace(presentation.Prompt)

	sentences := strings.FieldsFunc(body, func(r rune) bool {
		return r == '.' || r == '\n'
	})
	slides := make([]export.Slide, 0, nSlides)
	perSlide := (len(sentences) + nSlides - 1) / nSlides
	if perSlide < 1 {
		perSlide = 1
	}
	for i := 0; i < nSlides; i++ {
		start := i * perSlide
		var text string
		if start < len(sentences) {
			end := start + perSlide
			if end > len(sentences) {
				end = len(sentences)
			}
			text = strings.TrimSpace(strings.Join(sentences[start:end], ". "))
		}
		slides = append(slides, export.Slide{
			Title: fmt.Sprintf("Slide %d", i+1),
			Body:  text,
		})
	}

	return export.Deck{Title: title, Slides: slides}
}
