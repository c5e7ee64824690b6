package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/transferscope/portal-api/internal/models"
	"github.com/transferscope/portal-api/internal/service"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
	"github.com/transferscope/portal-api/pkg/response"
)

// PresentationHandler wires HTTP endpoints to the presentation service.
type PresentationHandler struct {
	service *service.PresentationService
}

// NewPresentationHandler creates a new handler.
func NewPresentationHandler(svc *service.PresentationService) *PresentationHandler {
	return &PresentationHandler{service: svc}
}

// Create godoc
// @Summary Request a slide deck
// @Description Persist a PENDING record and enqueue PDF generation
// @Tags Presentations
// @Accept json
// @Produce json
// @Param payload body models.CreatePresentationRequest true "Deck request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations [post]
func (h *PresentationHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.CreatePresentationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid presentation payload"))
		return
	}

	presentation, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, presentation)
}

// List godoc
// @Summary List presentations
// @Tags Presentations
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations [get]
func (h *PresentationHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	presentations, pagination, err := h.service.List(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"presentations": presentations}, pagination)
}

// Get godoc
// @Summary Get a presentation
// @Tags Presentations
// @Produce json
// @Param id path string true "Presentation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations/{id} [get]
func (h *PresentationHandler) Get(c *gin.Context) {
	presentation, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, presentation, nil)
}

// Delete godoc
// @Summary Delete a presentation and its artifact
// @Tags Presentations
// @Produce json
// @Param id path string true "Presentation ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /presentations/{id} [delete]
func (h *PresentationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Download godoc
// @Summary Download a generated deck
// @Description Serve the PDF behind a signed download token
// @Tags Presentations
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /downloads/presentation [get]
func (h *PresentationHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	presentation, path, err := h.service.OpenArtifact(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+presentation.ID+`.pdf"`)
	c.File(path)
}
