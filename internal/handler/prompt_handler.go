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

// PromptHandler wires HTTP endpoints to the prompt service.
type PromptHandler struct {
	service *service.PromptService
}

// NewPromptHandler creates a new handler.
func NewPromptHandler(svc *service.PromptService) *PromptHandler {
	return &PromptHandler{service: svc}
}

// GetAll godoc
// @Summary List active prompts
// @Tags Prompts
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /prompt/all [get]
func (h *PromptHandler) GetAll(c *gin.Context) {
	prompts, err := h.service.GetAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"prompts": prompts}, nil)
}

// Get godoc
// @Summary Get the active prompt for a slot
// @Tags Prompts
// @Produce json
// @Param type path string true "Prompt type" Enums(assessment, presentation, firecrawl)
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /prompt/{type} [get]
func (h *PromptHandler) Get(c *gin.Context) {
	prompt, err := h.service.Get(c.Request.Context(), models.PromptType(c.Param("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prompt, nil)
}

// Update godoc
// @Summary Save prompt content
// @Description Overwrite the slot's content, snapshotting the previous version
// @Tags Prompts
// @Accept json
// @Produce json
// @Param type path string true "Prompt type"
// @Param payload body models.UpdatePromptRequest true "New content"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /prompt/{type} [put]
func (h *PromptHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpdatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid prompt payload"))
		return
	}

	prompt, err := h.service.Update(c.Request.Context(), models.PromptType(c.Param("type")), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prompt, nil)
}

// Reset godoc
// @Summary Reset a prompt slot to its default
// @Tags Prompts
// @Produce json
// @Param type path string true "Prompt type"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /prompt/{type}/reset [post]
func (h *PromptHandler) Reset(c *gin.Context) {
	prompt, err := h.service.Reset(c.Request.Context(), models.PromptType(c.Param("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prompt, nil)
}

// History godoc
// @Summary List prior versions of a prompt
// @Tags Prompts
// @Produce json
// @Param type path string true "Prompt type"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /prompt/{type}/history [get]
func (h *PromptHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	history, err := h.service.History(c.Request.Context(), models.PromptType(c.Param("type")), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"history": history}, nil)
}
