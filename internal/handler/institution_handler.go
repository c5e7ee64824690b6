package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/transferscope/portal-api/internal/models"
	"github.com/transferscope/portal-api/internal/service"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
	"github.com/transferscope/portal-api/pkg/response"
)

// InstitutionHandler wires HTTP endpoints to the institution service.
type InstitutionHandler struct {
	service *service.InstitutionService
}

// NewInstitutionHandler creates a new handler.
func NewInstitutionHandler(svc *service.InstitutionService) *InstitutionHandler {
	return &InstitutionHandler{service: svc}
}

// Search godoc
// @Summary Search institutions
// @Description Search the institution catalog by name, city or state
// @Tags Institutions
// @Accept json
// @Produce json
// @Param payload body models.SearchRequest true "Search query"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /search [post]
func (h *InstitutionHandler) Search(c *gin.Context) {
	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid search payload"))
		return
	}

	res, err := h.service.Search(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}
