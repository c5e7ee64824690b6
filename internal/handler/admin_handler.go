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

// AdminHandler wires HTTP endpoints to the admin claim service.
type AdminHandler struct {
	service *service.AdminService
}

// NewAdminHandler creates a new handler.
func NewAdminHandler(svc *service.AdminService) *AdminHandler {
	return &AdminHandler{service: svc}
}

type claimRequest struct {
	Email string `json:"email" binding:"required"`
}

// Check godoc
// @Summary Check authorization tier
// @Description Report whether the caller holds the admin or pending claim
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/check [get]
func (h *AdminHandler) Check(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if !claims.EmailVerified {
		response.JSON(c, http.StatusOK, &service.AdminCheckResult{}, nil)
		return
	}

	result, err := h.service.Check(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Grant godoc
// @Summary Grant the admin claim
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body claimRequest true "Target email"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/grant [post]
func (h *AdminHandler) Grant(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid claim payload"))
		return
	}

	message, err := h.service.Grant(c.Request.Context(), claims.UserID, req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": message}, nil)
}

// Revoke godoc
// @Summary Revoke the admin claim
// @Description Remove the admin claim from another account. Self-revocation is refused.
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body claimRequest true "Target email"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/revoke [post]
func (h *AdminHandler) Revoke(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid claim payload"))
		return
	}

	message, err := h.service.Revoke(c.Request.Context(), claims.UserID, req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": message}, nil)
}

// ListUsers godoc
// @Summary List accounts with claims
// @Tags Admin
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	users, pagination, err := h.service.ListUsers(c.Request.Context(), models.UserFilter{
		Page:     page,
		PageSize: pageSize,
		Search:   c.Query("search"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"users": users}, pagination)
}
