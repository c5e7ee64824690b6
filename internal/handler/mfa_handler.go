package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/transferscope/portal-api/internal/models"
	"github.com/transferscope/portal-api/internal/service"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
	"github.com/transferscope/portal-api/pkg/response"
)

// MFAHandler wires HTTP endpoints to the MFA service.
type MFAHandler struct {
	service *service.MFAService
}

// NewMFAHandler creates a new handler.
func NewMFAHandler(svc *service.MFAService) *MFAHandler {
	return &MFAHandler{service: svc}
}

type captchaRequest struct {
	WidgetToken string `json:"widget_token"`
}

// VerifyCaptcha godoc
// @Summary Verify captcha widget token
// @Description Exchange a captcha widget token for a single-use proof
// @Tags MFA
// @Accept json
// @Produce json
// @Param payload body captchaRequest true "Widget token"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/mfa/captcha [post]
func (h *MFAHandler) VerifyCaptcha(c *gin.Context) {
	var req captchaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid captcha payload"))
		return
	}

	proof, expiresIn, err := h.service.VerifyCaptcha(c.Request.Context(), req.WidgetToken)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"captcha_token": proof, "expires_in": expiresIn}, nil)
}

// EnrollStart godoc
// @Summary Start phone factor enrollment
// @Description Dispatch a verification code to the phone number. The email address must be verified first.
// @Tags MFA
// @Accept json
// @Produce json
// @Param payload body models.EnrollStartRequest true "Enrollment payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/mfa/enroll/start [post]
func (h *MFAHandler) EnrollStart(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.EnrollStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}

	res, err := h.service.EnrollStart(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// EnrollConfirm godoc
// @Summary Confirm phone factor enrollment
// @Description Submit the dispatched code to finish enrollment
// @Tags MFA
// @Accept json
// @Produce json
// @Param payload body models.EnrollConfirmRequest true "Confirmation payload"
// @Success 204 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/mfa/enroll/confirm [post]
func (h *MFAHandler) EnrollConfirm(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.EnrollConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid confirmation payload"))
		return
	}

	if err := h.service.EnrollConfirm(c.Request.Context(), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Unenroll godoc
// @Summary Remove the phone factor
// @Tags MFA
// @Produce json
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /auth/mfa/enroll [delete]
func (h *MFAHandler) Unenroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Unenroll(c.Request.Context(), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Resolve godoc
// @Summary Resolve a step-up challenge
// @Description Answer the challenge raised during sign-in and receive tokens
// @Tags MFA
// @Accept json
// @Produce json
// @Param payload body models.ResolveRequest true "Resolve payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /auth/mfa/resolve [post]
func (h *MFAHandler) Resolve(c *gin.Context) {
	var req models.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolve payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	res, err := h.service.Resolve(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}
