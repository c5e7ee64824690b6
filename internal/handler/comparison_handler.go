package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/transferscope/portal-api/internal/models"
	"github.com/transferscope/portal-api/internal/service"
	appErrors "github.com/transferscope/portal-api/pkg/errors"
	"github.com/transferscope/portal-api/pkg/response"
)

// ComparisonHandler wires HTTP endpoints to the comparison service.
type ComparisonHandler struct {
	service *service.ComparisonService
	logger  *zap.Logger
}

// NewComparisonHandler creates a new handler.
func NewComparisonHandler(svc *service.ComparisonService, logger *zap.Logger) *ComparisonHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComparisonHandler{service: svc, logger: logger}
}

// Compare godoc
// @Summary Stream a school comparison
// @Description Emits newline-delimited `data: {json}` frames: the full school data, report text chunks, then a complete frame.
// @Tags Comparisons
// @Accept json
// @Produce text/event-stream
// @Param payload body models.CompareRequest true "Comparison payload"
// @Success 200 {string} string "stream"
// @Failure 400 {object} response.Envelope
// @Router /compare [post]
func (h *ComparisonHandler) Compare(c *gin.Context) {
	var req models.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid compare payload"))
		return
	}

	var userID *string
	if claims := claimsFromContext(c); claims != nil {
		userID = &claims.UserID
	}

	flusher, canFlush := c.Writer.(http.Flusher)

	started := false
	emit := func(frame models.StreamFrame) error {
		if !started {
			c.Writer.Header().Set("Content-Type", "text/event-stream")
			c.Writer.Header().Set("Cache-Control", "no-cache")
			c.Writer.WriteHeader(http.StatusOK)
			started = true
		}
		payload, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write(append(append([]byte("data: "), payload...), '\n')); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	}

	if _, err := h.service.Compare(c.Request.Context(), req, userID, emit); err != nil {
		// Headers already sent once the first frame is out; after that the
		// stream just ends early.
		if !started {
			response.Error(c, err)
			return
		}
		h.logger.Warn("comparison stream aborted", zap.Error(err))
	}
}

// Assess godoc
// @Summary Transfer assessment
// @Description Non-streaming assessment of a primary school against competitors
// @Tags Comparisons
// @Accept json
// @Produce json
// @Param payload body models.AssessmentRequest true "Assessment payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /transfer-assessment [post]
func (h *ComparisonHandler) Assess(c *gin.Context) {
	var req models.AssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assessment payload"))
		return
	}

	var userID *string
	if claims := claimsFromContext(c); claims != nil {
		userID = &claims.UserID
	}

	res, err := h.service.Assess(c.Request.Context(), req, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, res, nil)
}

// List godoc
// @Summary List stored comparisons
// @Tags Comparisons
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /comparisons [get]
func (h *ComparisonHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	comparisons, pagination, err := h.service.List(c.Request.Context(), models.ComparisonFilter{
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"comparisons": comparisons}, pagination)
}

// ExportCSV godoc
// @Summary Export a comparison as CSV
// @Tags Comparisons
// @Produce text/csv
// @Param id path string true "Comparison ID"
// @Success 200 {string} string "csv"
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /comparisons/{id}/export [get]
func (h *ComparisonHandler) ExportCSV(c *gin.Context) {
	rendered, err := h.service.ExportCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="comparison.csv"`)
	c.Data(http.StatusOK, "text/csv", rendered)
}
