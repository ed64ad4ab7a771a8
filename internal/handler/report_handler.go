package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pulseworks/pulse-api/internal/dto"
	"github.com/pulseworks/pulse-api/internal/service"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
	"github.com/pulseworks/pulse-api/pkg/response"
)

// ReportHandler exposes report computation, history and export endpoints.
type ReportHandler struct {
	reports *service.ReportService
	exports *service.ExportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports *service.ReportService, exports *service.ExportService) *ReportHandler {
	return &ReportHandler{reports: reports, exports: exports}
}

// Compute godoc
// @Summary Compute a fresh report snapshot
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Survey ID"
// @Param payload body dto.ReportRequest true "Report scope"
// @Success 201 {object} response.Envelope
// @Router /surveys/{id}/reports [post]
func (h *ReportHandler) Compute(c *gin.Context) {
	var req dto.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid report scope"))
		return
	}
	claims := claimsFromContext(c)
	report, err := h.reports.Compute(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// Latest godoc
// @Summary Fetch the latest report snapshot
// @Tags Reports
// @Produce json
// @Param id path string true "Survey ID"
// @Success 200 {object} response.Envelope
// @Router /surveys/{id}/reports/latest [get]
func (h *ReportHandler) Latest(c *gin.Context) {
	report, err := h.reports.Latest(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// History godoc
// @Summary List prior report snapshots
// @Tags Reports
// @Produce json
// @Param id path string true "Survey ID"
// @Param limit query int false "Max snapshots"
// @Success 200 {object} response.Envelope
// @Router /surveys/{id}/reports [get]
func (h *ReportHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	snapshots, err := h.reports.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshots, nil)
}

// Export godoc
// @Summary Render the latest snapshot to CSV or PDF
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Survey ID"
// @Param payload body dto.ExportRequest true "Export format"
// @Success 202 {object} response.Envelope
// @Router /surveys/{id}/reports/export [post]
func (h *ReportHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	result, err := h.exports.Request(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, result, nil)
}

// ExportStatus godoc
// @Summary Poll an export's progress
// @Tags Reports
// @Produce json
// @Param exportId path string true "Export ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{exportId} [get]
func (h *ReportHandler) ExportStatus(c *gin.Context) {
	result, err := h.exports.Status(c.Param("exportId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download a rendered export via its signed token
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token required"))
		return
	}
	file, filename, err := h.exports.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	contentType := "text/csv"
	if strings.HasSuffix(filename, ".pdf") {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
