package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-api/internal/models"
	"github.com/noah-isme/campus-api/internal/service"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
	"github.com/noah-isme/campus-api/pkg/response"
)

// ExportHandler exposes file export endpoints.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Transcript godoc
// @Summary Export student transcript
// @Description Renders the transcript as CSV or PDF and returns a signed download link
// @Tags Exports
// @Produce json
// @Param id path string true "Student ID"
// @Param format query string false "Export format (csv or pdf, default pdf)"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exports/transcript/{id} [post]
func (h *ExportHandler) Transcript(c *gin.Context) {
	format := models.ExportFormat(strings.ToLower(c.DefaultQuery("format", "pdf")))
	result, err := h.exports.StudentTranscript(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Register godoc
// @Summary Export unit attendance register
// @Description Renders the per-student register as CSV and returns a signed download link
// @Tags Exports
// @Produce json
// @Param id path string true "Unit ID"
// @Param yearId query string true "Academic year ID"
// @Param semesterId query string true "Semester ID"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exports/register/{id} [post]
func (h *ExportHandler) Register(c *gin.Context) {
	yearID := strings.TrimSpace(c.Query("yearId"))
	semesterID := strings.TrimSpace(c.Query("semesterId"))
	if yearID == "" || semesterID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "yearId and semesterId are required"))
		return
	}
	result, err := h.exports.AttendanceRegister(c.Request.Context(), c.Param("id"), yearID, semesterID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Statement godoc
// @Summary Export student fee statement
// @Description Renders the statement as PDF and returns a signed download link
// @Tags Exports
// @Produce json
// @Param id path string true "Student ID"
// @Param yearId query string true "Academic year ID"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exports/statement/{id} [post]
func (h *ExportHandler) Statement(c *gin.Context) {
	yearID := strings.TrimSpace(c.Query("yearId"))
	if yearID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "yearId is required"))
		return
	}
	result, err := h.exports.FeeStatement(c.Request.Context(), c.Param("id"), yearID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download exported file
// @Description Streams the file behind a signed token; expired links get 401, tampered ones 403
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	relPath, err := h.exports.ResolveDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export no longer available"))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export"))
		return
	}

	filename := filepath.Base(relPath)
	contentType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		contentType = "text/csv"
	case ".pdf":
		contentType = "application/pdf"
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, map[string]string{
		"Content-Disposition": `attachment; filename="` + filename + `"`,
	})
}
