package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-api/internal/models"
	"github.com/noah-isme/campus-api/internal/service"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
	"github.com/noah-isme/campus-api/pkg/response"
)

// AttendanceHandler exposes attendance session and record endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// ListSessions godoc
// @Summary List attendance sessions
// @Tags Attendance
// @Produce json
// @Param unitId query string false "Filter by unit"
// @Param yearId query string false "Filter by academic year"
// @Param semesterId query string false "Filter by semester"
// @Param type query string false "Filter by session type"
// @Param dateFrom query string false "Sessions on or after (YYYY-MM-DD)"
// @Param dateTo query string false "Sessions on or before (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance/sessions [get]
func (h *AttendanceHandler) ListSessions(c *gin.Context) {
	var filter models.AttendanceSessionFilter
	filter.UnitID = c.Query("unitId")
	filter.AcademicYearID = c.Query("yearId")
	filter.SemesterID = c.Query("semesterId")
	filter.SessionType = models.SessionType(strings.ToUpper(c.Query("type")))
	if from := strings.TrimSpace(c.Query("dateFrom")); from != "" {
		if parsed, err := time.Parse("2006-01-02", from); err == nil {
			filter.DateFrom = &parsed
		} else {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid dateFrom, expected YYYY-MM-DD"))
			return
		}
	}
	if to := strings.TrimSpace(c.Query("dateTo")); to != "" {
		if parsed, err := time.Parse("2006-01-02", to); err == nil {
			filter.DateTo = &parsed
		} else {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid dateTo, expected YYYY-MM-DD"))
			return
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	sessions, pagination, err := h.attendance.ListSessions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// GetSession godoc
// @Summary Get attendance session by id
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/sessions/{id} [get]
func (h *AttendanceHandler) GetSession(c *gin.Context) {
	session, err := h.attendance.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// CreateSession godoc
// @Summary Create attendance session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/sessions [post]
func (h *AttendanceHandler) CreateSession(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.attendance.CreateSession(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// UpdateSession godoc
// @Summary Update attendance session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.UpdateSessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/sessions/{id} [put]
func (h *AttendanceHandler) UpdateSession(c *gin.Context) {
	var req service.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	session, err := h.attendance.UpdateSession(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// DeleteSession godoc
// @Summary Delete attendance session
// @Description Fails once records have been marked against the session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /attendance/sessions/{id} [delete]
func (h *AttendanceHandler) DeleteSession(c *gin.Context) {
	if err := h.attendance.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Mark godoc
// @Summary Mark attendance for one student
// @Description Re-marking the same student overwrites the previous record
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.MarkAttendanceRequest true "Record payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/sessions/{id}/records [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Mark(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// BulkMark godoc
// @Summary Mark attendance for many students
// @Description Atomic by default; partialOnError records what it can and reports the failures
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.BulkMarkRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/sessions/{id}/records/bulk [post]
func (h *AttendanceHandler) BulkMark(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.BulkMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.attendance.BulkMark(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SessionRecords godoc
// @Summary List records of a session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/sessions/{id}/records [get]
func (h *AttendanceHandler) SessionRecords(c *gin.Context) {
	records, err := h.attendance.SessionRecords(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// SessionRate godoc
// @Summary Attendance rate of a session
// @Description Present and late count toward the rate; unmarked students do not
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/sessions/{id}/rate [get]
func (h *AttendanceHandler) SessionRate(c *gin.Context) {
	rate, err := h.attendance.SessionRate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rate, nil)
}

// StudentSummary godoc
// @Summary Student attendance percentage in a unit
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param unitId query string true "Unit ID"
// @Param yearId query string true "Academic year ID"
// @Param semesterId query string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/attendance/summary [get]
func (h *AttendanceHandler) StudentSummary(c *gin.Context) {
	unitID := strings.TrimSpace(c.Query("unitId"))
	yearID := strings.TrimSpace(c.Query("yearId"))
	semesterID := strings.TrimSpace(c.Query("semesterId"))
	if unitID == "" || yearID == "" || semesterID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unitId, yearId and semesterId are required"))
		return
	}
	summary, err := h.attendance.UnitPercentage(c.Request.Context(), c.Param("id"), unitID, yearID, semesterID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// StudentHistory godoc
// @Summary Student attendance history in a unit
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param unitId query string true "Unit ID"
// @Param yearId query string true "Academic year ID"
// @Param semesterId query string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	unitID := strings.TrimSpace(c.Query("unitId"))
	yearID := strings.TrimSpace(c.Query("yearId"))
	semesterID := strings.TrimSpace(c.Query("semesterId"))
	if unitID == "" || yearID == "" || semesterID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unitId, yearId and semesterId are required"))
		return
	}
	records, err := h.attendance.StudentHistory(c.Request.Context(), c.Param("id"), unitID, yearID, semesterID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Register godoc
// @Summary Per-student attendance register for a unit
// @Tags Attendance
// @Produce json
// @Param id path string true "Unit ID"
// @Param yearId query string true "Academic year ID"
// @Param semesterId query string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /units/{id}/attendance/register [get]
func (h *AttendanceHandler) Register(c *gin.Context) {
	yearID := strings.TrimSpace(c.Query("yearId"))
	semesterID := strings.TrimSpace(c.Query("semesterId"))
	if yearID == "" || semesterID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "yearId and semesterId are required"))
		return
	}
	register, err := h.attendance.UnitRegister(c.Request.Context(), c.Param("id"), yearID, semesterID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, register, nil)
}

// LowAttendance godoc
// @Summary Students below the attendance threshold
// @Tags Attendance
// @Produce json
// @Param id path string true "Unit ID"
// @Param yearId query string true "Academic year ID"
// @Param semesterId query string true "Semester ID"
// @Param threshold query number false "Override threshold percentage"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /units/{id}/attendance/flags [get]
func (h *AttendanceHandler) LowAttendance(c *gin.Context) {
	yearID := strings.TrimSpace(c.Query("yearId"))
	semesterID := strings.TrimSpace(c.Query("semesterId"))
	if yearID == "" || semesterID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "yearId and semesterId are required"))
		return
	}
	threshold := 0.0
	if raw := c.Query("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 || parsed > 100 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "threshold must be between 0 and 100"))
			return
		}
		threshold = parsed
	}
	flags, err := h.attendance.FlagLowAttendance(c.Request.Context(), c.Param("id"), yearID, semesterID, threshold)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, flags, nil)
}
