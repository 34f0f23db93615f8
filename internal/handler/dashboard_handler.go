package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-api/internal/dto"
	"github.com/noah-isme/campus-api/internal/middleware"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
	"github.com/noah-isme/campus-api/pkg/response"
)

type dashboardService interface {
	Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error)
	Teacher(ctx context.Context, lecturerID string) (*dto.TeacherDashboardResponse, bool, error)
	Student(ctx context.Context, studentID string) (*dto.StudentDashboardResponse, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Admin godoc
// @Summary Admin dashboard summary
// @Description Institution-wide counters scoped to the active academic period
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/admin [get]
func (h *DashboardHandler) Admin(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	summary, cacheHit, err := h.service.Admin(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}

// Teacher godoc
// @Summary Teacher dashboard summary
// @Description Teaching load for the active term; admins may pass lecturerId explicitly
// @Tags Dashboard
// @Produce json
// @Param lecturerId query string false "Lecturer ID (defaults to the caller's own record)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /dashboard/teacher [get]
func (h *DashboardHandler) Teacher(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	lecturerID := strings.TrimSpace(c.Query("lecturerId"))
	if lecturerID == "" {
		principal, ok := middleware.PrincipalFromContext(c)
		if !ok || principal.Lecturer == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "lecturerId is required"))
			return
		}
		lecturerID = principal.Lecturer.LecturerID
	}
	start := time.Now()
	summary, cacheHit, err := h.service.Teacher(c.Request.Context(), lecturerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}

// Student godoc
// @Summary Student dashboard summary
// @Description Academic standing for the active term; admins may pass studentId explicitly
// @Tags Dashboard
// @Produce json
// @Param studentId query string false "Student ID (defaults to the caller's own record)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /dashboard/student [get]
func (h *DashboardHandler) Student(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	studentID := strings.TrimSpace(c.Query("studentId"))
	if studentID == "" {
		principal, ok := middleware.PrincipalFromContext(c)
		if !ok || principal.Student == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId is required"))
			return
		}
		studentID = principal.Student.StudentID
	}
	start := time.Now()
	summary, cacheHit, err := h.service.Student(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, summary, nil, meta)
}
