package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-api/internal/models"
	"github.com/noah-isme/campus-api/internal/service"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
	"github.com/noah-isme/campus-api/pkg/response"
)

// GradeHandler exposes grade endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// List godoc
// @Summary List grades
// @Tags Grades
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param unitId query string false "Filter by unit"
// @Param yearId query string false "Filter by academic year"
// @Param semesterId query string false "Filter by semester"
// @Param assessment query string false "Filter by assessment type"
// @Param finalOnly query bool false "Only final assessments"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	var filter models.GradeFilter
	filter.StudentID = c.Query("studentId")
	filter.UnitID = c.Query("unitId")
	filter.AcademicYearID = c.Query("yearId")
	filter.SemesterID = c.Query("semesterId")
	filter.Assessment = models.AssessmentType(strings.ToUpper(c.Query("assessment")))
	if finalOnly, err := strconv.ParseBool(c.Query("finalOnly")); err == nil {
		filter.FinalOnly = finalOnly
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	grades, pagination, err := h.grades.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, pagination)
}

// Get godoc
// @Summary Get grade by id
// @Tags Grades
// @Produce json
// @Param id path string true "Grade ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades/{id} [get]
func (h *GradeHandler) Get(c *gin.Context) {
	grade, err := h.grades.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Record godoc
// @Summary Record grade
// @Description One grade per enrollment and assessment type; the letter is derived from marks
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.RecordGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Record(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.RecordGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.Record(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// Update godoc
// @Summary Update grade marks
// @Description Re-derives the letter unless a manual status pins it
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Grade ID"
// @Param payload body service.UpdateGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grades/{id} [put]
func (h *GradeHandler) Update(c *gin.Context) {
	var req service.UpdateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// SetStatus godoc
// @Summary Set manual grade status
// @Description Marks a grade incomplete or withdrawn
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Grade ID"
// @Param payload body service.SetGradeStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /grades/{id}/status [patch]
func (h *GradeHandler) SetStatus(c *gin.Context) {
	var req service.SetGradeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.SetStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Resolve godoc
// @Summary Resolve manual grade status
// @Description Clears an incomplete or withdrawn marker and re-derives the letter from marks
// @Tags Grades
// @Produce json
// @Param id path string true "Grade ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /grades/{id}/resolve [post]
func (h *GradeHandler) Resolve(c *gin.Context) {
	grade, err := h.grades.ResolveStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// GPA godoc
// @Summary Student cumulative GPA
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/gpa [get]
func (h *GradeHandler) GPA(c *gin.Context) {
	studentID := c.Param("id")
	gpa, err := h.grades.CurrentGPA(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"student_id": studentID, "gpa": gpa}, nil)
}

// Transcript godoc
// @Summary Student transcript
// @Description Final grades grouped by term with per-term and cumulative GPA
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/transcript [get]
func (h *GradeHandler) Transcript(c *gin.Context) {
	transcript, err := h.grades.Transcript(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}

// UnitReport godoc
// @Summary Unit grade report for a term
// @Description Average, highest, lowest and letter distribution across recorded grades
// @Tags Grades
// @Produce json
// @Param id path string true "Unit ID"
// @Param yearId query string true "Academic year ID"
// @Param semesterId query string true "Semester ID"
// @Param finalOnly query bool false "Only final assessments"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /units/{id}/grades/report [get]
func (h *GradeHandler) UnitReport(c *gin.Context) {
	yearID := strings.TrimSpace(c.Query("yearId"))
	semesterID := strings.TrimSpace(c.Query("semesterId"))
	if yearID == "" || semesterID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "yearId and semesterId are required"))
		return
	}
	finalOnly := false
	if val, err := strconv.ParseBool(c.Query("finalOnly")); err == nil {
		finalOnly = val
	}
	report, err := h.grades.UnitReport(c.Request.Context(), c.Param("id"), yearID, semesterID, finalOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
