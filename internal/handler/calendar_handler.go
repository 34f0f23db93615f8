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

// CalendarHandler exposes academic year and semester endpoints.
type CalendarHandler struct {
	calendar *service.CalendarService
}

// NewCalendarHandler constructs CalendarHandler.
func NewCalendarHandler(calendar *service.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendar: calendar}
}

// ListYears godoc
// @Summary List academic years
// @Tags Calendar
// @Produce json
// @Param isActive query bool false "Filter by active state"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /calendar/years [get]
func (h *CalendarHandler) ListYears(c *gin.Context) {
	var filter models.AcademicYearFilter
	if active := c.Query("isActive"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.IsActive = &val
		}
	}
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	years, pagination, err := h.calendar.ListYears(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, pagination)
}

// GetYear godoc
// @Summary Get academic year by id
// @Tags Calendar
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendar/years/{id} [get]
func (h *CalendarHandler) GetYear(c *gin.Context) {
	year, err := h.calendar.GetYear(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// CreateYear godoc
// @Summary Create academic year
// @Tags Calendar
// @Accept json
// @Produce json
// @Param payload body service.CreateAcademicYearRequest true "Academic year payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /calendar/years [post]
func (h *CalendarHandler) CreateYear(c *gin.Context) {
	var req service.CreateAcademicYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	year, err := h.calendar.CreateYear(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// UpdateYear godoc
// @Summary Update academic year
// @Tags Calendar
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param payload body service.UpdateAcademicYearRequest true "Academic year payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendar/years/{id} [put]
func (h *CalendarHandler) UpdateYear(c *gin.Context) {
	var req service.UpdateAcademicYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	year, err := h.calendar.UpdateYear(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// ActivateYear godoc
// @Summary Activate academic year
// @Description Deactivates every other year in the same transaction
// @Tags Calendar
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendar/years/{id}/activate [post]
func (h *CalendarHandler) ActivateYear(c *gin.Context) {
	year, err := h.calendar.ActivateYear(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// DeleteYear godoc
// @Summary Delete academic year
// @Description Fails for the active year or while semesters still reference it
// @Tags Calendar
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /calendar/years/{id} [delete]
func (h *CalendarHandler) DeleteYear(c *gin.Context) {
	if err := h.calendar.DeleteYear(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSemesters godoc
// @Summary List semesters of an academic year
// @Tags Calendar
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendar/years/{id}/semesters [get]
func (h *CalendarHandler) ListSemesters(c *gin.Context) {
	semesters, err := h.calendar.ListSemesters(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semesters, nil)
}

// GetSemester godoc
// @Summary Get semester by id
// @Tags Calendar
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendar/semesters/{id} [get]
func (h *CalendarHandler) GetSemester(c *gin.Context) {
	semester, err := h.calendar.GetSemester(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// CreateSemester godoc
// @Summary Create semester
// @Tags Calendar
// @Accept json
// @Produce json
// @Param payload body service.CreateSemesterRequest true "Semester payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /calendar/semesters [post]
func (h *CalendarHandler) CreateSemester(c *gin.Context) {
	var req service.CreateSemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	semester, err := h.calendar.CreateSemester(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, semester)
}

// UpdateSemester godoc
// @Summary Update semester
// @Tags Calendar
// @Accept json
// @Produce json
// @Param id path string true "Semester ID"
// @Param payload body service.UpdateSemesterRequest true "Semester payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /calendar/semesters/{id} [put]
func (h *CalendarHandler) UpdateSemester(c *gin.Context) {
	var req service.UpdateSemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	semester, err := h.calendar.UpdateSemester(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// ActivateSemester godoc
// @Summary Activate semester
// @Description Deactivates the other semesters of the same year; the year must be active
// @Tags Calendar
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /calendar/semesters/{id}/activate [post]
func (h *CalendarHandler) ActivateSemester(c *gin.Context) {
	semester, err := h.calendar.ActivateSemester(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// DeleteSemester godoc
// @Summary Delete semester
// @Description Fails for the active semester
// @Tags Calendar
// @Produce json
// @Param id path string true "Semester ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /calendar/semesters/{id} [delete]
func (h *CalendarHandler) DeleteSemester(c *gin.Context) {
	if err := h.calendar.DeleteSemester(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Current godoc
// @Summary Current academic period
// @Description Returns the active year and semester, degrading gracefully when either is missing
// @Tags Calendar
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /calendar/current [get]
func (h *CalendarHandler) Current(c *gin.Context) {
	period, err := h.calendar.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}
