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

// UnitHandler exposes unit and prerequisite endpoints.
type UnitHandler struct {
	units *service.UnitService
}

// NewUnitHandler constructs UnitHandler.
func NewUnitHandler(units *service.UnitService) *UnitHandler {
	return &UnitHandler{units: units}
}

// List godoc
// @Summary List units
// @Tags Units
// @Produce json
// @Param courseId query string false "Filter by course"
// @Param lecturerId query string false "Filter by lecturer"
// @Param yearOffered query int false "Filter by year of study"
// @Param semesterOffered query int false "Filter by semester number"
// @Param active query bool false "Filter by active state"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /units [get]
func (h *UnitHandler) List(c *gin.Context) {
	var filter models.UnitFilter
	filter.CourseID = c.Query("courseId")
	filter.LecturerID = c.Query("lecturerId")
	if year, err := strconv.Atoi(c.Query("yearOffered")); err == nil {
		filter.YearOffered = year
	}
	if semester, err := strconv.Atoi(c.Query("semesterOffered")); err == nil {
		filter.SemesterOffered = semester
	}
	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
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

	units, pagination, err := h.units.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, units, pagination)
}

// Get godoc
// @Summary Get unit by id
// @Tags Units
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /units/{id} [get]
func (h *UnitHandler) Get(c *gin.Context) {
	unit, err := h.units.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, unit, nil)
}

// Create godoc
// @Summary Create unit
// @Tags Units
// @Accept json
// @Produce json
// @Param payload body service.UnitRequest true "Unit payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /units [post]
func (h *UnitHandler) Create(c *gin.Context) {
	var req service.UnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	unit, err := h.units.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, unit)
}

// Update godoc
// @Summary Update unit
// @Tags Units
// @Accept json
// @Produce json
// @Param id path string true "Unit ID"
// @Param payload body service.UnitRequest true "Unit payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /units/{id} [put]
func (h *UnitHandler) Update(c *gin.Context) {
	var req service.UnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	unit, err := h.units.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, unit, nil)
}

// Deactivate godoc
// @Summary Deactivate unit
// @Tags Units
// @Produce json
// @Param id path string true "Unit ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /units/{id} [delete]
func (h *UnitHandler) Deactivate(c *gin.Context) {
	if err := h.units.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListPrerequisites godoc
// @Summary List unit prerequisites
// @Tags Units
// @Produce json
// @Param id path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /units/{id}/prerequisites [get]
func (h *UnitHandler) ListPrerequisites(c *gin.Context) {
	prerequisites, err := h.units.ListPrerequisites(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prerequisites, nil)
}

// AddPrerequisite godoc
// @Summary Add unit prerequisite
// @Description Rejects self references and anything that would close a prerequisite cycle
// @Tags Units
// @Accept json
// @Produce json
// @Param id path string true "Unit ID"
// @Param payload body service.AddPrerequisiteRequest true "Prerequisite payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /units/{id}/prerequisites [post]
func (h *UnitHandler) AddPrerequisite(c *gin.Context) {
	var req service.AddPrerequisiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	prerequisite, err := h.units.AddPrerequisite(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, prerequisite)
}

// RemovePrerequisite godoc
// @Summary Remove unit prerequisite
// @Tags Units
// @Produce json
// @Param id path string true "Unit ID"
// @Param prerequisiteId path string true "Prerequisite unit ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /units/{id}/prerequisites/{prerequisiteId} [delete]
func (h *UnitHandler) RemovePrerequisite(c *gin.Context) {
	if err := h.units.RemovePrerequisite(c.Request.Context(), c.Param("id"), c.Param("prerequisiteId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
