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

// FeeHandler exposes fee structure and payment endpoints.
type FeeHandler struct {
	fees *service.FeeService
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(fees *service.FeeService) *FeeHandler {
	return &FeeHandler{fees: fees}
}

// ListStructures godoc
// @Summary List fee structures
// @Tags Fees
// @Produce json
// @Param courseId query string false "Filter by course"
// @Param yearId query string false "Filter by academic year"
// @Param yearOfStudy query int false "Filter by year of study"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /fees/structures [get]
func (h *FeeHandler) ListStructures(c *gin.Context) {
	var filter models.FeeStructureFilter
	filter.CourseID = c.Query("courseId")
	filter.AcademicYearID = c.Query("yearId")
	if year, err := strconv.Atoi(c.Query("yearOfStudy")); err == nil {
		filter.YearOfStudy = year
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	structures, pagination, err := h.fees.ListStructures(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structures, pagination)
}

// GetStructure godoc
// @Summary Get fee structure by id
// @Tags Fees
// @Produce json
// @Param id path string true "Fee structure ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fees/structures/{id} [get]
func (h *FeeHandler) GetStructure(c *gin.Context) {
	structure, err := h.fees.GetStructure(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structure, nil)
}

// CreateStructure godoc
// @Summary Create fee structure
// @Description One structure per course, year and year of study
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body service.FeeStructureRequest true "Fee structure payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fees/structures [post]
func (h *FeeHandler) CreateStructure(c *gin.Context) {
	var req service.FeeStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	structure, err := h.fees.CreateStructure(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, structure)
}

// UpdateStructure godoc
// @Summary Update fee structure
// @Tags Fees
// @Accept json
// @Produce json
// @Param id path string true "Fee structure ID"
// @Param payload body service.FeeStructureRequest true "Fee structure payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fees/structures/{id} [put]
func (h *FeeHandler) UpdateStructure(c *gin.Context) {
	var req service.FeeStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	structure, err := h.fees.UpdateStructure(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structure, nil)
}

// DeleteStructure godoc
// @Summary Delete fee structure
// @Tags Fees
// @Produce json
// @Param id path string true "Fee structure ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /fees/structures/{id} [delete]
func (h *FeeHandler) DeleteStructure(c *gin.Context) {
	if err := h.fees.DeleteStructure(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListPayments godoc
// @Summary List fee payments
// @Tags Fees
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param yearId query string false "Filter by academic year"
// @Param method query string false "Filter by payment method"
// @Param verified query bool false "Filter by verification state"
// @Param dateFrom query string false "Payments on or after (YYYY-MM-DD)"
// @Param dateTo query string false "Payments on or before (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /fees/payments [get]
func (h *FeeHandler) ListPayments(c *gin.Context) {
	var filter models.FeePaymentFilter
	filter.StudentID = c.Query("studentId")
	filter.AcademicYearID = c.Query("yearId")
	filter.Method = models.PaymentMethod(strings.ToUpper(c.Query("method")))
	if verified := c.Query("verified"); verified != "" {
		if val, err := strconv.ParseBool(verified); err == nil {
			filter.Verified = &val
		}
	}
	if from := strings.TrimSpace(c.Query("dateFrom")); from != "" {
		if parsed, err := time.Parse("2006-01-02", from); err == nil {
			filter.DateFrom = &parsed
		}
	}
	if to := strings.TrimSpace(c.Query("dateTo")); to != "" {
		if parsed, err := time.Parse("2006-01-02", to); err == nil {
			filter.DateTo = &parsed
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

	payments, pagination, err := h.fees.ListPayments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// GetPayment godoc
// @Summary Get fee payment by id
// @Tags Fees
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /fees/payments/{id} [get]
func (h *FeeHandler) GetPayment(c *gin.Context) {
	payment, err := h.fees.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// RecordPayment godoc
// @Summary Record fee payment
// @Description Issues a unique receipt number; the payment starts unverified
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body service.RecordPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /fees/payments [post]
func (h *FeeHandler) RecordPayment(c *gin.Context) {
	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	payment, err := h.fees.RecordPayment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// VerifyPayment godoc
// @Summary Verify fee payment
// @Tags Fees
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fees/payments/{id}/verify [post]
func (h *FeeHandler) VerifyPayment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	payment, err := h.fees.VerifyPayment(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// UnverifyPayment godoc
// @Summary Revert fee payment verification
// @Tags Fees
// @Produce json
// @Param id path string true "Payment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fees/payments/{id}/unverify [post]
func (h *FeeHandler) UnverifyPayment(c *gin.Context) {
	payment, err := h.fees.UnverifyPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Balance godoc
// @Summary Student fee balance for a year
// @Description Verified payments against the matching fee structure
// @Tags Fees
// @Produce json
// @Param id path string true "Student ID"
// @Param yearId query string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/fees/balance [get]
func (h *FeeHandler) Balance(c *gin.Context) {
	yearID := strings.TrimSpace(c.Query("yearId"))
	if yearID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "yearId is required"))
		return
	}
	balance, err := h.fees.Balance(c.Request.Context(), c.Param("id"), yearID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}

// Statement godoc
// @Summary Student fee statement for a year
// @Description Chronological payments with running totals and the outstanding balance
// @Tags Fees
// @Produce json
// @Param id path string true "Student ID"
// @Param yearId query string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/fees/statement [get]
func (h *FeeHandler) Statement(c *gin.Context) {
	yearID := strings.TrimSpace(c.Query("yearId"))
	if yearID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "yearId is required"))
		return
	}
	statement, err := h.fees.Statement(c.Request.Context(), c.Param("id"), yearID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, statement, nil)
}
