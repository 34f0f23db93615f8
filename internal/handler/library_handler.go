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

// LibraryHandler exposes book catalog and borrowing endpoints.
type LibraryHandler struct {
	library *service.LibraryService
}

// NewLibraryHandler constructs LibraryHandler.
func NewLibraryHandler(library *service.LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

// ListBooks godoc
// @Summary List books
// @Tags Library
// @Produce json
// @Param category query string false "Filter by category"
// @Param author query string false "Filter by author"
// @Param available query bool false "Only books with copies available"
// @Param search query string false "Search by title, author or ISBN"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /library/books [get]
func (h *LibraryHandler) ListBooks(c *gin.Context) {
	var filter models.BookFilter
	filter.Category = c.Query("category")
	filter.Author = c.Query("author")
	if available, err := strconv.ParseBool(c.Query("available")); err == nil {
		filter.AvailableOnly = available
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

	books, pagination, err := h.library.ListBooks(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, books, pagination)
}

// GetBook godoc
// @Summary Get book by id
// @Tags Library
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /library/books/{id} [get]
func (h *LibraryHandler) GetBook(c *gin.Context) {
	book, err := h.library.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// CreateBook godoc
// @Summary Add book to catalog
// @Tags Library
// @Accept json
// @Produce json
// @Param payload body service.BookRequest true "Book payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /library/books [post]
func (h *LibraryHandler) CreateBook(c *gin.Context) {
	var req service.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	book, err := h.library.CreateBook(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, book)
}

// UpdateBook godoc
// @Summary Update book
// @Description Total copies may not drop below the number currently on loan
// @Tags Library
// @Accept json
// @Produce json
// @Param id path string true "Book ID"
// @Param payload body service.BookRequest true "Book payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /library/books/{id} [put]
func (h *LibraryHandler) UpdateBook(c *gin.Context) {
	var req service.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	book, err := h.library.UpdateBook(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// DeactivateBook godoc
// @Summary Deactivate book
// @Description Fails while copies are still out on loan
// @Tags Library
// @Produce json
// @Param id path string true "Book ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /library/books/{id} [delete]
func (h *LibraryHandler) DeactivateBook(c *gin.Context) {
	if err := h.library.DeactivateBook(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Borrow godoc
// @Summary Borrow book
// @Description Decrements available copies; fails when none are left
// @Tags Library
// @Accept json
// @Produce json
// @Param payload body service.BorrowBookRequest true "Borrow payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /library/borrowings [post]
func (h *LibraryHandler) Borrow(c *gin.Context) {
	var req service.BorrowBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	borrowing, err := h.library.Borrow(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, borrowing)
}

// Return godoc
// @Summary Return borrowed book
// @Description Freezes the overdue fine at return time; returning twice is a no-op
// @Tags Library
// @Produce json
// @Param id path string true "Borrowing ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /library/borrowings/{id}/return [post]
func (h *LibraryHandler) Return(c *gin.Context) {
	borrowing, err := h.library.Return(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, borrowing, nil)
}

// PayFine godoc
// @Summary Settle borrowing fine
// @Tags Library
// @Produce json
// @Param id path string true "Borrowing ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /library/borrowings/{id}/fine [post]
func (h *LibraryHandler) PayFine(c *gin.Context) {
	borrowing, err := h.library.PayFine(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, borrowing, nil)
}

// ListBorrowings godoc
// @Summary List borrowings
// @Tags Library
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param bookId query string false "Filter by book"
// @Param open query bool false "Only open loans"
// @Param overdue query bool false "Only overdue loans"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /library/borrowings [get]
func (h *LibraryHandler) ListBorrowings(c *gin.Context) {
	var filter models.BorrowingFilter
	filter.StudentID = c.Query("studentId")
	filter.BookID = c.Query("bookId")
	if open, err := strconv.ParseBool(c.Query("open")); err == nil {
		filter.OpenOnly = open
	}
	if overdue, err := strconv.ParseBool(c.Query("overdue")); err == nil {
		filter.OverdueOnly = overdue
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	borrowings, pagination, err := h.library.ListBorrowings(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, borrowings, pagination)
}

// StudentBorrowings godoc
// @Summary Borrowing history of a student
// @Tags Library
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/borrowings [get]
func (h *LibraryHandler) StudentBorrowings(c *gin.Context) {
	borrowings, err := h.library.StudentBorrowings(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, borrowings, nil)
}
