package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type libraryRepository interface {
	ListBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error)
	FindBookByID(ctx context.Context, id string) (*models.Book, error)
	BookExistsByISBN(ctx context.Context, isbn, excludeID string) (bool, error)
	CreateBook(ctx context.Context, book *models.Book) error
	UpdateBook(ctx context.Context, book *models.Book) error
	DeactivateBook(ctx context.Context, id string) error
	HasOpenBorrowing(ctx context.Context, studentID, bookID string) (bool, error)
	Borrow(ctx context.Context, borrowing *models.BookBorrowing) error
	FindBorrowingByID(ctx context.Context, id string) (*models.BookBorrowing, error)
	Return(ctx context.Context, id string, returnedAt time.Time, fine float64) (bool, error)
	SetFinePaid(ctx context.Context, id string) error
	ListBorrowings(ctx context.Context, filter models.BorrowingFilter) ([]models.BookBorrowingDetail, int, error)
	ListOpenByStudent(ctx context.Context, studentID string) ([]models.BookBorrowingDetail, error)
}

type libraryStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// BookRequest holds payload for creating and updating catalogue entries.
type BookRequest struct {
	Title           string `json:"title" validate:"required"`
	Author          string `json:"author" validate:"required"`
	ISBN            string `json:"isbn" validate:"required"`
	Publisher       string `json:"publisher"`
	PublicationYear int    `json:"publication_year" validate:"omitempty,min=1400"`
	Category        string `json:"category"`
	TotalCopies     int    `json:"total_copies" validate:"gte=0"`
	ShelfLocation   string `json:"shelf_location"`
}

// BorrowBookRequest opens a loan for a student.
type BorrowBookRequest struct {
	BookID    string     `json:"book_id" validate:"required"`
	StudentID string     `json:"student_id" validate:"required"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	Remarks   string     `json:"remarks"`
}

// LibraryService handles the book catalogue and circulation.
type LibraryService struct {
	repo           libraryRepository
	students       libraryStudentReader
	loanPeriodDays int
	finePerDay     float64
	validator      *validator.Validate
	logger         *zap.Logger
	now            func() time.Time
}

// NewLibraryService constructs the library service. Non-positive policy
// knobs fall back to a 14 day loan period and a fine of 10 per day.
func NewLibraryService(repo libraryRepository, students libraryStudentReader, loanPeriodDays int, finePerDay float64, validate *validator.Validate, logger *zap.Logger) *LibraryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loanPeriodDays <= 0 {
		loanPeriodDays = 14
	}
	if finePerDay <= 0 {
		finePerDay = 10
	}
	return &LibraryService{
		repo:           repo,
		students:       students,
		loanPeriodDays: loanPeriodDays,
		finePerDay:     finePerDay,
		validator:      validate,
		logger:         logger,
		now:            time.Now,
	}
}

// ListBooks returns catalogue entries and pagination metadata.
func (s *LibraryService) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, *models.Pagination, error) {
	books, total, err := s.repo.ListBooks(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list books")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return books, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetBook returns a single catalogue entry.
func (s *LibraryService) GetBook(ctx context.Context, id string) (*models.Book, error) {
	book, err := s.repo.FindBookByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	return book, nil
}

// CreateBook adds a title to the catalogue with all copies available.
func (s *LibraryService) CreateBook(ctx context.Context, req BookRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}
	exists, err := s.repo.BookExistsByISBN(ctx, req.ISBN, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check ISBN")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "ISBN already catalogued")
	}

	book := &models.Book{
		Title:           req.Title,
		Author:          req.Author,
		ISBN:            req.ISBN,
		Publisher:       req.Publisher,
		PublicationYear: req.PublicationYear,
		Category:        req.Category,
		TotalCopies:     req.TotalCopies,
		AvailableCopies: req.TotalCopies,
		ShelfLocation:   req.ShelfLocation,
		Active:          true,
	}
	if err := s.repo.CreateBook(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create book")
	}
	return book, nil
}

// UpdateBook modifies a catalogue entry. Changing the copy count keeps the
// copies currently on loan accounted for.
func (s *LibraryService) UpdateBook(ctx context.Context, id string, req BookRequest) (*models.Book, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid book payload")
	}
	book, err := s.repo.FindBookByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	exists, err := s.repo.BookExistsByISBN(ctx, req.ISBN, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check ISBN")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "ISBN already catalogued")
	}

	onLoan := book.TotalCopies - book.AvailableCopies
	if req.TotalCopies < onLoan {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot reduce copies below the number on loan")
	}

	book.Title = req.Title
	book.Author = req.Author
	book.ISBN = req.ISBN
	book.Publisher = req.Publisher
	book.PublicationYear = req.PublicationYear
	book.Category = req.Category
	book.TotalCopies = req.TotalCopies
	book.AvailableCopies = req.TotalCopies - onLoan
	book.ShelfLocation = req.ShelfLocation
	if err := s.repo.UpdateBook(ctx, book); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update book")
	}
	return book, nil
}

// DeactivateBook removes a title from circulation.
func (s *LibraryService) DeactivateBook(ctx context.Context, id string) error {
	if _, err := s.repo.FindBookByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	if err := s.repo.DeactivateBook(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate book")
	}
	return nil
}

// Borrow opens a loan. The copy decrement is guarded so the last copy goes
// to exactly one borrower.
func (s *LibraryService) Borrow(ctx context.Context, req BorrowBookRequest) (*models.BookBorrowing, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid borrow payload")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	book, err := s.repo.FindBookByID(ctx, req.BookID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "book not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load book")
	}
	if !book.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "book is not in circulation")
	}

	open, err := s.repo.HasOpenBorrowing(ctx, req.StudentID, req.BookID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open borrowings")
	}
	if open {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has this book on loan")
	}

	now := s.now().UTC()
	dueDate := now.AddDate(0, 0, s.loanPeriodDays)
	if req.DueDate != nil {
		if !req.DueDate.After(now) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "due_date must be in the future")
		}
		dueDate = req.DueDate.UTC()
	}

	borrowing := &models.BookBorrowing{
		BookID:     req.BookID,
		StudentID:  req.StudentID,
		BorrowedAt: now,
		DueDate:    dueDate,
		Remarks:    req.Remarks,
	}
	if err := s.repo.Borrow(ctx, borrowing); err != nil {
		if errors.Is(err, appErrors.ErrOutOfStock) {
			return nil, appErrors.ErrOutOfStock
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to borrow book")
	}
	return borrowing, nil
}

// Return closes a loan. Calling it again on a closed loan returns the
// stored record without touching the stock a second time.
func (s *LibraryService) Return(ctx context.Context, borrowingID string) (*models.BookBorrowing, error) {
	borrowing, err := s.repo.FindBorrowingByID(ctx, borrowingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "borrowing not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load borrowing")
	}

	returnedAt := s.now().UTC()
	fine := s.fineFor(borrowing.DueDate, returnedAt)
	updated, err := s.repo.Return(ctx, borrowingID, returnedAt, fine)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to return book")
	}
	if !updated {
		// Already returned; the stored record is the source of truth.
		return borrowing, nil
	}
	borrowing.ReturnedAt = &returnedAt
	borrowing.FineAmount = fine
	return borrowing, nil
}

// PayFine settles the fine frozen on a returned loan.
func (s *LibraryService) PayFine(ctx context.Context, borrowingID string) (*models.BookBorrowing, error) {
	borrowing, err := s.repo.FindBorrowingByID(ctx, borrowingID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "borrowing not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load borrowing")
	}
	if !borrowing.Returned() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "loan is still open")
	}
	if borrowing.FineAmount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no fine on this loan")
	}
	if borrowing.FinePaid {
		return nil, appErrors.Clone(appErrors.ErrConflict, "fine already paid")
	}
	if err := s.repo.SetFinePaid(ctx, borrowingID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark fine paid")
	}
	borrowing.FinePaid = true
	return borrowing, nil
}

// ListBorrowings returns loans with the fine accrued as of now.
func (s *LibraryService) ListBorrowings(ctx context.Context, filter models.BorrowingFilter) ([]models.BookBorrowingDetail, *models.Pagination, error) {
	borrowings, total, err := s.repo.ListBorrowings(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list borrowings")
	}
	s.decorate(borrowings)
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return borrowings, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// StudentBorrowings returns the open loans of one student.
func (s *LibraryService) StudentBorrowings(ctx context.Context, studentID string) ([]models.BookBorrowingDetail, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	borrowings, err := s.repo.ListOpenByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list borrowings")
	}
	s.decorate(borrowings)
	return borrowings, nil
}

// decorate fills the display-only overdue flag and accrued fine.
func (s *LibraryService) decorate(borrowings []models.BookBorrowingDetail) {
	now := s.now().UTC()
	for i := range borrowings {
		b := &borrowings[i]
		b.Overdue = b.OverdueAt(now)
		if b.Returned() {
			b.AccruedFine = b.FineAmount
			continue
		}
		b.AccruedFine = s.fineFor(b.DueDate, now)
	}
}

// fineFor charges per full day past the due date.
func (s *LibraryService) fineFor(dueDate, at time.Time) float64 {
	if !at.After(dueDate) {
		return 0
	}
	days := math.Floor(at.Sub(dueDate).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return days * s.finePerDay
}
