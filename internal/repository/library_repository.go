package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

// LibraryRepository handles the book catalog and loan persistence.
type LibraryRepository struct {
	db *sqlx.DB
}

// NewLibraryRepository constructs the repository.
func NewLibraryRepository(db *sqlx.DB) *LibraryRepository {
	return &LibraryRepository{db: db}
}

// ListBooks returns catalog entries matching the filter.
func (r *LibraryRepository) ListBooks(ctx context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Author != "" {
		where = append(where, fmt.Sprintf("author ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Author+"%")
	}
	if filter.AvailableOnly {
		where = append(where, "available_copies > 0")
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d OR isbn ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"title":      "title",
		"author":     "author",
		"created_at": "created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "title"
	}
	sortColumn, ok := allowedSort[sortBy]
	if !ok {
		sortColumn = "title"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, title, author, isbn, publisher, publication_year, category,
        total_copies, available_copies, shelf_location, active, created_at, updated_at
        FROM books WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, whereClause, sortColumn, order, size, offset)

	var books []models.Book
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM books WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}
	return books, total, nil
}

// FindBookByID returns a book by its ID.
func (r *LibraryRepository) FindBookByID(ctx context.Context, id string) (*models.Book, error) {
	const query = `SELECT id, title, author, isbn, publisher, publication_year, category,
        total_copies, available_copies, shelf_location, active, created_at, updated_at
        FROM books WHERE id = $1`
	var book models.Book
	if err := r.db.GetContext(ctx, &book, query, id); err != nil {
		return nil, err
	}
	return &book, nil
}

// BookExistsByISBN checks catalog uniqueness of the ISBN.
func (r *LibraryRepository) BookExistsByISBN(ctx context.Context, isbn, excludeID string) (bool, error) {
	query := `SELECT 1 FROM books WHERE isbn = $1`
	args := []interface{}{isbn}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check book isbn: %w", err)
	}
	return true, nil
}

// CreateBook persists a new catalog entry.
func (r *LibraryRepository) CreateBook(ctx context.Context, book *models.Book) error {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now
	const query = `INSERT INTO books (id, title, author, isbn, publisher, publication_year, category,
        total_copies, available_copies, shelf_location, active, created_at, updated_at)
        VALUES (:id, :title, :author, :isbn, :publisher, :publication_year, :category,
        :total_copies, :available_copies, :shelf_location, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

// UpdateBook rewrites catalog fields including the copy counts computed by
// the caller.
func (r *LibraryRepository) UpdateBook(ctx context.Context, book *models.Book) error {
	book.UpdatedAt = time.Now().UTC()
	const query = `UPDATE books SET title = :title, author = :author, isbn = :isbn, publisher = :publisher,
        publication_year = :publication_year, category = :category, total_copies = :total_copies,
        available_copies = :available_copies, shelf_location = :shelf_location, active = :active, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, book); err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

// DeactivateBook hides a book from circulation without deleting its history.
func (r *LibraryRepository) DeactivateBook(ctx context.Context, id string) error {
	const query = `UPDATE books SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate book: %w", err)
	}
	return nil
}

// HasOpenBorrowing reports whether the student already holds an unreturned
// copy of the book.
func (r *LibraryRepository) HasOpenBorrowing(ctx context.Context, studentID, bookID string) (bool, error) {
	const query = `SELECT 1 FROM book_borrowings WHERE student_id = $1 AND book_id = $2 AND returned_at IS NULL LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, bookID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check open borrowing: %w", err)
	}
	return true, nil
}

// Borrow decrements the available copies and opens a loan in one
// transaction. The decrement is guarded: two borrowers racing for the last
// copy cannot both succeed, the loser gets ErrOutOfStock.
func (r *LibraryRepository) Borrow(ctx context.Context, borrowing *models.BookBorrowing) (err error) {
	if borrowing.ID == "" {
		borrowing.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	borrowing.CreatedAt = now
	borrowing.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin borrow: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE books SET available_copies = available_copies - 1, updated_at = $2
        WHERE id = $1 AND available_copies > 0`, borrowing.BookID, now)
	if err != nil {
		return fmt.Errorf("decrement copies: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement copies: %w", err)
	}
	if affected == 0 {
		err = appErrors.ErrOutOfStock
		return err
	}

	if _, err = tx.NamedExecContext(ctx, `INSERT INTO book_borrowings (id, book_id, student_id, borrowed_at, due_date, returned_at, fine_amount, fine_paid, remarks, created_at, updated_at)
        VALUES (:id, :book_id, :student_id, :borrowed_at, :due_date, :returned_at, :fine_amount, :fine_paid, :remarks, :created_at, :updated_at)`, borrowing); err != nil {
		return fmt.Errorf("create borrowing: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit borrow: %w", err)
	}
	return nil
}

// FindBorrowingByID returns a loan by its ID.
func (r *LibraryRepository) FindBorrowingByID(ctx context.Context, id string) (*models.BookBorrowing, error) {
	const query = `SELECT id, book_id, student_id, borrowed_at, due_date, returned_at, fine_amount, fine_paid, remarks, created_at, updated_at
        FROM book_borrowings WHERE id = $1`
	var borrowing models.BookBorrowing
	if err := r.db.GetContext(ctx, &borrowing, query, id); err != nil {
		return nil, err
	}
	return &borrowing, nil
}

// Return closes an open loan and restores the copy in one transaction.
// Returning an already closed loan reports updated=false and changes
// nothing; the copy count moves exactly once per loan.
func (r *LibraryRepository) Return(ctx context.Context, id string, returnedAt time.Time, fine float64) (updated bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin return: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var bookID string
	err = tx.GetContext(ctx, &bookID, `UPDATE book_borrowings SET returned_at = $2, fine_amount = $3, updated_at = $4
        WHERE id = $1 AND returned_at IS NULL
        RETURNING book_id`, id, returnedAt, fine, time.Now().UTC())
	if err != nil {
		if err == sql.ErrNoRows {
			err = nil
			if commitErr := tx.Commit(); commitErr != nil {
				return false, fmt.Errorf("commit return: %w", commitErr)
			}
			return false, nil
		}
		return false, fmt.Errorf("close borrowing: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE books SET available_copies = LEAST(total_copies, available_copies + 1), updated_at = $2
        WHERE id = $1`, bookID, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("restore copies: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit return: %w", err)
	}
	return true, nil
}

// SetFinePaid marks the frozen fine of a closed loan as settled.
func (r *LibraryRepository) SetFinePaid(ctx context.Context, id string) error {
	const query = `UPDATE book_borrowings SET fine_paid = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("set fine paid: %w", err)
	}
	return nil
}

// ListBorrowings returns loans matching the filter with joined display fields.
func (r *LibraryRepository) ListBorrowings(ctx context.Context, filter models.BorrowingFilter) ([]models.BookBorrowingDetail, int, error) {
	base := `FROM book_borrowings bb
JOIN books b ON b.id = bb.book_id
JOIN students s ON s.id = bb.student_id
JOIN users su ON su.id = s.user_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("bb.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BookID != "" {
		where = append(where, fmt.Sprintf("bb.book_id = $%d", len(args)+1))
		args = append(args, filter.BookID)
	}
	if filter.OpenOnly {
		where = append(where, "bb.returned_at IS NULL")
	}
	if filter.OverdueOnly {
		where = append(where, fmt.Sprintf("bb.returned_at IS NULL AND bb.due_date < $%d", len(args)+1))
		args = append(args, time.Now().UTC())
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"borrowed_at": "bb.borrowed_at",
		"due_date":    "bb.due_date",
		"book_title":  "b.title",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "borrowed_at"
	}
	sortColumn, ok := allowedSort[sortBy]
	if !ok {
		sortColumn = "bb.borrowed_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT bb.id, bb.book_id, bb.student_id, bb.borrowed_at, bb.due_date, bb.returned_at,
        bb.fine_amount, bb.fine_paid, bb.remarks, bb.created_at, bb.updated_at,
        b.title AS book_title, b.isbn AS book_isbn,
        su.full_name AS student_name, s.registration_number AS reg_number
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var borrowings []models.BookBorrowingDetail
	if err := r.db.SelectContext(ctx, &borrowings, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list borrowings: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count borrowings: %w", err)
	}
	return borrowings, total, nil
}

// ListOpenByStudent returns the student's unreturned loans.
func (r *LibraryRepository) ListOpenByStudent(ctx context.Context, studentID string) ([]models.BookBorrowingDetail, error) {
	const query = `SELECT bb.id, bb.book_id, bb.student_id, bb.borrowed_at, bb.due_date, bb.returned_at,
        bb.fine_amount, bb.fine_paid, bb.remarks, bb.created_at, bb.updated_at,
        b.title AS book_title, b.isbn AS book_isbn,
        su.full_name AS student_name, s.registration_number AS reg_number
        FROM book_borrowings bb
        JOIN books b ON b.id = bb.book_id
        JOIN students s ON s.id = bb.student_id
        JOIN users su ON su.id = s.user_id
        WHERE bb.student_id = $1 AND bb.returned_at IS NULL
        ORDER BY bb.due_date ASC`
	var borrowings []models.BookBorrowingDetail
	if err := r.db.SelectContext(ctx, &borrowings, query, studentID); err != nil {
		return nil, fmt.Errorf("list open borrowings: %w", err)
	}
	return borrowings, nil
}
