package models

import "time"

// Book is a catalogued library title with physical copies.
// AvailableCopies never exceeds TotalCopies and never drops below zero.
type Book struct {
	ID              string    `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Author          string    `db:"author" json:"author"`
	ISBN            string    `db:"isbn" json:"isbn"`
	Publisher       string    `db:"publisher" json:"publisher,omitempty"`
	PublicationYear int       `db:"publication_year" json:"publication_year,omitempty"`
	Category        string    `db:"category" json:"category,omitempty"`
	TotalCopies     int       `db:"total_copies" json:"total_copies"`
	AvailableCopies int       `db:"available_copies" json:"available_copies"`
	ShelfLocation   string    `db:"shelf_location" json:"shelf_location,omitempty"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// BookFilter scopes catalog searches.
type BookFilter struct {
	Category      string
	Author        string
	AvailableOnly bool
	Search        string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// BookBorrowing is one loan of a book copy to a student. FineAmount is
// frozen at return time; before return the accrued fine is derived on read.
type BookBorrowing struct {
	ID         string     `db:"id" json:"id"`
	BookID     string     `db:"book_id" json:"book_id"`
	StudentID  string     `db:"student_id" json:"student_id"`
	BorrowedAt time.Time  `db:"borrowed_at" json:"borrowed_at"`
	DueDate    time.Time  `db:"due_date" json:"due_date"`
	ReturnedAt *time.Time `db:"returned_at" json:"returned_at,omitempty"`
	FineAmount float64    `db:"fine_amount" json:"fine_amount"`
	FinePaid   bool       `db:"fine_paid" json:"fine_paid"`
	Remarks    string     `db:"remarks" json:"remarks,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Returned reports whether the loan has been closed.
func (b *BookBorrowing) Returned() bool {
	return b.ReturnedAt != nil
}

// OverdueAt reports whether the loan is overdue at the given instant.
// A returned loan is never overdue; the predicate is display-only and
// never persisted.
func (b *BookBorrowing) OverdueAt(now time.Time) bool {
	return b.ReturnedAt == nil && now.After(b.DueDate)
}

// BookBorrowingDetail extends a borrowing with joined display fields and
// the fine accrued as of the query instant.
type BookBorrowingDetail struct {
	BookBorrowing
	BookTitle   string  `db:"book_title" json:"book_title"`
	BookISBN    string  `db:"book_isbn" json:"book_isbn"`
	StudentName string  `db:"student_name" json:"student_name"`
	RegNumber   string  `db:"reg_number" json:"reg_number"`
	Overdue     bool    `json:"overdue"`
	AccruedFine float64 `json:"accrued_fine"`
}

// BorrowingFilter scopes borrowing listings.
type BorrowingFilter struct {
	StudentID   string
	BookID      string
	OpenOnly    bool
	OverdueOnly bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
