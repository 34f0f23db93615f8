package models

import "time"

// Faculty represents a top-level academic division.
type Faculty struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description,omitempty"`
	DeanID      *string   `db:"dean_id" json:"dean_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// FacultyDetail extends Faculty with joined display fields.
type FacultyDetail struct {
	Faculty
	DeanName        *string `db:"dean_name" json:"dean_name,omitempty"`
	DepartmentCount int     `db:"department_count" json:"department_count"`
}

// FacultyFilter captures supported filters for listing faculties.
type FacultyFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Department represents an academic department within a faculty.
type Department struct {
	ID          string    `db:"id" json:"id"`
	FacultyID   string    `db:"faculty_id" json:"faculty_id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description,omitempty"`
	HeadID      *string   `db:"head_id" json:"head_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DepartmentDetail extends Department with joined display fields.
type DepartmentDetail struct {
	Department
	FacultyName string  `db:"faculty_name" json:"faculty_name"`
	HeadName    *string `db:"head_name" json:"head_name,omitempty"`
}

// DepartmentFilter captures supported filters for listing departments.
type DepartmentFilter struct {
	FacultyID string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
