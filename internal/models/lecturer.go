package models

import "time"

// LecturerRank represents the academic rank of a lecturer.
type LecturerRank string

const (
	RankAssistant          LecturerRank = "ASSISTANT"
	RankLecturer           LecturerRank = "LECTURER"
	RankSeniorLecturer     LecturerRank = "SENIOR_LECTURER"
	RankAssociateProfessor LecturerRank = "ASSOCIATE_PROFESSOR"
	RankProfessor          LecturerRank = "PROFESSOR"
)

// Valid reports whether the rank belongs to the supported set.
func (r LecturerRank) Valid() bool {
	switch r {
	case RankAssistant, RankLecturer, RankSeniorLecturer, RankAssociateProfessor, RankProfessor:
		return true
	}
	return false
}

// Lecturer represents a member of teaching staff.
type Lecturer struct {
	ID             string       `db:"id" json:"id"`
	UserID         string       `db:"user_id" json:"user_id"`
	StaffNumber    string       `db:"staff_number" json:"staff_number"`
	DepartmentID   string       `db:"department_id" json:"department_id"`
	Rank           LecturerRank `db:"rank" json:"rank"`
	Specialization string       `db:"specialization" json:"specialization,omitempty"`
	Phone          string       `db:"phone" json:"phone,omitempty"`
	OfficeLocation string       `db:"office_location" json:"office_location,omitempty"`
	Active         bool         `db:"active" json:"active"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

// LecturerDetail contains lecturer information with joined display fields.
type LecturerDetail struct {
	Lecturer
	FullName       string `db:"full_name" json:"full_name"`
	Email          string `db:"email" json:"email"`
	DepartmentName string `db:"department_name" json:"department_name"`
	UnitCount      int    `db:"unit_count" json:"unit_count"`
}

// LecturerFilter captures filtering options for listing lecturers.
type LecturerFilter struct {
	DepartmentID string
	Rank         LecturerRank
	Active       *bool
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
