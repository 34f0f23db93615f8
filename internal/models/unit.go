package models

import "time"

// Unit represents a teachable course unit within a programme.
type Unit struct {
	ID               string    `db:"id" json:"id"`
	CourseID         string    `db:"course_id" json:"course_id"`
	Name             string    `db:"name" json:"name"`
	Code             string    `db:"code" json:"code"`
	CreditHours      int       `db:"credit_hours" json:"credit_hours"`
	YearOffered      int       `db:"year_offered" json:"year_offered"`
	SemesterOffered  int       `db:"semester_offered" json:"semester_offered"`
	LecturerID       *string   `db:"lecturer_id" json:"lecturer_id,omitempty"`
	Description      string    `db:"description" json:"description,omitempty"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// UnitDetail contains unit information with joined display fields.
type UnitDetail struct {
	Unit
	CourseName    string  `db:"course_name" json:"course_name"`
	CourseCode    string  `db:"course_code" json:"course_code"`
	LecturerName  *string `db:"lecturer_name" json:"lecturer_name,omitempty"`
	EnrolledCount int     `db:"enrolled_count" json:"enrolled_count"`
}

// UnitFilter captures supported filters for listing units.
type UnitFilter struct {
	CourseID        string
	LecturerID      string
	YearOffered     int
	SemesterOffered int
	Active          *bool
	Search          string
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       string
}

// UnitPrerequisite is a directed edge from a unit to one of its prerequisites.
type UnitPrerequisite struct {
	ID             string    `db:"id" json:"id"`
	UnitID         string    `db:"unit_id" json:"unit_id"`
	PrerequisiteID string    `db:"prerequisite_id" json:"prerequisite_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// UnitPrerequisiteDetail carries the prerequisite unit's display fields.
type UnitPrerequisiteDetail struct {
	UnitPrerequisite
	PrerequisiteCode string `db:"prerequisite_code" json:"prerequisite_code"`
	PrerequisiteName string `db:"prerequisite_name" json:"prerequisite_name"`
	CreditHours      int    `db:"credit_hours" json:"credit_hours"`
}
