package models

import "time"

// CourseLevel represents the award level of a degree programme.
type CourseLevel string

const (
	CourseLevelCertificate CourseLevel = "CERTIFICATE"
	CourseLevelDiploma     CourseLevel = "DIPLOMA"
	CourseLevelBachelor    CourseLevel = "BACHELOR"
	CourseLevelMaster      CourseLevel = "MASTER"
	CourseLevelPhD         CourseLevel = "PHD"
)

// Valid reports whether the level is one of the supported award levels.
func (l CourseLevel) Valid() bool {
	switch l {
	case CourseLevelCertificate, CourseLevelDiploma, CourseLevelBachelor, CourseLevelMaster, CourseLevelPhD:
		return true
	}
	return false
}

// Course represents a degree programme offered by a department.
type Course struct {
	ID            string      `db:"id" json:"id"`
	DepartmentID  string      `db:"department_id" json:"department_id"`
	Name          string      `db:"name" json:"name"`
	Code          string      `db:"code" json:"code"`
	Level         CourseLevel `db:"level" json:"level"`
	DurationYears int         `db:"duration_years" json:"duration_years"`
	Description   string      `db:"description" json:"description,omitempty"`
	Active        bool        `db:"active" json:"active"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// CourseDetail extends Course with joined and derived display fields.
type CourseDetail struct {
	Course
	DepartmentName string `db:"department_name" json:"department_name"`
	FacultyName    string `db:"faculty_name" json:"faculty_name"`
	UnitCount      int    `db:"unit_count" json:"unit_count"`
	StudentCount   int    `db:"student_count" json:"student_count"`
}

// CourseFilter captures supported filters for listing courses.
type CourseFilter struct {
	DepartmentID string
	Level        CourseLevel
	Active       *bool
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
