package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// Valid reports whether the status belongs to the supported set.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusEnrolled, EnrollmentStatusDropped, EnrollmentStatusCompleted:
		return true
	}
	return false
}

// Enrollment captures a student's registration to a unit within a semester.
// The tuple (student, unit, academic year, semester) is unique.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	UnitID         string           `db:"unit_id" json:"unit_id"`
	AcademicYearID string           `db:"academic_year_id" json:"academic_year_id"`
	SemesterID     string           `db:"semester_id" json:"semester_id"`
	EnrolledAt     time.Time        `db:"enrolled_at" json:"enrolled_at"`
	IsRetake       bool             `db:"is_retake" json:"is_retake"`
	Status         EnrollmentStatus `db:"status" json:"status"`
}

// EnrollmentDetail enriches Enrollment with student and unit info.
type EnrollmentDetail struct {
	Enrollment
	StudentName      string `db:"student_name" json:"student_name"`
	StudentRegNumber string `db:"student_reg_number" json:"student_reg_number"`
	UnitName         string `db:"unit_name" json:"unit_name"`
	UnitCode         string `db:"unit_code" json:"unit_code"`
	CreditHours      int    `db:"credit_hours" json:"credit_hours"`
	AcademicYearName string `db:"academic_year_name" json:"academic_year_name"`
	SemesterNumber   int    `db:"semester_number" json:"semester_number"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID      string
	UnitID         string
	AcademicYearID string
	SemesterID     string
	Status         EnrollmentStatus
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
