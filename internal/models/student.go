package models

import "time"

// StudentStatus represents the registration state of a student.
type StudentStatus string

const (
	StudentStatusActive      StudentStatus = "ACTIVE"
	StudentStatusInactive    StudentStatus = "INACTIVE"
	StudentStatusGraduated   StudentStatus = "GRADUATED"
	StudentStatusSuspended   StudentStatus = "SUSPENDED"
	StudentStatusTransferred StudentStatus = "TRANSFERRED"
)

// Valid reports whether the status belongs to the supported set.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentStatusActive, StudentStatusInactive, StudentStatusGraduated, StudentStatusSuspended, StudentStatusTransferred:
		return true
	}
	return false
}

// Terminal reports whether the status ends the registration lifecycle.
// Terminal statuses cannot transition back to ACTIVE.
func (s StudentStatus) Terminal() bool {
	return s == StudentStatusGraduated || s == StudentStatusTransferred
}

// Student represents a learner registered on a degree programme.
type Student struct {
	ID                 string        `db:"id" json:"id"`
	UserID             string        `db:"user_id" json:"user_id"`
	RegistrationNumber string        `db:"registration_number" json:"registration_number"`
	CourseID           string        `db:"course_id" json:"course_id"`
	YearOfStudy        int           `db:"year_of_study" json:"year_of_study"`
	AdmissionDate      time.Time     `db:"admission_date" json:"admission_date"`
	Status             StudentStatus `db:"status" json:"status"`
	Phone              string        `db:"phone" json:"phone,omitempty"`
	Address            string        `db:"address" json:"address,omitempty"`
	GuardianName       string        `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianPhone      string        `db:"guardian_phone" json:"guardian_phone,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentDetail contains student information with joined display fields.
type StudentDetail struct {
	Student
	FullName   string `db:"full_name" json:"full_name"`
	Email      string `db:"email" json:"email"`
	CourseName string `db:"course_name" json:"course_name"`
	CourseCode string `db:"course_code" json:"course_code"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	CourseID    string
	YearOfStudy int
	Status      StudentStatus
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
