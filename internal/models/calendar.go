package models

import "time"

// AcademicYear models an academic year in the institution calendar.
// At most one year is active at any instant; activation is the only
// path that mutates IsActive.
type AcademicYear struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Semester models one of the two teaching periods inside an academic year.
type Semester struct {
	ID             string    `db:"id" json:"id"`
	AcademicYearID string    `db:"academic_year_id" json:"academic_year_id"`
	Number         int       `db:"number" json:"number"`
	StartDate      time.Time `db:"start_date" json:"start_date"`
	EndDate        time.Time `db:"end_date" json:"end_date"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// SemesterDetail extends Semester with the owning year name.
type SemesterDetail struct {
	Semester
	AcademicYearName string `db:"academic_year_name" json:"academic_year_name"`
}

// AcademicYearFilter defines filters supported by year list endpoints.
type AcademicYearFilter struct {
	IsActive  *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CurrentAcademicPeriod is the resolved "now" of the calendar. When no year
// is active the period is degraded: FallbackYear carries the calendar-clock
// year label and Year/Semester stay nil.
type CurrentAcademicPeriod struct {
	Year         *AcademicYear `json:"year,omitempty"`
	Semester     *Semester     `json:"semester,omitempty"`
	Degraded     bool          `json:"degraded"`
	FallbackYear string        `json:"fallback_year,omitempty"`
}
