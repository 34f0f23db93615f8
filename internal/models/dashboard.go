package models

// PopulationTotals carries headline entity counts for the admin dashboard.
type PopulationTotals struct {
	Lecturers   int `db:"lecturers" json:"lecturers"`
	Units       int `db:"units" json:"units"`
	Courses     int `db:"courses" json:"courses"`
	Faculties   int `db:"faculties" json:"faculties"`
	Departments int `db:"departments" json:"departments"`
}

// LecturerUnitRow is one taught unit with headline counts for a term.
type LecturerUnitRow struct {
	ID            string `db:"id" json:"id"`
	Code          string `db:"code" json:"code"`
	Name          string `db:"name" json:"name"`
	EnrolledCount int    `db:"enrolled_count" json:"enrolled_count"`
	SessionCount  int    `db:"session_count" json:"session_count"`
}
