package models

import "time"

// AssessmentType identifies the kind of assessment a mark belongs to.
type AssessmentType string

const (
	AssessmentCAT        AssessmentType = "CAT"
	AssessmentAssignment AssessmentType = "ASSIGNMENT"
	AssessmentPractical  AssessmentType = "PRACTICAL"
	AssessmentFinalExam  AssessmentType = "FINAL_EXAM"
	AssessmentProject    AssessmentType = "PROJECT"
)

// Valid reports whether the assessment type is supported.
func (a AssessmentType) Valid() bool {
	switch a {
	case AssessmentCAT, AssessmentAssignment, AssessmentPractical, AssessmentFinalExam, AssessmentProject:
		return true
	}
	return false
}

// Final reports whether marks of this assessment feed GPA computation.
func (a AssessmentType) Final() bool {
	return a == AssessmentFinalExam
}

// DefaultWeight returns the display weight percentage of the assessment.
func (a AssessmentType) DefaultWeight() int {
	switch a {
	case AssessmentCAT:
		return 30
	case AssessmentAssignment, AssessmentPractical:
		return 10
	case AssessmentFinalExam:
		return 50
	case AssessmentProject:
		return 20
	}
	return 0
}

// LetterGrade is the letter band assigned to a mark. I (incomplete) and
// W (withdrawn) are manual statuses, never derived from marks.
type LetterGrade string

const (
	GradeA LetterGrade = "A"
	GradeB LetterGrade = "B"
	GradeC LetterGrade = "C"
	GradeD LetterGrade = "D"
	GradeF LetterGrade = "F"
	GradeI LetterGrade = "I"
	GradeW LetterGrade = "W"
)

// Manual reports whether the letter is an administrative status rather
// than a derived band.
func (g LetterGrade) Manual() bool {
	return g == GradeI || g == GradeW
}

// Points returns the grade points carried by the letter.
func (g LetterGrade) Points() float64 {
	switch g {
	case GradeA:
		return 4.0
	case GradeB:
		return 3.0
	case GradeC:
		return 2.0
	case GradeD:
		return 1.0
	}
	return 0.0
}

// LetterGradeFromMarks maps a 0..100 mark onto its letter band.
func LetterGradeFromMarks(marks float64) LetterGrade {
	switch {
	case marks >= 70:
		return GradeA
	case marks >= 60:
		return GradeB
	case marks >= 50:
		return GradeC
	case marks >= 40:
		return GradeD
	}
	return GradeF
}

// Grade represents a recorded mark for a student's unit assessment.
// The tuple (student, unit, academic year, semester, assessment) is unique.
type Grade struct {
	ID             string         `db:"id" json:"id"`
	StudentID      string         `db:"student_id" json:"student_id"`
	UnitID         string         `db:"unit_id" json:"unit_id"`
	AcademicYearID string         `db:"academic_year_id" json:"academic_year_id"`
	SemesterID     string         `db:"semester_id" json:"semester_id"`
	Assessment     AssessmentType `db:"assessment" json:"assessment"`
	Marks          float64        `db:"marks" json:"marks"`
	Letter         LetterGrade    `db:"letter" json:"letter"`
	IsFinal        bool           `db:"is_final" json:"is_final"`
	RecordedBy     *string        `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// Points exposes the grade points derived from the stored letter.
func (g *Grade) Points() float64 {
	return g.Letter.Points()
}

// GradeDetail enriches a grade row with unit display fields.
type GradeDetail struct {
	Grade
	UnitCode    string `db:"unit_code" json:"unit_code"`
	UnitName    string `db:"unit_name" json:"unit_name"`
	CreditHours int    `db:"credit_hours" json:"credit_hours"`
	StudentName string `db:"student_name" json:"student_name"`
	RegNumber   string `db:"reg_number" json:"reg_number"`
}

// GradeFilter allows querying of grade entries.
type GradeFilter struct {
	StudentID      string
	UnitID         string
	AcademicYearID string
	SemesterID     string
	Assessment     AssessmentType
	FinalOnly      bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// TranscriptRow is one line of a student transcript.
type TranscriptRow struct {
	UnitCode    string      `db:"unit_code" json:"unit_code"`
	UnitName    string      `db:"unit_name" json:"unit_name"`
	CreditHours int         `db:"credit_hours" json:"credit_hours"`
	Marks       float64     `db:"marks" json:"marks"`
	Letter      LetterGrade `db:"letter" json:"letter"`
	Points      float64     `json:"points"`
	YearName    string      `db:"year_name" json:"year_name"`
	Semester    int         `db:"semester" json:"semester"`
}

// Transcript aggregates a student's final grades with the current GPA.
type Transcript struct {
	StudentID   string          `json:"student_id"`
	StudentName string          `json:"student_name"`
	RegNumber   string          `json:"reg_number"`
	CourseName  string          `json:"course_name"`
	Rows        []TranscriptRow `json:"rows"`
	GPA         float64         `json:"gpa"`
}

// UnitGradeReport lists grades of a unit offering with the class average.
type UnitGradeReport struct {
	UnitID         string        `json:"unit_id"`
	AcademicYearID string        `json:"academic_year_id"`
	SemesterID     string        `json:"semester_id"`
	Average        *float64      `json:"average,omitempty"`
	Grades         []GradeDetail `json:"grades"`
}
