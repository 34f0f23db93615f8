package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// Attended reports whether the status counts toward attendance percentages.
func (s AttendanceStatus) Attended() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusLate
}

// SessionType identifies the teaching format of a session.
type SessionType string

const (
	SessionTypeLecture   SessionType = "LECTURE"
	SessionTypeTutorial  SessionType = "TUTORIAL"
	SessionTypePractical SessionType = "PRACTICAL"
	SessionTypeSeminar   SessionType = "SEMINAR"
)

// Valid returns true when the session type is supported.
func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeLecture, SessionTypeTutorial, SessionTypePractical, SessionTypeSeminar:
		return true
	default:
		return false
	}
}

// BulkOperationMode controls how bulk writes behave on errors.
type BulkOperationMode string

const (
	BulkModeAtomic         BulkOperationMode = "atomic"
	BulkModePartialOnError BulkOperationMode = "partialOnError"
)

// AttendanceSession represents a held teaching session of a unit.
type AttendanceSession struct {
	ID             string      `db:"id" json:"id"`
	UnitID         string      `db:"unit_id" json:"unit_id"`
	AcademicYearID string      `db:"academic_year_id" json:"academic_year_id"`
	SemesterID     string      `db:"semester_id" json:"semester_id"`
	Date           time.Time   `db:"date" json:"date"`
	StartTime      string      `db:"start_time" json:"start_time"`
	EndTime        string      `db:"end_time" json:"end_time"`
	WeekNumber     int         `db:"week_number" json:"week_number"`
	SessionType    SessionType `db:"session_type" json:"session_type"`
	Topic          string      `db:"topic" json:"topic,omitempty"`
	CreatedBy      *string     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

// AttendanceSessionDetail extends a session with unit display fields.
type AttendanceSessionDetail struct {
	AttendanceSession
	UnitCode string `db:"unit_code" json:"unit_code"`
	UnitName string `db:"unit_name" json:"unit_name"`
}

// AttendanceSessionFilter scopes session listing queries.
type AttendanceSessionFilter struct {
	UnitID         string
	AcademicYearID string
	SemesterID     string
	SessionType    SessionType
	DateFrom       *time.Time
	DateTo         *time.Time
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// AttendanceRecord represents one student's mark for a session.
// The pair (student, session) is unique; marking is an idempotent upsert.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	SessionID string           `db:"session_id" json:"session_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
	Remarks   *string          `db:"remarks" json:"remarks,omitempty"`
	MarkedBy  *string          `db:"marked_by" json:"marked_by,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecordDetail extends a record with student display fields.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentName string `db:"student_name" json:"student_name"`
	RegNumber   string `db:"reg_number" json:"reg_number"`
}

// SessionAttendanceRate summarises marks for one session. Rate is nil when
// no record exists: the rate is undefined, not zero.
type SessionAttendanceRate struct {
	SessionID string   `json:"session_id"`
	Recorded  int      `json:"recorded"`
	Present   int      `json:"present"`
	Rate      *float64 `json:"rate,omitempty"`
}

// UnitAttendanceSummary is a student's attendance standing in a unit offering.
type UnitAttendanceSummary struct {
	StudentID     string  `json:"student_id"`
	UnitID        string  `json:"unit_id"`
	Attended      int     `json:"attended"`
	TotalSessions int     `json:"total_sessions"`
	Percentage    float64 `json:"percentage"`
}

// LowAttendanceFlag marks a student whose unit attendance fell below the
// configured threshold.
type LowAttendanceFlag struct {
	StudentID     string  `db:"student_id" json:"student_id"`
	StudentName   string  `db:"student_name" json:"student_name"`
	RegNumber     string  `db:"reg_number" json:"reg_number"`
	Attended      int     `db:"attended" json:"attended"`
	TotalSessions int     `json:"total_sessions"`
	Percentage    float64 `json:"percentage"`
}

// UnitRegisterRow is one roster line of the printable attendance register.
type UnitRegisterRow struct {
	StudentID     string  `json:"student_id"`
	StudentName   string  `json:"student_name"`
	RegNumber     string  `json:"reg_number"`
	Attended      int     `json:"attended"`
	TotalSessions int     `json:"total_sessions"`
	Percentage    float64 `json:"percentage"`
}

// AttendanceBulkConflict captures rows rejected during bulk marking.
type AttendanceBulkConflict struct {
	StudentID string `json:"student_id"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}
