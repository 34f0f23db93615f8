package dto

import "github.com/noah-isme/campus-api/internal/models"

// CalendarContext carries the academic period a dashboard was computed for.
type CalendarContext struct {
	AcademicYearID   string `json:"academic_year_id,omitempty"`
	AcademicYearName string `json:"academic_year_name,omitempty"`
	SemesterID       string `json:"semester_id,omitempty"`
	SemesterNumber   int    `json:"semester_number,omitempty"`
	Degraded         bool   `json:"degraded"`
	FallbackYear     string `json:"fallback_year,omitempty"`
}

// AdminDashboardResponse captures the aggregated admin dashboard payload.
type AdminDashboardResponse struct {
	Calendar    CalendarContext        `json:"calendar"`
	Population  AdminPopulationSection `json:"population"`
	Enrollments AdminEnrollmentSection `json:"enrollments"`
	Attendance  AdminAttendanceSection `json:"attendance"`
	Grades      AdminGradesSection     `json:"grades"`
	Fees        AdminFeesSection       `json:"fees"`
	Library     AdminLibrarySection    `json:"library"`
}

// AdminPopulationSection counts the registered population.
type AdminPopulationSection struct {
	StudentsByStatus map[string]int `json:"students_by_status"`
	TotalStudents    int            `json:"total_students"`
	TotalLecturers   int            `json:"total_lecturers"`
	TotalUnits       int            `json:"total_units"`
	TotalCourses     int            `json:"total_courses"`
	TotalFaculties   int            `json:"total_faculties"`
	TotalDepartments int            `json:"total_departments"`
}

// AdminEnrollmentSection summarises recent registration activity.
type AdminEnrollmentSection struct {
	Last30Days int `json:"last_30_days"`
	Total      int `json:"total"`
}

// AdminAttendanceSection summarises attendance for the current year.
type AdminAttendanceSection struct {
	SessionCount int      `json:"session_count"`
	OverallRate  *float64 `json:"overall_rate,omitempty"`
}

// AdminGradesSection summarises grading for the current year.
type AdminGradesSection struct {
	Distribution []GradeDistributionBin `json:"distribution"`
}

// GradeDistributionBin captures letter bucket counts.
type GradeDistributionBin struct {
	Letter string `json:"letter"`
	Count  int    `json:"count"`
}

// AdminFeesSection summarises verified fee collection for the current year.
type AdminFeesSection struct {
	VerifiedTotal   float64 `json:"verified_total"`
	PendingPayments int     `json:"pending_payments"`
}

// AdminLibrarySection summarises circulation state.
type AdminLibrarySection struct {
	OpenBorrowings int `json:"open_borrowings"`
	OverdueCount   int `json:"overdue_count"`
}

// TeacherDashboardResponse captures personalised lecturer dashboard data.
type TeacherDashboardResponse struct {
	LecturerID string              `json:"lecturer_id"`
	Calendar   CalendarContext     `json:"calendar"`
	Units      []TeacherUnitBlock  `json:"units"`
	Recent     []RecentSessionItem `json:"recent_sessions"`
}

// TeacherUnitBlock aggregates per-unit indicators for the lecturer.
type TeacherUnitBlock struct {
	UnitID            string                     `json:"unit_id"`
	UnitCode          string                     `json:"unit_code"`
	UnitName          string                     `json:"unit_name"`
	EnrolledCount     int                        `json:"enrolled_count"`
	SessionCount      int                        `json:"session_count"`
	UngradedCount     int                        `json:"ungraded_count"`
	AverageAttendance *float64                   `json:"average_attendance,omitempty"`
	LowAttendance     []models.LowAttendanceFlag `json:"low_attendance"`
}

// RecentSessionItem is a compact session row for the dashboard.
type RecentSessionItem struct {
	SessionID string   `json:"session_id"`
	UnitCode  string   `json:"unit_code"`
	Date      string   `json:"date"`
	Type      string   `json:"type"`
	Recorded  int      `json:"recorded"`
	Rate      *float64 `json:"rate,omitempty"`
}

// StudentDashboardResponse captures personalised student dashboard data.
type StudentDashboardResponse struct {
	StudentID string                `json:"student_id"`
	Calendar  CalendarContext       `json:"calendar"`
	GPA       float64               `json:"gpa"`
	Units     []StudentUnitBlock    `json:"units"`
	Fees      StudentFeesSection    `json:"fees"`
	Library   StudentLibrarySection `json:"library"`
	Upcoming  []UpcomingSessionItem `json:"upcoming_sessions"`
}

// StudentUnitBlock is the student's standing in one enrolled unit.
type StudentUnitBlock struct {
	UnitID        string  `json:"unit_id"`
	UnitCode      string  `json:"unit_code"`
	UnitName      string  `json:"unit_name"`
	CreditHours   int     `json:"credit_hours"`
	Attended      int     `json:"attended"`
	TotalSessions int     `json:"total_sessions"`
	Percentage    float64 `json:"percentage"`
}

// StudentFeesSection is the fee standing summary for the active year.
type StudentFeesSection struct {
	TotalFee         float64 `json:"total_fee"`
	TotalPaid        float64 `json:"total_paid"`
	Balance          float64 `json:"balance"`
	StructureMissing bool    `json:"structure_missing"`
}

// StudentLibrarySection lists open loans with live fines.
type StudentLibrarySection struct {
	OpenBorrowings []StudentBorrowingItem `json:"open_borrowings"`
}

// StudentBorrowingItem is a compact loan row for the dashboard.
type StudentBorrowingItem struct {
	BorrowingID string  `json:"borrowing_id"`
	BookTitle   string  `json:"book_title"`
	DueDate     string  `json:"due_date"`
	Overdue     bool    `json:"overdue"`
	AccruedFine float64 `json:"accrued_fine"`
}

// UpcomingSessionItem is a session inside the student's next seven days.
type UpcomingSessionItem struct {
	SessionID string `json:"session_id"`
	UnitCode  string `json:"unit_code"`
	UnitName  string `json:"unit_name"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Type      string `json:"type"`
}
