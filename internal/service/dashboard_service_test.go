package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/dto"
	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type stubCacheRepo struct {
	store map[string][]byte
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if s.store == nil {
		return appErrors.ErrCacheMiss
	}
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, _ string) error {
	return nil
}

type dashStatsStub struct {
	totals        *models.PopulationTotals
	byStatus      map[string]int
	enrollTotal   int
	enrollRecent  int
	since         time.Time
	yearSessions  int
	yearRecorded  int
	yearPresent   int
	yearCalls     int
	letters       map[string]int
	feeVerified   float64
	feePending    int
	openLoans     int
	overdueLoans  int
	lecturerUnits []models.LecturerUnitRow
	lecturerCalls int
	ungraded      map[string]int
	unitRecorded  map[string]int
	unitPresent   map[string]int
	popCalls      int
}

func (s *dashStatsStub) CountPopulation(ctx context.Context) (*models.PopulationTotals, error) {
	s.popCalls++
	return s.totals, nil
}

func (s *dashStatsStub) StudentsByStatus(ctx context.Context) (map[string]int, error) {
	return s.byStatus, nil
}

func (s *dashStatsStub) CountEnrollments(ctx context.Context, since time.Time) (int, int, error) {
	s.since = since
	return s.enrollTotal, s.enrollRecent, nil
}

func (s *dashStatsStub) YearAttendanceCounts(ctx context.Context, yearID string) (int, int, int, error) {
	s.yearCalls++
	return s.yearSessions, s.yearRecorded, s.yearPresent, nil
}

func (s *dashStatsStub) FinalGradeDistribution(ctx context.Context, yearID string) (map[string]int, error) {
	return s.letters, nil
}

func (s *dashStatsStub) FeeCollection(ctx context.Context, yearID string) (float64, int, error) {
	return s.feeVerified, s.feePending, nil
}

func (s *dashStatsStub) CirculationCounts(ctx context.Context, now time.Time) (int, int, error) {
	return s.openLoans, s.overdueLoans, nil
}

func (s *dashStatsStub) ListLecturerUnits(ctx context.Context, lecturerID, yearID, semesterID string) ([]models.LecturerUnitRow, error) {
	s.lecturerCalls++
	return s.lecturerUnits, nil
}

func (s *dashStatsStub) UngradedCount(ctx context.Context, unitID, yearID, semesterID string) (int, error) {
	return s.ungraded[unitID], nil
}

func (s *dashStatsStub) UnitAttendanceCounts(ctx context.Context, unitID, yearID, semesterID string) (int, int, error) {
	return s.unitRecorded[unitID], s.unitPresent[unitID], nil
}

type dashCalendarStub struct {
	period *models.CurrentAcademicPeriod
}

func (c *dashCalendarStub) Current(ctx context.Context) (*models.CurrentAcademicPeriod, error) {
	return c.period, nil
}

type dashEnrollmentStub struct {
	rows   []models.EnrollmentDetail
	filter models.EnrollmentFilter
}

func (e *dashEnrollmentStub) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	e.filter = filter
	return e.rows, len(e.rows), nil
}

type dashSessionStub struct {
	recent   []models.AttendanceSessionDetail
	upcoming []models.AttendanceSessionDetail
	limit    int
	from     time.Time
	to       time.Time
}

func (s *dashSessionStub) ListRecentByLecturer(ctx context.Context, lecturerID, yearID, semesterID string, limit int) ([]models.AttendanceSessionDetail, error) {
	s.limit = limit
	return s.recent, nil
}

func (s *dashSessionStub) ListUpcomingForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceSessionDetail, error) {
	s.from = from
	s.to = to
	return s.upcoming, nil
}

type dashAttendanceStub struct {
	rates     map[string]*models.SessionAttendanceRate
	summaries map[string]*models.UnitAttendanceSummary
	flags     map[string][]models.LowAttendanceFlag
	threshold float64
}

func (a *dashAttendanceStub) SessionRate(ctx context.Context, sessionID string) (*models.SessionAttendanceRate, error) {
	if rate, ok := a.rates[sessionID]; ok {
		return rate, nil
	}
	return &models.SessionAttendanceRate{SessionID: sessionID}, nil
}

func (a *dashAttendanceStub) UnitPercentage(ctx context.Context, studentID, unitID, yearID, semesterID string) (*models.UnitAttendanceSummary, error) {
	if summary, ok := a.summaries[unitID]; ok {
		return summary, nil
	}
	return &models.UnitAttendanceSummary{StudentID: studentID, UnitID: unitID}, nil
}

func (a *dashAttendanceStub) FlagLowAttendance(ctx context.Context, unitID, yearID, semesterID string, threshold float64) ([]models.LowAttendanceFlag, error) {
	a.threshold = threshold
	return a.flags[unitID], nil
}

type dashGradeStub struct {
	gpa float64
}

func (g *dashGradeStub) CurrentGPA(ctx context.Context, studentID string) (float64, error) {
	return g.gpa, nil
}

type dashFeeStub struct {
	balance *models.FeeBalance
	yearID  string
}

func (f *dashFeeStub) Balance(ctx context.Context, studentID, yearID string) (*models.FeeBalance, error) {
	f.yearID = yearID
	return f.balance, nil
}

type dashLibraryStub struct {
	borrowings []models.BookBorrowingDetail
}

func (l *dashLibraryStub) StudentBorrowings(ctx context.Context, studentID string) ([]models.BookBorrowingDetail, error) {
	return l.borrowings, nil
}

func activePeriod() *models.CurrentAcademicPeriod {
	return &models.CurrentAcademicPeriod{
		Year:     &models.AcademicYear{ID: "y1", Name: "2026/2027", IsActive: true},
		Semester: &models.Semester{ID: "sem-1", AcademicYearID: "y1", Number: 1, IsActive: true},
	}
}

func TestDashboardServiceAdminComposesAndCaches(t *testing.T) {
	cacheRepo := &stubCacheRepo{}
	stats := &dashStatsStub{
		totals:       &models.PopulationTotals{Lecturers: 12, Units: 30, Courses: 8, Faculties: 3, Departments: 9},
		byStatus:     map[string]int{"ACTIVE": 90, "GRADUATED": 10},
		enrollTotal:  540,
		enrollRecent: 37,
		yearSessions: 120,
		yearRecorded: 2000,
		yearPresent:  1700,
		letters:      map[string]int{"A": 5, "B": 12},
		feeVerified:  1250000.456,
		feePending:   7,
		openLoans:    25,
		overdueLoans: 4,
	}
	svc := NewDashboardService(DashboardServiceParams{
		Stats:    stats,
		Calendar: &dashCalendarStub{period: activePeriod()},
		Cache:    NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true),
		Logger:   zap.NewNop(),
	})
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	ctx := context.Background()
	result, cacheHit, err := svc.Admin(ctx)
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, 100, result.Population.TotalStudents)
	assert.Equal(t, 12, result.Population.TotalLecturers)
	assert.Equal(t, 9, result.Population.TotalDepartments)
	assert.Equal(t, 37, result.Enrollments.Last30Days)
	assert.Equal(t, 540, result.Enrollments.Total)
	assert.Equal(t, now.AddDate(0, 0, -30), stats.since)
	assert.Equal(t, 120, result.Attendance.SessionCount)
	require.NotNil(t, result.Attendance.OverallRate)
	assert.InDelta(t, 85.0, *result.Attendance.OverallRate, 0.001)
	require.Len(t, result.Grades.Distribution, 7)
	assert.Equal(t, dto.GradeDistributionBin{Letter: "A", Count: 5}, result.Grades.Distribution[0])
	assert.Equal(t, dto.GradeDistributionBin{Letter: "B", Count: 12}, result.Grades.Distribution[1])
	assert.Equal(t, dto.GradeDistributionBin{Letter: "F", Count: 0}, result.Grades.Distribution[4])
	assert.InDelta(t, 1250000.46, result.Fees.VerifiedTotal, 0.001)
	assert.Equal(t, 7, result.Fees.PendingPayments)
	assert.Equal(t, 25, result.Library.OpenBorrowings)
	assert.Equal(t, 4, result.Library.OverdueCount)
	assert.Equal(t, "y1", result.Calendar.AcademicYearID)
	assert.Equal(t, 1, result.Calendar.SemesterNumber)

	cached, cacheHit2, err := svc.Admin(ctx)
	require.NoError(t, err)
	assert.True(t, cacheHit2)
	assert.Equal(t, 1, stats.popCalls)
	assert.Equal(t, result, cached)
}

func TestDashboardServiceAdminWithoutActiveYear(t *testing.T) {
	stats := &dashStatsStub{
		totals:    &models.PopulationTotals{Lecturers: 4},
		byStatus:  map[string]int{"ACTIVE": 20},
		openLoans: 3,
	}
	svc := NewDashboardService(DashboardServiceParams{
		Stats:    stats,
		Calendar: &dashCalendarStub{period: &models.CurrentAcademicPeriod{Degraded: true, FallbackYear: "2026/2027"}},
		Cache:    NewCacheService(nil, nil, time.Minute, zap.NewNop(), false),
		Logger:   zap.NewNop(),
	})

	result, _, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Calendar.Degraded)
	assert.Equal(t, "2026/2027", result.Calendar.FallbackYear)
	assert.Equal(t, 0, stats.yearCalls)
	assert.Nil(t, result.Attendance.OverallRate)
	assert.NotNil(t, result.Grades.Distribution)
	assert.Empty(t, result.Grades.Distribution)
	assert.Zero(t, result.Fees.VerifiedTotal)
	assert.Equal(t, 20, result.Population.TotalStudents)
	assert.Equal(t, 3, result.Library.OpenBorrowings)
}

func TestDashboardServiceTeacherComposes(t *testing.T) {
	stats := &dashStatsStub{
		lecturerUnits: []models.LecturerUnitRow{
			{ID: "u1", Code: "CS101", Name: "Introduction to Programming", EnrolledCount: 45, SessionCount: 12},
			{ID: "u2", Code: "CS202", Name: "Data Structures", EnrolledCount: 38, SessionCount: 10},
		},
		ungraded:     map[string]int{"u1": 5},
		unitRecorded: map[string]int{"u1": 400, "u2": 300},
		unitPresent:  map[string]int{"u1": 330, "u2": 270},
	}
	rate := 90.0
	attendance := &dashAttendanceStub{
		rates: map[string]*models.SessionAttendanceRate{
			"sess-7": {SessionID: "sess-7", Recorded: 40, Present: 36, Rate: &rate},
		},
		flags: map[string][]models.LowAttendanceFlag{
			"u1": {{StudentID: "stu-9", StudentName: "Brian Otieno", RegNumber: "CS/0009/26", Attended: 5, TotalSessions: 12, Percentage: 41.67}},
		},
		threshold: -1,
	}
	sessions := &dashSessionStub{
		recent: []models.AttendanceSessionDetail{
			{
				AttendanceSession: models.AttendanceSession{
					ID:          "sess-7",
					Date:        time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
					SessionType: models.SessionTypeLecture,
				},
				UnitCode: "CS101",
			},
		},
	}
	svc := NewDashboardService(DashboardServiceParams{
		Stats:      stats,
		Calendar:   &dashCalendarStub{period: activePeriod()},
		Sessions:   sessions,
		Attendance: attendance,
		Cache:      NewCacheService(nil, nil, time.Minute, zap.NewNop(), false),
		Logger:     zap.NewNop(),
	})

	result, cacheHit, err := svc.Teacher(context.Background(), "lect-1")
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, "lect-1", result.LecturerID)
	require.Len(t, result.Units, 2)

	first := result.Units[0]
	assert.Equal(t, "CS101", first.UnitCode)
	assert.Equal(t, 45, first.EnrolledCount)
	assert.Equal(t, 12, first.SessionCount)
	assert.Equal(t, 5, first.UngradedCount)
	require.NotNil(t, first.AverageAttendance)
	assert.InDelta(t, 82.5, *first.AverageAttendance, 0.001)
	require.Len(t, first.LowAttendance, 1)
	assert.Equal(t, "stu-9", first.LowAttendance[0].StudentID)

	second := result.Units[1]
	assert.Equal(t, 0, second.UngradedCount)
	require.NotNil(t, second.AverageAttendance)
	assert.InDelta(t, 90.0, *second.AverageAttendance, 0.001)
	assert.Empty(t, second.LowAttendance)

	// Zero threshold lets the attendance service apply its configured default.
	assert.Zero(t, attendance.threshold)
	assert.Equal(t, 5, sessions.limit)
	require.Len(t, result.Recent, 1)
	item := result.Recent[0]
	assert.Equal(t, "sess-7", item.SessionID)
	assert.Equal(t, "CS101", item.UnitCode)
	assert.Equal(t, "2026-08-24", item.Date)
	assert.Equal(t, "LECTURE", item.Type)
	assert.Equal(t, 40, item.Recorded)
	require.NotNil(t, item.Rate)
	assert.InDelta(t, 90.0, *item.Rate, 0.001)
}

func TestDashboardServiceTeacherRequiresLecturer(t *testing.T) {
	svc := NewDashboardService(DashboardServiceParams{})
	_, _, err := svc.Teacher(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDashboardServiceTeacherWithoutActiveSemester(t *testing.T) {
	stats := &dashStatsStub{}
	period := &models.CurrentAcademicPeriod{Year: &models.AcademicYear{ID: "y1", Name: "2026/2027"}}
	svc := NewDashboardService(DashboardServiceParams{
		Stats:    stats,
		Calendar: &dashCalendarStub{period: period},
		Cache:    NewCacheService(nil, nil, time.Minute, zap.NewNop(), false),
		Logger:   zap.NewNop(),
	})

	result, _, err := svc.Teacher(context.Background(), "lect-1")
	require.NoError(t, err)
	assert.NotNil(t, result.Units)
	assert.Empty(t, result.Units)
	assert.Empty(t, result.Recent)
	assert.Equal(t, 0, stats.lecturerCalls)
	assert.Equal(t, "y1", result.Calendar.AcademicYearID)
}

func TestDashboardServiceStudentComposes(t *testing.T) {
	enrollments := &dashEnrollmentStub{rows: []models.EnrollmentDetail{
		{
			Enrollment:  models.Enrollment{ID: "enr-1", StudentID: "stu-1", UnitID: "u1"},
			UnitCode:    "CS101",
			UnitName:    "Introduction to Programming",
			CreditHours: 4,
		},
	}}
	attendance := &dashAttendanceStub{summaries: map[string]*models.UnitAttendanceSummary{
		"u1": {StudentID: "stu-1", UnitID: "u1", Attended: 10, TotalSessions: 12, Percentage: 83.33},
	}}
	returnedAt := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	library := &dashLibraryStub{borrowings: []models.BookBorrowingDetail{
		{
			BookBorrowing: models.BookBorrowing{ID: "bor-1", DueDate: time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)},
			BookTitle:     "Clean Architecture",
			Overdue:       true,
			AccruedFine:   20,
		},
		{
			BookBorrowing: models.BookBorrowing{ID: "bor-2", ReturnedAt: &returnedAt},
			BookTitle:     "The Pragmatic Programmer",
		},
	}}
	sessions := &dashSessionStub{upcoming: []models.AttendanceSessionDetail{
		{
			AttendanceSession: models.AttendanceSession{
				ID:          "sess-9",
				Date:        time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC),
				StartTime:   "08:00",
				EndTime:     "10:00",
				SessionType: models.SessionTypeLecture,
			},
			UnitCode: "CS101",
			UnitName: "Introduction to Programming",
		},
	}}
	fees := &dashFeeStub{balance: &models.FeeBalance{
		StudentID:      "stu-1",
		AcademicYearID: "y1",
		TotalFee:       138000,
		TotalPaid:      90000,
		Balance:        48000,
	}}
	svc := NewDashboardService(DashboardServiceParams{
		Calendar:    &dashCalendarStub{period: activePeriod()},
		Enrollments: enrollments,
		Sessions:    sessions,
		Attendance:  attendance,
		Grades:      &dashGradeStub{gpa: 3.41},
		Fees:        fees,
		Library:     library,
		Cache:       NewCacheService(nil, nil, time.Minute, zap.NewNop(), false),
		Logger:      zap.NewNop(),
	})
	now := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	result, cacheHit, err := svc.Student(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.False(t, cacheHit)
	assert.Equal(t, "stu-1", result.StudentID)
	assert.InDelta(t, 3.41, result.GPA, 0.001)

	assert.Equal(t, "stu-1", enrollments.filter.StudentID)
	assert.Equal(t, "y1", enrollments.filter.AcademicYearID)
	assert.Equal(t, "sem-1", enrollments.filter.SemesterID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollments.filter.Status)

	require.Len(t, result.Units, 1)
	unit := result.Units[0]
	assert.Equal(t, "u1", unit.UnitID)
	assert.Equal(t, "CS101", unit.UnitCode)
	assert.Equal(t, 4, unit.CreditHours)
	assert.Equal(t, 10, unit.Attended)
	assert.Equal(t, 12, unit.TotalSessions)
	assert.InDelta(t, 83.33, unit.Percentage, 0.001)

	assert.Equal(t, "y1", fees.yearID)
	assert.InDelta(t, 138000, result.Fees.TotalFee, 0.001)
	assert.InDelta(t, 48000, result.Fees.Balance, 0.001)
	assert.False(t, result.Fees.StructureMissing)

	require.Len(t, result.Library.OpenBorrowings, 1)
	loan := result.Library.OpenBorrowings[0]
	assert.Equal(t, "bor-1", loan.BorrowingID)
	assert.Equal(t, "Clean Architecture", loan.BookTitle)
	assert.Equal(t, "2026-08-23", loan.DueDate)
	assert.True(t, loan.Overdue)
	assert.InDelta(t, 20, loan.AccruedFine, 0.001)

	assert.Equal(t, now, sessions.from)
	assert.Equal(t, now.Add(7*24*time.Hour), sessions.to)
	require.Len(t, result.Upcoming, 1)
	assert.Equal(t, "sess-9", result.Upcoming[0].SessionID)
	assert.Equal(t, "2026-08-26", result.Upcoming[0].Date)
	assert.Equal(t, "08:00", result.Upcoming[0].StartTime)
}

func TestDashboardServiceStudentRequiresStudent(t *testing.T) {
	svc := NewDashboardService(DashboardServiceParams{})
	_, _, err := svc.Student(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDashboardServiceStudentWithoutActiveYear(t *testing.T) {
	fees := &dashFeeStub{}
	svc := NewDashboardService(DashboardServiceParams{
		Calendar: &dashCalendarStub{period: &models.CurrentAcademicPeriod{Degraded: true, FallbackYear: "2026/2027"}},
		Grades:   &dashGradeStub{gpa: 2.8},
		Fees:     fees,
		Library:  &dashLibraryStub{},
		Sessions: &dashSessionStub{},
		Cache:    NewCacheService(nil, nil, time.Minute, zap.NewNop(), false),
		Logger:   zap.NewNop(),
	})

	result, _, err := svc.Student(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.True(t, result.Calendar.Degraded)
	assert.Empty(t, result.Units)
	assert.Equal(t, "", fees.yearID)
	assert.Zero(t, result.Fees.TotalFee)
	assert.InDelta(t, 2.8, result.GPA, 0.001)
}

func TestDashboardServiceCacheKeyFollowsPeriod(t *testing.T) {
	cacheRepo := &stubCacheRepo{}
	calendar := &dashCalendarStub{period: activePeriod()}
	stats := &dashStatsStub{
		totals:   &models.PopulationTotals{},
		byStatus: map[string]int{},
	}
	svc := NewDashboardService(DashboardServiceParams{
		Stats:    stats,
		Calendar: calendar,
		Cache:    NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true),
		Logger:   zap.NewNop(),
	})

	ctx := context.Background()
	_, hit, err := svc.Admin(ctx)
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = svc.Admin(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, stats.popCalls)

	// Activating a different year changes the key, so the stale entry is skipped.
	calendar.period = &models.CurrentAcademicPeriod{Year: &models.AcademicYear{ID: "y2", Name: "2027/2028"}}
	_, hit, err = svc.Admin(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, stats.popCalls)
}
