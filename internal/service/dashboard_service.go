package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/dto"
	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type dashboardStatsReader interface {
	CountPopulation(ctx context.Context) (*models.PopulationTotals, error)
	StudentsByStatus(ctx context.Context) (map[string]int, error)
	CountEnrollments(ctx context.Context, since time.Time) (total int, recent int, err error)
	YearAttendanceCounts(ctx context.Context, yearID string) (sessions int, recorded int, present int, err error)
	FinalGradeDistribution(ctx context.Context, yearID string) (map[string]int, error)
	FeeCollection(ctx context.Context, yearID string) (verifiedTotal float64, pending int, err error)
	CirculationCounts(ctx context.Context, now time.Time) (open int, overdue int, err error)
	ListLecturerUnits(ctx context.Context, lecturerID, yearID, semesterID string) ([]models.LecturerUnitRow, error)
	UngradedCount(ctx context.Context, unitID, yearID, semesterID string) (int, error)
	UnitAttendanceCounts(ctx context.Context, unitID, yearID, semesterID string) (recorded int, present int, err error)
}

type dashboardCalendarProvider interface {
	Current(ctx context.Context) (*models.CurrentAcademicPeriod, error)
}

type dashboardEnrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type dashboardSessionReader interface {
	ListRecentByLecturer(ctx context.Context, lecturerID, yearID, semesterID string, limit int) ([]models.AttendanceSessionDetail, error)
	ListUpcomingForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceSessionDetail, error)
}

type dashboardAttendanceProvider interface {
	SessionRate(ctx context.Context, sessionID string) (*models.SessionAttendanceRate, error)
	UnitPercentage(ctx context.Context, studentID, unitID, yearID, semesterID string) (*models.UnitAttendanceSummary, error)
	FlagLowAttendance(ctx context.Context, unitID, yearID, semesterID string, threshold float64) ([]models.LowAttendanceFlag, error)
}

type dashboardGradeProvider interface {
	CurrentGPA(ctx context.Context, studentID string) (float64, error)
}

type dashboardFeeProvider interface {
	Balance(ctx context.Context, studentID, yearID string) (*models.FeeBalance, error)
}

type dashboardLibraryProvider interface {
	StudentBorrowings(ctx context.Context, studentID string) ([]models.BookBorrowingDetail, error)
}

const (
	defaultDashboardCacheTTL  = 5 * time.Minute
	defaultRecentSessionLimit = 5
	defaultUpcomingWindow     = 7 * 24 * time.Hour
)

// DashboardServiceConfig tunes dashboard assembly.
type DashboardServiceConfig struct {
	CacheTTL           time.Duration
	RecentSessionLimit int
	UpcomingWindow     time.Duration
}

// DashboardServiceParams groups the collaborators of NewDashboardService.
type DashboardServiceParams struct {
	Stats       dashboardStatsReader
	Calendar    dashboardCalendarProvider
	Enrollments dashboardEnrollmentReader
	Sessions    dashboardSessionReader
	Attendance  dashboardAttendanceProvider
	Grades      dashboardGradeProvider
	Fees        dashboardFeeProvider
	Library     dashboardLibraryProvider
	Cache       *CacheService
	Logger      *zap.Logger
	Config      DashboardServiceConfig
}

// DashboardService assembles role-specific dashboards from the aggregate
// stores. Payloads are cached under "dash:" keys so a calendar activation
// can drop them all in one sweep.
type DashboardService struct {
	stats       dashboardStatsReader
	calendar    dashboardCalendarProvider
	enrollments dashboardEnrollmentReader
	sessions    dashboardSessionReader
	attendance  dashboardAttendanceProvider
	grades      dashboardGradeProvider
	fees        dashboardFeeProvider
	library     dashboardLibraryProvider
	cache       *CacheService
	logger      *zap.Logger
	cfg         DashboardServiceConfig
	now         func() time.Time
}

// NewDashboardService wires the aggregate readers behind the dashboard
// endpoints.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultDashboardCacheTTL
	}
	if cfg.RecentSessionLimit <= 0 {
		cfg.RecentSessionLimit = defaultRecentSessionLimit
	}
	if cfg.UpcomingWindow <= 0 {
		cfg.UpcomingWindow = defaultUpcomingWindow
	}
	return &DashboardService{
		stats:       params.Stats,
		calendar:    params.Calendar,
		enrollments: params.Enrollments,
		sessions:    params.Sessions,
		attendance:  params.Attendance,
		grades:      params.Grades,
		fees:        params.Fees,
		library:     params.Library,
		cache:       params.Cache,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Admin assembles the administrative dashboard. The second return reports
// whether the payload came out of cache.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	period, err := s.calendar.Current(ctx)
	if err != nil {
		return nil, false, err
	}
	key := fmt.Sprintf("dash:admin:%s", periodCacheKey(period))
	if cached, ok := s.tryAdminCache(ctx, key); ok {
		return cached, true, nil
	}
	resp, err := s.composeAdmin(ctx, period)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, key, resp)
	return resp, false, nil
}

// Teacher assembles the personalised lecturer dashboard.
func (s *DashboardService) Teacher(ctx context.Context, lecturerID string) (*dto.TeacherDashboardResponse, bool, error) {
	if lecturerID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "lecturer id is required")
	}
	period, err := s.calendar.Current(ctx)
	if err != nil {
		return nil, false, err
	}
	key := fmt.Sprintf("dash:teacher:%s:%s", lecturerID, periodCacheKey(period))
	if cached, ok := s.tryTeacherCache(ctx, key); ok {
		return cached, true, nil
	}
	resp, err := s.composeTeacher(ctx, lecturerID, period)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, key, resp)
	return resp, false, nil
}

// Student assembles the personalised student dashboard.
func (s *DashboardService) Student(ctx context.Context, studentID string) (*dto.StudentDashboardResponse, bool, error) {
	if studentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	period, err := s.calendar.Current(ctx)
	if err != nil {
		return nil, false, err
	}
	key := fmt.Sprintf("dash:student:%s:%s", studentID, periodCacheKey(period))
	if cached, ok := s.tryStudentCache(ctx, key); ok {
		return cached, true, nil
	}
	resp, err := s.composeStudent(ctx, studentID, period)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, key, resp)
	return resp, false, nil
}

func (s *DashboardService) composeAdmin(ctx context.Context, period *models.CurrentAcademicPeriod) (*dto.AdminDashboardResponse, error) {
	resp := &dto.AdminDashboardResponse{
		Calendar: calendarContext(period),
		Grades:   dto.AdminGradesSection{Distribution: []dto.GradeDistributionBin{}},
	}

	totals, err := s.stats.CountPopulation(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load population totals")
	}
	byStatus, err := s.stats.StudentsByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student status counts")
	}
	students := 0
	for _, n := range byStatus {
		students += n
	}
	resp.Population = dto.AdminPopulationSection{
		StudentsByStatus: byStatus,
		TotalStudents:    students,
		TotalLecturers:   totals.Lecturers,
		TotalUnits:       totals.Units,
		TotalCourses:     totals.Courses,
		TotalFaculties:   totals.Faculties,
		TotalDepartments: totals.Departments,
	}

	total, recent, err := s.stats.CountEnrollments(ctx, s.now().AddDate(0, 0, -30))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment counts")
	}
	resp.Enrollments = dto.AdminEnrollmentSection{Last30Days: recent, Total: total}

	if period.Year != nil {
		sessions, recorded, present, err := s.stats.YearAttendanceCounts(ctx, period.Year.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance counts")
		}
		resp.Attendance = dto.AdminAttendanceSection{
			SessionCount: sessions,
			OverallRate:  attendanceRate(present, recorded),
		}

		distribution, err := s.stats.FinalGradeDistribution(ctx, period.Year.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade distribution")
		}
		resp.Grades = dto.AdminGradesSection{Distribution: letterBins(distribution)}

		verified, pending, err := s.stats.FeeCollection(ctx, period.Year.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee collection")
		}
		resp.Fees = dto.AdminFeesSection{VerifiedTotal: roundAmount(verified), PendingPayments: pending}
	}

	open, overdue, err := s.stats.CirculationCounts(ctx, s.now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load circulation counts")
	}
	resp.Library = dto.AdminLibrarySection{OpenBorrowings: open, OverdueCount: overdue}
	return resp, nil
}

func (s *DashboardService) composeTeacher(ctx context.Context, lecturerID string, period *models.CurrentAcademicPeriod) (*dto.TeacherDashboardResponse, error) {
	resp := &dto.TeacherDashboardResponse{
		LecturerID: lecturerID,
		Calendar:   calendarContext(period),
		Units:      []dto.TeacherUnitBlock{},
		Recent:     []dto.RecentSessionItem{},
	}
	// Without an active term there is nothing to scope the teaching load to.
	if period.Year == nil || period.Semester == nil {
		return resp, nil
	}
	yearID, semesterID := period.Year.ID, period.Semester.ID

	units, err := s.stats.ListLecturerUnits(ctx, lecturerID, yearID, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer units")
	}
	for _, unit := range units {
		block := dto.TeacherUnitBlock{
			UnitID:        unit.ID,
			UnitCode:      unit.Code,
			UnitName:      unit.Name,
			EnrolledCount: unit.EnrolledCount,
			SessionCount:  unit.SessionCount,
			LowAttendance: []models.LowAttendanceFlag{},
		}
		recorded, present, err := s.stats.UnitAttendanceCounts(ctx, unit.ID, yearID, semesterID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit attendance counts")
		}
		block.AverageAttendance = attendanceRate(present, recorded)

		ungraded, err := s.stats.UngradedCount(ctx, unit.ID, yearID, semesterID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ungraded count")
		}
		block.UngradedCount = ungraded

		// Zero threshold defers to the attendance service configuration.
		flags, err := s.attendance.FlagLowAttendance(ctx, unit.ID, yearID, semesterID, 0)
		if err != nil {
			return nil, err
		}
		block.LowAttendance = flags
		resp.Units = append(resp.Units, block)
	}

	recent, err := s.sessions.ListRecentByLecturer(ctx, lecturerID, yearID, semesterID, s.cfg.RecentSessionLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent sessions")
	}
	for _, session := range recent {
		item := dto.RecentSessionItem{
			SessionID: session.ID,
			UnitCode:  session.UnitCode,
			Date:      session.Date.Format("2006-01-02"),
			Type:      string(session.SessionType),
		}
		rate, err := s.attendance.SessionRate(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		item.Recorded = rate.Recorded
		item.Rate = rate.Rate
		resp.Recent = append(resp.Recent, item)
	}
	return resp, nil
}

func (s *DashboardService) composeStudent(ctx context.Context, studentID string, period *models.CurrentAcademicPeriod) (*dto.StudentDashboardResponse, error) {
	resp := &dto.StudentDashboardResponse{
		StudentID: studentID,
		Calendar:  calendarContext(period),
		Units:     []dto.StudentUnitBlock{},
		Library:   dto.StudentLibrarySection{OpenBorrowings: []dto.StudentBorrowingItem{}},
		Upcoming:  []dto.UpcomingSessionItem{},
	}

	gpa, err := s.grades.CurrentGPA(ctx, studentID)
	if err != nil {
		return nil, err
	}
	resp.GPA = gpa

	if period.Year != nil && period.Semester != nil {
		enrollments, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{
			StudentID:      studentID,
			AcademicYearID: period.Year.ID,
			SemesterID:     period.Semester.ID,
			Status:         models.EnrollmentStatusEnrolled,
			Page:           1,
			PageSize:       100,
		})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
		}
		for _, enrollment := range enrollments {
			summary, err := s.attendance.UnitPercentage(ctx, studentID, enrollment.UnitID, period.Year.ID, period.Semester.ID)
			if err != nil {
				return nil, err
			}
			resp.Units = append(resp.Units, dto.StudentUnitBlock{
				UnitID:        enrollment.UnitID,
				UnitCode:      enrollment.UnitCode,
				UnitName:      enrollment.UnitName,
				CreditHours:   enrollment.CreditHours,
				Attended:      summary.Attended,
				TotalSessions: summary.TotalSessions,
				Percentage:    summary.Percentage,
			})
		}
	}

	if period.Year != nil {
		balance, err := s.fees.Balance(ctx, studentID, period.Year.ID)
		if err != nil {
			return nil, err
		}
		resp.Fees = dto.StudentFeesSection{
			TotalFee:         balance.TotalFee,
			TotalPaid:        balance.TotalPaid,
			Balance:          balance.Balance,
			StructureMissing: balance.StructureMissing,
		}
	}

	borrowings, err := s.library.StudentBorrowings(ctx, studentID)
	if err != nil {
		return nil, err
	}
	for _, borrowing := range borrowings {
		if borrowing.Returned() {
			continue
		}
		resp.Library.OpenBorrowings = append(resp.Library.OpenBorrowings, dto.StudentBorrowingItem{
			BorrowingID: borrowing.ID,
			BookTitle:   borrowing.BookTitle,
			DueDate:     borrowing.DueDate.Format("2006-01-02"),
			Overdue:     borrowing.Overdue,
			AccruedFine: borrowing.AccruedFine,
		})
	}

	from := s.now()
	upcoming, err := s.sessions.ListUpcomingForStudent(ctx, studentID, from, from.Add(s.cfg.UpcomingWindow))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load upcoming sessions")
	}
	for _, session := range upcoming {
		resp.Upcoming = append(resp.Upcoming, dto.UpcomingSessionItem{
			SessionID: session.ID,
			UnitCode:  session.UnitCode,
			UnitName:  session.UnitName,
			Date:      session.Date.Format("2006-01-02"),
			StartTime: session.StartTime,
			EndTime:   session.EndTime,
			Type:      string(session.SessionType),
		})
	}
	return resp, nil
}

func (s *DashboardService) tryAdminCache(ctx context.Context, key string) (*dto.AdminDashboardResponse, bool) {
	if s.cache == nil || !s.cache.Enabled() {
		return nil, false
	}
	var cached dto.AdminDashboardResponse
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !hit {
		return nil, false
	}
	return &cached, true
}

func (s *DashboardService) tryTeacherCache(ctx context.Context, key string) (*dto.TeacherDashboardResponse, bool) {
	if s.cache == nil || !s.cache.Enabled() {
		return nil, false
	}
	var cached dto.TeacherDashboardResponse
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !hit {
		return nil, false
	}
	return &cached, true
}

func (s *DashboardService) tryStudentCache(ctx context.Context, key string) (*dto.StudentDashboardResponse, bool) {
	if s.cache == nil || !s.cache.Enabled() {
		return nil, false
	}
	var cached dto.StudentDashboardResponse
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("dashboard cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !hit {
		return nil, false
	}
	return &cached, true
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// periodCacheKey derives the cache key suffix from the resolved period so
// activating a different year or semester naturally changes the key.
func periodCacheKey(period *models.CurrentAcademicPeriod) string {
	if period.Year == nil {
		return "degraded"
	}
	if period.Semester == nil {
		return period.Year.ID
	}
	return period.Year.ID + ":" + period.Semester.ID
}

func calendarContext(period *models.CurrentAcademicPeriod) dto.CalendarContext {
	out := dto.CalendarContext{
		Degraded:     period.Degraded,
		FallbackYear: period.FallbackYear,
	}
	if period.Year != nil {
		out.AcademicYearID = period.Year.ID
		out.AcademicYearName = period.Year.Name
	}
	if period.Semester != nil {
		out.SemesterID = period.Semester.ID
		out.SemesterNumber = period.Semester.Number
	}
	return out
}

// attendanceRate converts mark counts into a percentage, nil when nothing
// was recorded.
func attendanceRate(present, recorded int) *float64 {
	if recorded == 0 {
		return nil
	}
	rate := math.Round(float64(present)/float64(recorded)*100*100) / 100
	return &rate
}

// letterBins flattens the letter histogram into a stable display order.
func letterBins(distribution map[string]int) []dto.GradeDistributionBin {
	letters := []models.LetterGrade{
		models.GradeA, models.GradeB, models.GradeC, models.GradeD,
		models.GradeF, models.GradeI, models.GradeW,
	}
	bins := make([]dto.GradeDistributionBin, 0, len(letters))
	for _, letter := range letters {
		bins = append(bins, dto.GradeDistributionBin{Letter: string(letter), Count: distribution[string(letter)]})
	}
	return bins
}
