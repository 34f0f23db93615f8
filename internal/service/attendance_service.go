package service

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type attendanceRepository interface {
	ListSessions(ctx context.Context, filter models.AttendanceSessionFilter) ([]models.AttendanceSessionDetail, int, error)
	FindSessionByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	CreateSession(ctx context.Context, session *models.AttendanceSession) error
	UpdateSession(ctx context.Context, session *models.AttendanceSession) error
	DeleteSession(ctx context.Context, id string) error
	CountSessions(ctx context.Context, unitID, yearID, semesterID string) (int, error)
	UpsertRecord(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	BulkUpsertRecords(ctx context.Context, records []models.AttendanceRecord) error
	ListRecordsBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error)
	SessionCounts(ctx context.Context, sessionID string) (recorded int, present int, err error)
	CountAttendedByStudent(ctx context.Context, studentID, unitID, yearID, semesterID string) (int, error)
	AttendedCountsByUnit(ctx context.Context, unitID, yearID, semesterID string) (map[string]int, error)
	StudentHistory(ctx context.Context, studentID, unitID, yearID, semesterID string) ([]models.AttendanceRecordDetail, error)
}

type attendanceEnrollmentReader interface {
	IsEnrolled(ctx context.Context, studentID, unitID, yearID, semesterID string) (bool, error)
	ListRoster(ctx context.Context, unitID, yearID, semesterID string) ([]models.EnrollmentDetail, error)
}

type attendanceUnitReader interface {
	FindByID(ctx context.Context, id string) (*models.Unit, error)
}

const defaultSessionDuration = 90 * time.Minute

// CreateSessionRequest describes a teaching session to record.
type CreateSessionRequest struct {
	UnitID         string             `json:"unit_id" validate:"required"`
	AcademicYearID string             `json:"academic_year_id" validate:"required"`
	SemesterID     string             `json:"semester_id" validate:"required"`
	Date           time.Time          `json:"date" validate:"required"`
	StartTime      string             `json:"start_time" validate:"required,hhmm"`
	EndTime        string             `json:"end_time" validate:"omitempty,hhmm"`
	WeekNumber     int                `json:"week_number" validate:"required,min=1,max=15"`
	SessionType    models.SessionType `json:"session_type" validate:"required"`
	Topic          string             `json:"topic"`
}

// UpdateSessionRequest describes session fields open to correction.
type UpdateSessionRequest struct {
	Date        time.Time          `json:"date" validate:"required"`
	StartTime   string             `json:"start_time" validate:"required,hhmm"`
	EndTime     string             `json:"end_time" validate:"omitempty,hhmm"`
	WeekNumber  int                `json:"week_number" validate:"required,min=1,max=15"`
	SessionType models.SessionType `json:"session_type" validate:"required"`
	Topic       string             `json:"topic"`
}

// MarkAttendanceRequest marks a single student for a session.
type MarkAttendanceRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required,attendance_status"`
	Remarks   *string `json:"remarks,omitempty"`
}

// BulkMarkRow is one roster entry inside a bulk marking request.
type BulkMarkRow struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required,attendance_status"`
	Remarks   *string `json:"remarks,omitempty"`
}

// BulkMarkRequest marks a whole roster in one call.
type BulkMarkRequest struct {
	Mode    string        `json:"mode" validate:"omitempty,bulk_mode"`
	Records []BulkMarkRow `json:"records" validate:"required,min=1,dive"`
}

// BulkMarkResult reports how a bulk marking request was applied.
type BulkMarkResult struct {
	Marked    int                             `json:"marked"`
	Conflicts []models.AttendanceBulkConflict `json:"conflicts,omitempty"`
}

// AttendanceService coordinates session management and attendance marking.
type AttendanceService struct {
	repo        attendanceRepository
	enrollments attendanceEnrollmentReader
	units       attendanceUnitReader
	threshold   float64
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs the attendance service. A non-positive
// threshold falls back to the 75 percent default.
func NewAttendanceService(repo attendanceRepository, enrollments attendanceEnrollmentReader, units attendanceUnitReader, threshold float64, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = 75
	}
	svc := &AttendanceService{repo: repo, enrollments: enrollments, units: units, threshold: threshold, validator: validate, logger: logger}
	svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToUpper(fl.Field().String())).Valid()
	})
	svc.validator.RegisterValidation("bulk_mode", func(fl validator.FieldLevel) bool {
		mode := models.BulkOperationMode(fl.Field().String())
		return mode == models.BulkModeAtomic || mode == models.BulkModePartialOnError
	})
	svc.validator.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("15:04", fl.Field().String())
		return err == nil
	})
	return svc
}

// ListSessions returns sessions and pagination metadata.
func (s *AttendanceService) ListSessions(ctx context.Context, filter models.AttendanceSessionFilter) ([]models.AttendanceSessionDetail, *models.Pagination, error) {
	sessions, total, err := s.repo.ListSessions(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetSession returns a single session.
func (s *AttendanceService) GetSession(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, err := s.repo.FindSessionByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// CreateSession records a teaching session. A missing end time defaults to
// ninety minutes after the start.
func (s *AttendanceService) CreateSession(ctx context.Context, req CreateSessionRequest, createdBy string) (*models.AttendanceSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if !req.SessionType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown session type")
	}
	if _, err := s.units.FindByID(ctx, req.UnitID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	endTime, err := resolveEndTime(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	session := &models.AttendanceSession{
		UnitID:         req.UnitID,
		AcademicYearID: req.AcademicYearID,
		SemesterID:     req.SemesterID,
		Date:           req.Date,
		StartTime:      req.StartTime,
		EndTime:        endTime,
		WeekNumber:     req.WeekNumber,
		SessionType:    req.SessionType,
		Topic:          req.Topic,
	}
	if createdBy != "" {
		session.CreatedBy = &createdBy
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	return session, nil
}

// UpdateSession corrects session details.
func (s *AttendanceService) UpdateSession(ctx context.Context, id string, req UpdateSessionRequest) (*models.AttendanceSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if !req.SessionType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown session type")
	}
	session, err := s.repo.FindSessionByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	endTime, err := resolveEndTime(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}

	session.Date = req.Date
	session.StartTime = req.StartTime
	session.EndTime = endTime
	session.WeekNumber = req.WeekNumber
	session.SessionType = req.SessionType
	session.Topic = req.Topic
	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	return session, nil
}

// DeleteSession removes a session together with its attendance records.
func (s *AttendanceService) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.repo.FindSessionByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if err := s.repo.DeleteSession(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	return nil
}

// Mark upserts one student's attendance for a session. Repeated marks
// rewrite the stored status in place.
func (s *AttendanceService) Mark(ctx context.Context, sessionID string, req MarkAttendanceRequest, markedBy string) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, req.StudentID, session.UnitID, session.AcademicYearID, session.SemesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student not enrolled in session unit")
	}

	record := &models.AttendanceRecord{
		SessionID: sessionID,
		StudentID: req.StudentID,
		Status:    models.AttendanceStatus(strings.ToUpper(req.Status)),
		Remarks:   req.Remarks,
	}
	if markedBy != "" {
		record.MarkedBy = &markedBy
	}
	stored, err := s.repo.UpsertRecord(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}
	return stored, nil
}

// BulkMark marks a roster in one call. Atomic mode rejects the whole batch
// on the first invalid row; partialOnError skips invalid rows and reports
// them as conflicts.
func (s *AttendanceService) BulkMark(ctx context.Context, sessionID string, req BulkMarkRequest, markedBy string) (*BulkMarkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	mode := models.BulkOperationMode(req.Mode)
	if mode == "" {
		mode = models.BulkModeAtomic
	}

	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	records := make([]models.AttendanceRecord, 0, len(req.Records))
	conflicts := make([]models.AttendanceBulkConflict, 0)
	for _, row := range req.Records {
		enrolled, err := s.enrollments.IsEnrolled(ctx, row.StudentID, session.UnitID, session.AcademicYearID, session.SemesterID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if !enrolled {
			if mode == models.BulkModeAtomic {
				return nil, appErrors.Clone(appErrors.ErrValidation, "student "+row.StudentID+" not enrolled in session unit")
			}
			conflicts = append(conflicts, models.AttendanceBulkConflict{
				StudentID: row.StudentID,
				SessionID: sessionID,
				Reason:    "not enrolled in session unit",
			})
			continue
		}
		record := models.AttendanceRecord{
			SessionID: sessionID,
			StudentID: row.StudentID,
			Status:    models.AttendanceStatus(strings.ToUpper(row.Status)),
			Remarks:   row.Remarks,
		}
		if markedBy != "" {
			record.MarkedBy = &markedBy
		}
		records = append(records, record)
	}

	if mode == models.BulkModeAtomic {
		if err := s.repo.BulkUpsertRecords(ctx, records); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bulk mark attendance")
		}
		return &BulkMarkResult{Marked: len(records)}, nil
	}

	marked := 0
	for i := range records {
		if _, err := s.repo.UpsertRecord(ctx, &records[i]); err != nil {
			s.logger.Warn("bulk attendance row failed",
				zap.String("session_id", sessionID),
				zap.String("student_id", records[i].StudentID),
				zap.Error(err))
			conflicts = append(conflicts, models.AttendanceBulkConflict{
				StudentID: records[i].StudentID,
				SessionID: sessionID,
				Reason:    "write failed",
			})
			continue
		}
		marked++
	}
	return &BulkMarkResult{Marked: marked, Conflicts: conflicts}, nil
}

// SessionRecords lists the marks stored for a session.
func (s *AttendanceService) SessionRecords(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	if _, err := s.repo.FindSessionByID(ctx, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	records, err := s.repo.ListRecordsBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list session records")
	}
	return records, nil
}

// SessionRate reports the attendance rate of one session. With zero records
// the rate is undefined and stays nil.
func (s *AttendanceService) SessionRate(ctx context.Context, sessionID string) (*models.SessionAttendanceRate, error) {
	if _, err := s.repo.FindSessionByID(ctx, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	recorded, present, err := s.repo.SessionCounts(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count session records")
	}
	rate := &models.SessionAttendanceRate{SessionID: sessionID, Recorded: recorded, Present: present}
	if recorded > 0 {
		value := math.Round(float64(present)/float64(recorded)*100*100) / 100
		rate.Rate = &value
	}
	return rate, nil
}

// UnitPercentage computes a student's attendance percentage across all
// sessions of a unit offering. No sessions means zero percent.
func (s *AttendanceService) UnitPercentage(ctx context.Context, studentID, unitID, yearID, semesterID string) (*models.UnitAttendanceSummary, error) {
	total, err := s.repo.CountSessions(ctx, unitID, yearID, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
	}
	summary := &models.UnitAttendanceSummary{StudentID: studentID, UnitID: unitID, TotalSessions: total}
	if total == 0 {
		return summary, nil
	}
	attended, err := s.repo.CountAttendedByStudent(ctx, studentID, unitID, yearID, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attended sessions")
	}
	summary.Attended = attended
	summary.Percentage = math.Round(float64(attended)/float64(total)*100*100) / 100
	return summary, nil
}

// UnitRegister builds the full per-student attendance register of one unit
// offering. Zero sessions yields an empty register.
func (s *AttendanceService) UnitRegister(ctx context.Context, unitID, yearID, semesterID string) ([]models.UnitRegisterRow, error) {
	total, err := s.repo.CountSessions(ctx, unitID, yearID, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
	}
	register := []models.UnitRegisterRow{}
	if total == 0 {
		return register, nil
	}

	roster, err := s.enrollments.ListRoster(ctx, unitID, yearID, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	attendedByStudent, err := s.repo.AttendedCountsByUnit(ctx, unitID, yearID, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attendance")
	}

	for _, entry := range roster {
		attended := attendedByStudent[entry.StudentID]
		register = append(register, models.UnitRegisterRow{
			StudentID:     entry.StudentID,
			StudentName:   entry.StudentName,
			RegNumber:     entry.StudentRegNumber,
			Attended:      attended,
			TotalSessions: total,
			Percentage:    math.Round(float64(attended)/float64(total)*100*100) / 100,
		})
	}
	return register, nil
}

// FlagLowAttendance returns actively enrolled students whose attendance sits
// strictly below the threshold. Zero sessions yields an empty list.
func (s *AttendanceService) FlagLowAttendance(ctx context.Context, unitID, yearID, semesterID string, threshold float64) ([]models.LowAttendanceFlag, error) {
	if threshold <= 0 {
		threshold = s.threshold
	}
	register, err := s.UnitRegister(ctx, unitID, yearID, semesterID)
	if err != nil {
		return nil, err
	}
	flags := []models.LowAttendanceFlag{}
	for _, row := range register {
		if row.Percentage < threshold {
			flags = append(flags, models.LowAttendanceFlag{
				StudentID:     row.StudentID,
				StudentName:   row.StudentName,
				RegNumber:     row.RegNumber,
				Attended:      row.Attended,
				TotalSessions: row.TotalSessions,
				Percentage:    row.Percentage,
			})
		}
	}
	return flags, nil
}

// StudentHistory lists a student's marks in a unit offering.
func (s *AttendanceService) StudentHistory(ctx context.Context, studentID, unitID, yearID, semesterID string) ([]models.AttendanceRecordDetail, error) {
	history, err := s.repo.StudentHistory(ctx, studentID, unitID, yearID, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	return history, nil
}

// resolveEndTime applies the default session duration when the end time is
// absent and rejects an end at or before the start.
func resolveEndTime(startTime, endTime string) (string, error) {
	start, err := time.Parse("15:04", startTime)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}
	if endTime == "" {
		return start.Add(defaultSessionDuration).Format("15:04"), nil
	}
	end, err := time.Parse("15:04", endTime)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
	}
	if !end.After(start) {
		return "", appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	return endTime, nil
}
