package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type attendanceRepoStub struct {
	sessions      map[string]*models.AttendanceSession
	totalSessions int
	attended      int
	attendedByID  map[string]int
	recorded      int
	present       int
	upserts       []models.AttendanceRecord
	bulk          []models.AttendanceRecord
	failStudents  map[string]bool
	deleted       []string
}

func (r *attendanceRepoStub) ListSessions(ctx context.Context, filter models.AttendanceSessionFilter) ([]models.AttendanceSessionDetail, int, error) {
	return nil, 0, nil
}

func (r *attendanceRepoStub) FindSessionByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, ok := r.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return session, nil
}

func (r *attendanceRepoStub) CreateSession(ctx context.Context, session *models.AttendanceSession) error {
	session.ID = "sess-new"
	r.sessions[session.ID] = session
	return nil
}

func (r *attendanceRepoStub) UpdateSession(ctx context.Context, session *models.AttendanceSession) error {
	r.sessions[session.ID] = session
	return nil
}

func (r *attendanceRepoStub) DeleteSession(ctx context.Context, id string) error {
	r.deleted = append(r.deleted, id)
	delete(r.sessions, id)
	return nil
}

func (r *attendanceRepoStub) CountSessions(ctx context.Context, unitID, yearID, semesterID string) (int, error) {
	return r.totalSessions, nil
}

func (r *attendanceRepoStub) UpsertRecord(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if r.failStudents[record.StudentID] {
		return nil, fmt.Errorf("write failed for %s", record.StudentID)
	}
	stored := *record
	stored.ID = fmt.Sprintf("rec-%d", len(r.upserts)+1)
	r.upserts = append(r.upserts, stored)
	return &stored, nil
}

func (r *attendanceRepoStub) BulkUpsertRecords(ctx context.Context, records []models.AttendanceRecord) error {
	r.bulk = append(r.bulk, records...)
	return nil
}

func (r *attendanceRepoStub) ListRecordsBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	return nil, nil
}

func (r *attendanceRepoStub) SessionCounts(ctx context.Context, sessionID string) (int, int, error) {
	return r.recorded, r.present, nil
}

func (r *attendanceRepoStub) CountAttendedByStudent(ctx context.Context, studentID, unitID, yearID, semesterID string) (int, error) {
	return r.attended, nil
}

func (r *attendanceRepoStub) AttendedCountsByUnit(ctx context.Context, unitID, yearID, semesterID string) (map[string]int, error) {
	return r.attendedByID, nil
}

func (r *attendanceRepoStub) StudentHistory(ctx context.Context, studentID, unitID, yearID, semesterID string) ([]models.AttendanceRecordDetail, error) {
	return nil, nil
}

type attendanceEnrollmentStub struct {
	enrolled map[string]bool
	roster   []models.EnrollmentDetail
}

func (e *attendanceEnrollmentStub) IsEnrolled(ctx context.Context, studentID, unitID, yearID, semesterID string) (bool, error) {
	return e.enrolled[studentID], nil
}

func (e *attendanceEnrollmentStub) ListRoster(ctx context.Context, unitID, yearID, semesterID string) ([]models.EnrollmentDetail, error) {
	return e.roster, nil
}

type attendanceUnitStub struct {
	units map[string]*models.Unit
}

func (u *attendanceUnitStub) FindByID(ctx context.Context, id string) (*models.Unit, error) {
	unit, ok := u.units[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return unit, nil
}

func attendanceFixtures() (*attendanceRepoStub, *attendanceEnrollmentStub, *attendanceUnitStub) {
	repo := &attendanceRepoStub{
		sessions: map[string]*models.AttendanceSession{
			"sess-1": {
				ID:             "sess-1",
				UnitID:         "u1",
				AcademicYearID: "y1",
				SemesterID:     "sem1",
				Date:           time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC),
				StartTime:      "08:00",
				EndTime:        "10:00",
				WeekNumber:     2,
				SessionType:    models.SessionTypeLecture,
			},
		},
		attendedByID: map[string]int{},
		failStudents: map[string]bool{},
	}
	enrollments := &attendanceEnrollmentStub{enrolled: map[string]bool{"stu-1": true}}
	units := &attendanceUnitStub{units: map[string]*models.Unit{
		"u1": {ID: "u1", Code: "CS101", Name: "Introduction to Programming", CreditHours: 4, Active: true},
	}}
	return repo, enrollments, units
}

func TestAttendanceServiceCreateSessionDefaultsEndTime(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	session, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		UnitID:         "u1",
		AcademicYearID: "y1",
		SemesterID:     "sem1",
		Date:           time.Date(2026, 9, 21, 0, 0, 0, 0, time.UTC),
		StartTime:      "08:00",
		WeekNumber:     3,
		SessionType:    models.SessionTypeLecture,
		Topic:          "Control flow",
	}, "lect-1")
	require.NoError(t, err)
	assert.Equal(t, "09:30", session.EndTime)
	require.NotNil(t, session.CreatedBy)
	assert.Equal(t, "lect-1", *session.CreatedBy)
}

func TestAttendanceServiceCreateSessionRejectsEndBeforeStart(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	_, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		UnitID:         "u1",
		AcademicYearID: "y1",
		SemesterID:     "sem1",
		Date:           time.Date(2026, 9, 21, 0, 0, 0, 0, time.UTC),
		StartTime:      "10:00",
		EndTime:        "09:00",
		WeekNumber:     3,
		SessionType:    models.SessionTypeLecture,
	}, "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAttendanceServiceCreateSessionUnknownUnit(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	_, err := svc.CreateSession(context.Background(), CreateSessionRequest{
		UnitID:         "missing",
		AcademicYearID: "y1",
		SemesterID:     "sem1",
		Date:           time.Date(2026, 9, 21, 0, 0, 0, 0, time.UTC),
		StartTime:      "08:00",
		WeekNumber:     3,
		SessionType:    models.SessionTypeLecture,
	}, "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestAttendanceServiceMarkUppercasesStatus(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	record, err := svc.Mark(context.Background(), "sess-1", MarkAttendanceRequest{
		StudentID: "stu-1",
		Status:    "present",
	}, "lect-1")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)
	require.NotNil(t, record.MarkedBy)
	assert.Equal(t, "lect-1", *record.MarkedBy)
	require.Len(t, repo.upserts, 1)
}

func TestAttendanceServiceMarkRequiresEnrollment(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	_, err := svc.Mark(context.Background(), "sess-1", MarkAttendanceRequest{
		StudentID: "stu-2",
		Status:    "PRESENT",
	}, "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, repo.upserts)
}

func TestAttendanceServiceBulkMarkAtomicRejectsWholeBatch(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	_, err := svc.BulkMark(context.Background(), "sess-1", BulkMarkRequest{
		Records: []BulkMarkRow{
			{StudentID: "stu-1", Status: "PRESENT"},
			{StudentID: "stu-2", Status: "ABSENT"},
		},
	}, "lect-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, repo.bulk)
}

func TestAttendanceServiceBulkMarkPartialReportsConflicts(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	result, err := svc.BulkMark(context.Background(), "sess-1", BulkMarkRequest{
		Mode: string(models.BulkModePartialOnError),
		Records: []BulkMarkRow{
			{StudentID: "stu-1", Status: "LATE"},
			{StudentID: "stu-2", Status: "PRESENT"},
		},
	}, "lect-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Marked)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "stu-2", result.Conflicts[0].StudentID)
	assert.Equal(t, "not enrolled in session unit", result.Conflicts[0].Reason)
}

func TestAttendanceServiceBulkMarkPartialSkipsFailedWrites(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	enrollments.enrolled["stu-2"] = true
	repo.failStudents["stu-1"] = true
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	result, err := svc.BulkMark(context.Background(), "sess-1", BulkMarkRequest{
		Mode: string(models.BulkModePartialOnError),
		Records: []BulkMarkRow{
			{StudentID: "stu-1", Status: "PRESENT"},
			{StudentID: "stu-2", Status: "PRESENT"},
		},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Marked)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "write failed", result.Conflicts[0].Reason)
}

func TestAttendanceServiceSessionRateUndefinedWithoutRecords(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	rate, err := svc.SessionRate(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, rate.Recorded)
	assert.Nil(t, rate.Rate)
}

func TestAttendanceServiceSessionRate(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	repo.recorded = 10
	repo.present = 7
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	rate, err := svc.SessionRate(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, rate.Rate)
	assert.InDelta(t, 70.0, *rate.Rate, 0.001)
}

func TestAttendanceServiceUnitPercentage(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	repo.totalSessions = 8
	repo.attended = 6
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	summary, err := svc.UnitPercentage(context.Background(), "stu-1", "u1", "y1", "sem1")
	require.NoError(t, err)
	assert.Equal(t, 8, summary.TotalSessions)
	assert.Equal(t, 6, summary.Attended)
	assert.InDelta(t, 75.0, summary.Percentage, 0.001)
}

func TestAttendanceServiceUnitPercentageNoSessions(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	summary, err := svc.UnitPercentage(context.Background(), "stu-1", "u1", "y1", "sem1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalSessions)
	assert.Equal(t, 0.0, summary.Percentage)
}

func TestAttendanceServiceFlagLowAttendanceStrictlyBelowThreshold(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	repo.totalSessions = 4
	repo.attendedByID = map[string]int{"stu-1": 3, "stu-2": 2}
	enrollments.roster = []models.EnrollmentDetail{
		{Enrollment: models.Enrollment{StudentID: "stu-1"}, StudentName: "Jane Wanjiku", StudentRegNumber: "SCT-001-2026"},
		{Enrollment: models.Enrollment{StudentID: "stu-2"}, StudentName: "Brian Otieno", StudentRegNumber: "SCT-002-2026"},
	}
	svc := NewAttendanceService(repo, enrollments, units, 75, nil, nil)

	flags, err := svc.FlagLowAttendance(context.Background(), "u1", "y1", "sem1", 0)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "stu-2", flags[0].StudentID)
	assert.InDelta(t, 50.0, flags[0].Percentage, 0.001)
}

func TestAttendanceServiceUnitRegisterEmptyWithoutSessions(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	register, err := svc.UnitRegister(context.Background(), "u1", "y1", "sem1")
	require.NoError(t, err)
	assert.Empty(t, register)
}

func TestAttendanceServiceDeleteSessionRemovesRecords(t *testing.T) {
	repo, enrollments, units := attendanceFixtures()
	svc := NewAttendanceService(repo, enrollments, units, 0, nil, nil)

	err := svc.DeleteSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, repo.deleted)

	err = svc.DeleteSession(context.Background(), "sess-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
