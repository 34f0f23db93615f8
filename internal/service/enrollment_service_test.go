package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	exists      bool
	failedFinal bool
	passed      []string
	created     *models.Enrollment
	status      map[string]models.EnrollmentStatus
	roster      []models.EnrollmentDetail
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Exists(ctx context.Context, studentID, unitID, yearID, semesterID string) (bool, error) {
	return m.exists, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = "enroll-new"
	}
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if m.status == nil {
		m.status = make(map[string]models.EnrollmentStatus)
	}
	m.status[id] = status
	return nil
}

func (m *mockEnrollmentRepo) ListRoster(ctx context.Context, unitID, yearID, semesterID string) ([]models.EnrollmentDetail, error) {
	return m.roster, nil
}

func (m *mockEnrollmentRepo) PassedUnitIDs(ctx context.Context, studentID string, unitIDs []string) ([]string, error) {
	return m.passed, nil
}

func (m *mockEnrollmentRepo) HasFailedFinal(ctx context.Context, studentID, unitID string) (bool, error) {
	return m.failedFinal, nil
}

type mockStudentReader struct {
	students map[string]*models.StudentDetail
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockUnitReader struct {
	units   map[string]*models.Unit
	prereqs []models.UnitPrerequisiteDetail
}

func (m *mockUnitReader) FindByID(ctx context.Context, id string) (*models.Unit, error) {
	if u, ok := m.units[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUnitReader) ListPrerequisites(ctx context.Context, unitID string) ([]models.UnitPrerequisiteDetail, error) {
	return m.prereqs, nil
}

type mockCalendarReader struct {
	years     map[string]*models.AcademicYear
	semesters map[string]*models.Semester
}

func (m *mockCalendarReader) FindYearByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if y, ok := m.years[id]; ok {
		return y, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCalendarReader) FindSemesterByID(ctx context.Context, id string) (*models.Semester, error) {
	if s, ok := m.semesters[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func enrollmentFixtures() (*mockEnrollmentRepo, *mockStudentReader, *mockUnitReader, *mockCalendarReader) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		"s1": {Student: models.Student{ID: "s1", Status: models.StudentStatusActive}},
	}}
	units := &mockUnitReader{units: map[string]*models.Unit{
		"u1": {ID: "u1", Code: "CS101", Active: true},
	}}
	calendar := &mockCalendarReader{
		years:     map[string]*models.AcademicYear{"y1": {ID: "y1", Name: "2026/2027"}},
		semesters: map[string]*models.Semester{"sem1": {ID: "sem1", AcademicYearID: "y1", Number: 1}},
	}
	return repo, students, units, calendar
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	repo, students, units, calendar := enrollmentFixtures()
	svc := NewEnrollmentService(repo, students, units, calendar, validator.New(), zap.NewNop())

	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "s1", UnitID: "u1", AcademicYearID: "y1", SemesterID: "sem1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.NotNil(t, repo.created)
}

func TestEnrollmentServiceEnrollDuplicate(t *testing.T) {
	repo, students, units, calendar := enrollmentFixtures()
	repo.exists = true
	svc := NewEnrollmentService(repo, students, units, calendar, validator.New(), zap.NewNop())

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "s1", UnitID: "u1", AcademicYearID: "y1", SemesterID: "sem1",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestEnrollmentServiceEnrollSemesterYearMismatch(t *testing.T) {
	repo, students, units, calendar := enrollmentFixtures()
	calendar.semesters["sem1"].AcademicYearID = "other-year"
	svc := NewEnrollmentService(repo, students, units, calendar, validator.New(), zap.NewNop())

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "s1", UnitID: "u1", AcademicYearID: "y1", SemesterID: "sem1",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestEnrollmentServiceEnrollUnmetPrerequisite(t *testing.T) {
	repo, students, units, calendar := enrollmentFixtures()
	units.prereqs = []models.UnitPrerequisiteDetail{
		{UnitPrerequisite: models.UnitPrerequisite{UnitID: "u1", PrerequisiteID: "u0"}, PrerequisiteCode: "CS100"},
	}
	svc := NewEnrollmentService(repo, students, units, calendar, validator.New(), zap.NewNop())

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "s1", UnitID: "u1", AcademicYearID: "y1", SemesterID: "sem1",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "CS100")
}

func TestEnrollmentServiceEnrollPassedPrerequisite(t *testing.T) {
	repo, students, units, calendar := enrollmentFixtures()
	units.prereqs = []models.UnitPrerequisiteDetail{
		{UnitPrerequisite: models.UnitPrerequisite{UnitID: "u1", PrerequisiteID: "u0"}, PrerequisiteCode: "CS100"},
	}
	repo.passed = []string{"u0"}
	svc := NewEnrollmentService(repo, students, units, calendar, validator.New(), zap.NewNop())

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "s1", UnitID: "u1", AcademicYearID: "y1", SemesterID: "sem1",
	})
	require.NoError(t, err)
}

func TestEnrollmentServiceRetakeRequiresFailedFinal(t *testing.T) {
	repo, students, units, calendar := enrollmentFixtures()
	svc := NewEnrollmentService(repo, students, units, calendar, validator.New(), zap.NewNop())

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "s1", UnitID: "u1", AcademicYearID: "y1", SemesterID: "sem1", IsRetake: true,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	repo.failedFinal = true
	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "s1", UnitID: "u1", AcademicYearID: "y1", SemesterID: "sem1", IsRetake: true,
	})
	require.NoError(t, err)
	assert.True(t, enrollment.IsRetake)
}

func TestEnrollmentServiceRetakeSkipsPrerequisiteCheck(t *testing.T) {
	repo, students, units, calendar := enrollmentFixtures()
	units.prereqs = []models.UnitPrerequisiteDetail{
		{UnitPrerequisite: models.UnitPrerequisite{UnitID: "u1", PrerequisiteID: "u0"}, PrerequisiteCode: "CS100"},
	}
	repo.failedFinal = true
	svc := NewEnrollmentService(repo, students, units, calendar, validator.New(), zap.NewNop())

	_, err := svc.Enroll(context.Background(), EnrollRequest{
		StudentID: "s1", UnitID: "u1", AcademicYearID: "y1", SemesterID: "sem1", IsRetake: true,
	})
	require.NoError(t, err)
}

func TestEnrollmentServiceUpdateStatus(t *testing.T) {
	repo, students, units, calendar := enrollmentFixtures()
	repo.enrollments = map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", UnitID: "u1", Status: models.EnrollmentStatusEnrolled},
	}
	svc := NewEnrollmentService(repo, students, units, calendar, validator.New(), zap.NewNop())

	enrollment, err := svc.UpdateStatus(context.Background(), "e1", UpdateEnrollmentStatusRequest{Status: models.EnrollmentStatusDropped})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusDropped, enrollment.Status)
	assert.Equal(t, models.EnrollmentStatusDropped, repo.status["e1"])
}

func TestEnrollmentServiceUpdateStatusRejectsUnknown(t *testing.T) {
	repo, students, units, calendar := enrollmentFixtures()
	svc := NewEnrollmentService(repo, students, units, calendar, validator.New(), zap.NewNop())

	_, err := svc.UpdateStatus(context.Background(), "e1", UpdateEnrollmentStatusRequest{Status: "SUSPENDED"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
