package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type mockStudentRepo struct {
	students   map[string]models.Student
	regNumbers map[string]string
	statuses   map[string]models.StudentStatus
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	details := make([]models.StudentDetail, 0, len(m.students))
	for _, s := range m.students {
		details = append(details, models.StudentDetail{Student: s})
	}
	return details, len(details), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	if s, ok := m.students[id]; ok {
		return &models.StudentDetail{Student: s}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) ExistsByRegistrationNumber(ctx context.Context, regNumber string, excludeID string) (bool, error) {
	if id, ok := m.regNumbers[regNumber]; ok {
		if excludeID == "" || id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if student.ID == "" {
		student.ID = "stu-new"
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) SetStatus(ctx context.Context, id string, status models.StudentStatus) error {
	if m.statuses == nil {
		m.statuses = make(map[string]models.StudentStatus)
	}
	m.statuses[id] = status
	return nil
}

type studentUserStub struct {
	emailTaken bool
	created    *models.User
}

func (u *studentUserStub) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	return u.emailTaken, nil
}

func (u *studentUserStub) Create(ctx context.Context, user *models.User) error {
	user.ID = "user-new"
	u.created = user
	return nil
}

func studentFixtures() (*mockStudentRepo, *studentUserStub, *feeCourseStub) {
	repo := &mockStudentRepo{
		students:   map[string]models.Student{},
		regNumbers: map[string]string{},
	}
	users := &studentUserStub{}
	courses := &feeCourseStub{courses: map[string]*models.Course{
		"c1": {ID: "c1", Name: "BSc Computer Science", Code: "BSC-CS", Active: true},
	}}
	return repo, users, courses
}

func validCreateStudentRequest() CreateStudentRequest {
	return CreateStudentRequest{
		Email:              "Jane.Wanjiku@campus.local",
		FullName:           "Jane Wanjiku",
		Password:           "secret123",
		RegistrationNumber: "SCT-001-2026",
		CourseID:           "c1",
		YearOfStudy:        1,
		AdmissionDate:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStudentServiceCreate(t *testing.T) {
	repo, users, courses := studentFixtures()
	svc := NewStudentService(repo, users, courses, nil, nil)

	student, err := svc.Create(context.Background(), validCreateStudentRequest())
	require.NoError(t, err)
	assert.Equal(t, "stu-new", student.ID)
	assert.Equal(t, models.StudentStatusActive, student.Status)
	assert.Equal(t, "user-new", student.UserID)

	require.NotNil(t, users.created)
	assert.Equal(t, "jane.wanjiku@campus.local", users.created.Email)
	assert.Equal(t, models.RoleStudent, users.created.Role)
	assert.True(t, users.created.Active)
	assert.NotEqual(t, "secret123", users.created.PasswordHash)
}

func TestStudentServiceCreateDuplicateRegNumber(t *testing.T) {
	repo, users, courses := studentFixtures()
	repo.regNumbers["SCT-001-2026"] = "other-student"
	svc := NewStudentService(repo, users, courses, nil, nil)

	_, err := svc.Create(context.Background(), validCreateStudentRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Nil(t, users.created)
}

func TestStudentServiceCreateDuplicateEmail(t *testing.T) {
	repo, users, courses := studentFixtures()
	users.emailTaken = true
	svc := NewStudentService(repo, users, courses, nil, nil)

	_, err := svc.Create(context.Background(), validCreateStudentRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestStudentServiceCreateUnknownCourse(t *testing.T) {
	repo, users, courses := studentFixtures()
	svc := NewStudentService(repo, users, courses, nil, nil)

	req := validCreateStudentRequest()
	req.CourseID = "ghost"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestStudentServiceUpdate(t *testing.T) {
	repo, users, courses := studentFixtures()
	repo.students["s1"] = models.Student{
		ID:                 "s1",
		RegistrationNumber: "SCT-001-2026",
		CourseID:           "c1",
		YearOfStudy:        1,
		Status:             models.StudentStatusActive,
	}
	svc := NewStudentService(repo, users, courses, nil, nil)

	updated, err := svc.Update(context.Background(), "s1", UpdateStudentRequest{
		RegistrationNumber: "SCT-001-2026",
		CourseID:           "c1",
		YearOfStudy:        2,
		AdmissionDate:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Phone:              "+254700000001",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.YearOfStudy)
	assert.Equal(t, "+254700000001", updated.Phone)
	assert.Equal(t, models.StudentStatusActive, updated.Status)
}

func TestStudentServiceSetStatus(t *testing.T) {
	repo, users, courses := studentFixtures()
	repo.students["s1"] = models.Student{ID: "s1", Status: models.StudentStatusActive}
	svc := NewStudentService(repo, users, courses, nil, nil)

	student, err := svc.SetStatus(context.Background(), "s1", SetStudentStatusRequest{Status: models.StudentStatusGraduated})
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusGraduated, student.Status)
	assert.Equal(t, models.StudentStatusGraduated, repo.statuses["s1"])
}

func TestStudentServiceSetStatusTerminalGuard(t *testing.T) {
	repo, users, courses := studentFixtures()
	repo.students["s1"] = models.Student{ID: "s1", Status: models.StudentStatusGraduated}
	svc := NewStudentService(repo, users, courses, nil, nil)

	_, err := svc.SetStatus(context.Background(), "s1", SetStudentStatusRequest{Status: models.StudentStatusActive})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Empty(t, repo.statuses)
}

func TestStudentServiceSetStatusSuspendedReturns(t *testing.T) {
	repo, users, courses := studentFixtures()
	repo.students["s1"] = models.Student{ID: "s1", Status: models.StudentStatusSuspended}
	svc := NewStudentService(repo, users, courses, nil, nil)

	student, err := svc.SetStatus(context.Background(), "s1", SetStudentStatusRequest{Status: models.StudentStatusActive})
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusActive, student.Status)
}

func TestStudentServiceSetStatusUnknown(t *testing.T) {
	repo, users, courses := studentFixtures()
	repo.students["s1"] = models.Student{ID: "s1", Status: models.StudentStatusActive}
	svc := NewStudentService(repo, users, courses, nil, nil)

	_, err := svc.SetStatus(context.Background(), "s1", SetStudentStatusRequest{Status: "EXPELLED"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}
