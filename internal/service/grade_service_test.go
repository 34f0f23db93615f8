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

type mockGradeRepo struct {
	grades    map[string]models.Grade
	exists    bool
	created   *models.Grade
	updated   *models.Grade
	letters   map[string]models.LetterGrade
	finalRows []models.TranscriptRow
	unitRows  []models.GradeDetail
}

func (m *mockGradeRepo) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	return nil, 0, nil
}

func (m *mockGradeRepo) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	if g, ok := m.grades[id]; ok {
		return &g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRepo) Exists(ctx context.Context, studentID, unitID, yearID, semesterID string, assessment models.AssessmentType) (bool, error) {
	return m.exists, nil
}

func (m *mockGradeRepo) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = "grade-new"
	}
	m.created = grade
	return nil
}

func (m *mockGradeRepo) Update(ctx context.Context, grade *models.Grade) error {
	m.updated = grade
	return nil
}

func (m *mockGradeRepo) SetLetter(ctx context.Context, id string, letter models.LetterGrade) error {
	if m.letters == nil {
		m.letters = make(map[string]models.LetterGrade)
	}
	m.letters[id] = letter
	return nil
}

func (m *mockGradeRepo) ListFinalByStudent(ctx context.Context, studentID string) ([]models.TranscriptRow, error) {
	return m.finalRows, nil
}

func (m *mockGradeRepo) ListByUnitOffering(ctx context.Context, unitID, yearID, semesterID string, finalOnly bool) ([]models.GradeDetail, error) {
	return m.unitRows, nil
}

type gradeEnrollmentStub struct {
	enrolled bool
}

func (s *gradeEnrollmentStub) IsEnrolled(ctx context.Context, studentID, unitID, yearID, semesterID string) (bool, error) {
	return s.enrolled, nil
}

func newGradeService(repo *mockGradeRepo, enrolled bool) *GradeService {
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		"s1": {
			Student:    models.Student{ID: "s1", RegistrationNumber: "SCT-001-2026"},
			FullName:   "Jane Wanjiku",
			CourseName: "BSc Computer Science",
		},
	}}
	return NewGradeService(repo, &gradeEnrollmentStub{enrolled: enrolled}, students, validator.New(), zap.NewNop())
}

func TestGradeServiceRecordDerivesLetter(t *testing.T) {
	repo := &mockGradeRepo{}
	svc := newGradeService(repo, true)

	grade, err := svc.Record(context.Background(), RecordGradeRequest{
		StudentID: "s1", UnitID: "u1", AcademicYearID: "y1", SemesterID: "sem1",
		Assessment: models.AssessmentCAT, Marks: 65,
	}, "lect-1")
	require.NoError(t, err)
	assert.Equal(t, models.GradeB, grade.Letter)
	assert.False(t, grade.IsFinal)
	require.NotNil(t, grade.RecordedBy)
	assert.Equal(t, "lect-1", *grade.RecordedBy)
}

func TestGradeServiceRecordFinalExam(t *testing.T) {
	repo := &mockGradeRepo{}
	svc := newGradeService(repo, true)

	grade, err := svc.Record(context.Background(), RecordGradeRequest{
		StudentID: "s1", UnitID: "u1", AcademicYearID: "y1", SemesterID: "sem1",
		Assessment: models.AssessmentFinalExam, Marks: 72,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, models.GradeA, grade.Letter)
	assert.True(t, grade.IsFinal)
	assert.Nil(t, grade.RecordedBy)
}

func TestGradeServiceRecordRequiresEnrollment(t *testing.T) {
	repo := &mockGradeRepo{}
	svc := newGradeService(repo, false)

	_, err := svc.Record(context.Background(), RecordGradeRequest{
		StudentID: "s1", UnitID: "u1", AcademicYearID: "y1", SemesterID: "sem1",
		Assessment: models.AssessmentCAT, Marks: 50,
	}, "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestGradeServiceRecordDuplicateAssessment(t *testing.T) {
	repo := &mockGradeRepo{exists: true}
	svc := newGradeService(repo, true)

	_, err := svc.Record(context.Background(), RecordGradeRequest{
		StudentID: "s1", UnitID: "u1", AcademicYearID: "y1", SemesterID: "sem1",
		Assessment: models.AssessmentCAT, Marks: 50,
	}, "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestGradeServiceUpdateRederivesLetter(t *testing.T) {
	repo := &mockGradeRepo{grades: map[string]models.Grade{
		"g1": {ID: "g1", Marks: 62, Letter: models.GradeB},
	}}
	svc := newGradeService(repo, true)

	grade, err := svc.Update(context.Background(), "g1", UpdateGradeRequest{Marks: 45})
	require.NoError(t, err)
	assert.Equal(t, models.GradeD, grade.Letter)
	assert.Equal(t, 45.0, grade.Marks)
}

func TestGradeServiceUpdateKeepsManualStatus(t *testing.T) {
	repo := &mockGradeRepo{grades: map[string]models.Grade{
		"g1": {ID: "g1", Marks: 0, Letter: models.GradeI},
	}}
	svc := newGradeService(repo, true)

	grade, err := svc.Update(context.Background(), "g1", UpdateGradeRequest{Marks: 80})
	require.NoError(t, err)
	assert.Equal(t, models.GradeI, grade.Letter)
	assert.Equal(t, 80.0, grade.Marks)
}

func TestGradeServiceSetStatusManualOnly(t *testing.T) {
	repo := &mockGradeRepo{grades: map[string]models.Grade{
		"g1": {ID: "g1", Marks: 55, Letter: models.GradeC},
	}}
	svc := newGradeService(repo, true)

	_, err := svc.SetStatus(context.Background(), "g1", SetGradeStatusRequest{Letter: models.GradeA})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	grade, err := svc.SetStatus(context.Background(), "g1", SetGradeStatusRequest{Letter: models.GradeW})
	require.NoError(t, err)
	assert.Equal(t, models.GradeW, grade.Letter)
	assert.Equal(t, models.GradeW, repo.letters["g1"])
}

func TestGradeServiceResolveStatus(t *testing.T) {
	repo := &mockGradeRepo{grades: map[string]models.Grade{
		"g1": {ID: "g1", Marks: 55, Letter: models.GradeI},
	}}
	svc := newGradeService(repo, true)

	grade, err := svc.ResolveStatus(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, models.GradeC, grade.Letter)
}

func TestGradeServiceResolveStatusWithoutManual(t *testing.T) {
	repo := &mockGradeRepo{grades: map[string]models.Grade{
		"g1": {ID: "g1", Marks: 55, Letter: models.GradeC},
	}}
	svc := newGradeService(repo, true)

	_, err := svc.ResolveStatus(context.Background(), "g1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestGradeServiceCurrentGPA(t *testing.T) {
	repo := &mockGradeRepo{finalRows: []models.TranscriptRow{
		{UnitCode: "CS101", CreditHours: 4, Letter: models.GradeA},
		{UnitCode: "CS102", CreditHours: 3, Letter: models.GradeB},
	}}
	svc := newGradeService(repo, true)

	gpa, err := svc.CurrentGPA(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 3.57, gpa)
}

func TestGradeServiceCurrentGPANoFinals(t *testing.T) {
	repo := &mockGradeRepo{}
	svc := newGradeService(repo, true)

	gpa, err := svc.CurrentGPA(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, gpa)
}

func TestGradeServiceGPAKeepsManualCreditsInDenominator(t *testing.T) {
	repo := &mockGradeRepo{finalRows: []models.TranscriptRow{
		{UnitCode: "CS101", CreditHours: 4, Letter: models.GradeA},
		{UnitCode: "CS102", CreditHours: 3, Letter: models.GradeI},
	}}
	svc := newGradeService(repo, true)

	gpa, err := svc.CurrentGPA(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2.29, gpa)
}

func TestGradeServiceTranscript(t *testing.T) {
	repo := &mockGradeRepo{finalRows: []models.TranscriptRow{
		{UnitCode: "CS101", CreditHours: 4, Marks: 81, Letter: models.GradeA},
	}}
	svc := newGradeService(repo, true)

	transcript, err := svc.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Wanjiku", transcript.StudentName)
	assert.Equal(t, "SCT-001-2026", transcript.RegNumber)
	require.Len(t, transcript.Rows, 1)
	assert.Equal(t, 4.0, transcript.Rows[0].Points)
	assert.Equal(t, 4.0, transcript.GPA)
}

func TestGradeServiceUnitReportAverage(t *testing.T) {
	repo := &mockGradeRepo{unitRows: []models.GradeDetail{
		{Grade: models.Grade{ID: "g1", Marks: 60}},
		{Grade: models.Grade{ID: "g2", Marks: 70}},
	}}
	svc := newGradeService(repo, true)

	report, err := svc.UnitReport(context.Background(), "u1", "y1", "sem1", true)
	require.NoError(t, err)
	require.NotNil(t, report.Average)
	assert.Equal(t, 65.0, *report.Average)
	assert.Len(t, report.Grades, 2)
}
