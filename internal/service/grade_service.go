package service

import (
	"context"
	"database/sql"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type gradeRepository interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	Exists(ctx context.Context, studentID, unitID, yearID, semesterID string, assessment models.AssessmentType) (bool, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	SetLetter(ctx context.Context, id string, letter models.LetterGrade) error
	ListFinalByStudent(ctx context.Context, studentID string) ([]models.TranscriptRow, error)
	ListByUnitOffering(ctx context.Context, unitID, yearID, semesterID string, finalOnly bool) ([]models.GradeDetail, error)
}

type gradeEnrollmentReader interface {
	IsEnrolled(ctx context.Context, studentID, unitID, yearID, semesterID string) (bool, error)
}

type gradeStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

// RecordGradeRequest records marks for a student's assessment.
type RecordGradeRequest struct {
	StudentID      string                `json:"student_id" validate:"required"`
	UnitID         string                `json:"unit_id" validate:"required"`
	AcademicYearID string                `json:"academic_year_id" validate:"required"`
	SemesterID     string                `json:"semester_id" validate:"required"`
	Assessment     models.AssessmentType `json:"assessment" validate:"required"`
	Marks          float64               `json:"marks" validate:"gte=0,lte=100"`
}

// UpdateGradeRequest replaces the marks of a recorded grade.
type UpdateGradeRequest struct {
	Marks float64 `json:"marks" validate:"gte=0,lte=100"`
}

// SetGradeStatusRequest applies an incomplete or withdrawn status.
type SetGradeStatusRequest struct {
	Letter models.LetterGrade `json:"letter" validate:"required"`
}

// GradeService handles mark recording, GPA and transcripts.
type GradeService struct {
	repo        gradeRepository
	enrollments gradeEnrollmentReader
	students    gradeStudentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs the grade service.
func NewGradeService(repo gradeRepository, enrollments gradeEnrollmentReader, students gradeStudentReader, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, enrollments: enrollments, students: students, validator: validate, logger: logger}
}

// List returns grades and pagination metadata.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, *models.Pagination, error) {
	grades, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return grades, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single grade.
func (s *GradeService) Get(ctx context.Context, id string) (*models.Grade, error) {
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}

// Record stores marks for an assessment. The letter band is derived from
// the marks at write time.
func (s *GradeService) Record(ctx context.Context, req RecordGradeRequest, recordedBy string) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if !req.Assessment.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown assessment type")
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, req.StudentID, req.UnitID, req.AcademicYearID, req.SemesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student not enrolled in unit for this term")
	}

	exists, err := s.repo.Exists(ctx, req.StudentID, req.UnitID, req.AcademicYearID, req.SemesterID, req.Assessment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check grade uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade already recorded for this assessment")
	}

	grade := &models.Grade{
		StudentID:      req.StudentID,
		UnitID:         req.UnitID,
		AcademicYearID: req.AcademicYearID,
		SemesterID:     req.SemesterID,
		Assessment:     req.Assessment,
		Marks:          req.Marks,
		Letter:         models.LetterGradeFromMarks(req.Marks),
		IsFinal:        req.Assessment.Final(),
	}
	if recordedBy != "" {
		grade.RecordedBy = &recordedBy
	}
	if err := s.repo.Create(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}
	return grade, nil
}

// Update replaces the marks of a grade and re-derives the letter band.
// A manual incomplete or withdrawn status stays until resolved.
func (s *GradeService) Update(ctx context.Context, id string, req UpdateGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}

	grade.Marks = req.Marks
	if !grade.Letter.Manual() {
		grade.Letter = models.LetterGradeFromMarks(req.Marks)
	}
	if err := s.repo.Update(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
	}
	return grade, nil
}

// SetStatus applies an incomplete or withdrawn status to a grade.
func (s *GradeService) SetStatus(ctx context.Context, id string, req SetGradeStatusRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !req.Letter.Manual() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be I or W")
	}
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	if err := s.repo.SetLetter(ctx, id, req.Letter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set grade status")
	}
	grade.Letter = req.Letter
	return grade, nil
}

// ResolveStatus clears a manual status and restores the letter band derived
// from the stored marks.
func (s *GradeService) ResolveStatus(ctx context.Context, id string) (*models.Grade, error) {
	grade, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	if !grade.Letter.Manual() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "grade has no manual status to resolve")
	}
	letter := models.LetterGradeFromMarks(grade.Marks)
	if err := s.repo.SetLetter(ctx, id, letter); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve grade status")
	}
	grade.Letter = letter
	return grade, nil
}

// CurrentGPA computes the credit-weighted GPA over the student's final
// grades. Recomputed from rows on every call, never stored.
func (s *GradeService) CurrentGPA(ctx context.Context, studentID string) (float64, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	rows, err := s.repo.ListFinalByStudent(ctx, studentID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load final grades")
	}
	return computeGPA(rows), nil
}

// Transcript assembles the full academic record of a student.
func (s *GradeService) Transcript(ctx context.Context, studentID string) (*models.Transcript, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	rows, err := s.repo.ListFinalByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load final grades")
	}
	for i := range rows {
		rows[i].Points = rows[i].Letter.Points()
	}
	return &models.Transcript{
		StudentID:   student.ID,
		StudentName: student.FullName,
		RegNumber:   student.RegistrationNumber,
		CourseName:  student.CourseName,
		Rows:        rows,
		GPA:         computeGPA(rows),
	}, nil
}

// UnitReport lists the grades of a unit offering with the class average.
func (s *GradeService) UnitReport(ctx context.Context, unitID, yearID, semesterID string, finalOnly bool) (*models.UnitGradeReport, error) {
	grades, err := s.repo.ListByUnitOffering(ctx, unitID, yearID, semesterID, finalOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit grades")
	}
	report := &models.UnitGradeReport{
		UnitID:         unitID,
		AcademicYearID: yearID,
		SemesterID:     semesterID,
		Grades:         grades,
	}
	if len(grades) > 0 {
		var sum float64
		for _, g := range grades {
			sum += g.Marks
		}
		avg := math.Round(sum/float64(len(grades))*100) / 100
		report.Average = &avg
	}
	return report, nil
}

// computeGPA weights grade points by credit hours. Incomplete and withdrawn
// rows carry zero points but their credits stay in the denominator.
func computeGPA(rows []models.TranscriptRow) float64 {
	var points, credits float64
	for _, row := range rows {
		points += row.Letter.Points() * float64(row.CreditHours)
		credits += float64(row.CreditHours)
	}
	if credits == 0 {
		return 0.0
	}
	return math.RoundToEven(points/credits*100) / 100
}
