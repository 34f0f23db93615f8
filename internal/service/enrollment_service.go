package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Exists(ctx context.Context, studentID, unitID, yearID, semesterID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	ListRoster(ctx context.Context, unitID, yearID, semesterID string) ([]models.EnrollmentDetail, error)
	PassedUnitIDs(ctx context.Context, studentID string, unitIDs []string) ([]string, error)
	HasFailedFinal(ctx context.Context, studentID, unitID string) (bool, error)
}

type enrollmentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type enrollmentUnitReader interface {
	FindByID(ctx context.Context, id string) (*models.Unit, error)
	ListPrerequisites(ctx context.Context, unitID string) ([]models.UnitPrerequisiteDetail, error)
}

type enrollmentCalendarReader interface {
	FindYearByID(ctx context.Context, id string) (*models.AcademicYear, error)
	FindSemesterByID(ctx context.Context, id string) (*models.Semester, error)
}

// EnrollRequest registers a student to a unit for a term.
type EnrollRequest struct {
	StudentID      string `json:"student_id" validate:"required"`
	UnitID         string `json:"unit_id" validate:"required"`
	AcademicYearID string `json:"academic_year_id" validate:"required"`
	SemesterID     string `json:"semester_id" validate:"required"`
	IsRetake       bool   `json:"is_retake"`
}

// UpdateEnrollmentStatusRequest moves an enrollment along its lifecycle.
type UpdateEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required"`
}

// EnrollmentService handles unit registration use-cases.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  enrollmentStudentReader
	units     enrollmentUnitReader
	calendar  enrollmentCalendarReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs the enrollment service.
func NewEnrollmentService(repo enrollmentRepository, students enrollmentStudentReader, units enrollmentUnitReader, calendar enrollmentCalendarReader, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, units: units, calendar: calendar, validator: validate, logger: logger}
}

// List returns enrollments and pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Enroll registers a student to a unit after checking uniqueness and
// prerequisite completion.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.units.FindByID(ctx, req.UnitID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	if _, err := s.calendar.FindYearByID(ctx, req.AcademicYearID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	semester, err := s.calendar.FindSemesterByID(ctx, req.SemesterID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	if semester.AcademicYearID != req.AcademicYearID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester does not belong to academic year")
	}

	exists, err := s.repo.Exists(ctx, req.StudentID, req.UnitID, req.AcademicYearID, req.SemesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in unit for this term")
	}

	if req.IsRetake {
		failed, err := s.repo.HasFailedFinal(ctx, req.StudentID, req.UnitID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check retake eligibility")
		}
		if !failed {
			return nil, appErrors.Clone(appErrors.ErrValidation, "retake requires a previously failed final grade")
		}
	} else if err := s.checkPrerequisites(ctx, req.StudentID, req.UnitID); err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{
		StudentID:      req.StudentID,
		UnitID:         req.UnitID,
		AcademicYearID: req.AcademicYearID,
		SemesterID:     req.SemesterID,
		IsRetake:       req.IsRetake,
		Status:         models.EnrollmentStatusEnrolled,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return enrollment, nil
}

// UpdateStatus drops or completes an enrollment.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, req UpdateEnrollmentStatusRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}

	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	enrollment.Status = req.Status
	return enrollment, nil
}

// Roster returns the enrolled students for a unit offering ordered by name.
func (s *EnrollmentService) Roster(ctx context.Context, unitID, yearID, semesterID string) ([]models.EnrollmentDetail, error) {
	if _, err := s.units.FindByID(ctx, unitID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	roster, err := s.repo.ListRoster(ctx, unitID, yearID, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return roster, nil
}

// checkPrerequisites verifies the student passed every prerequisite of the
// unit. Passing means a final grade with points above zero.
func (s *EnrollmentService) checkPrerequisites(ctx context.Context, studentID, unitID string) error {
	prerequisites, err := s.units.ListPrerequisites(ctx, unitID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prerequisites")
	}
	if len(prerequisites) == 0 {
		return nil
	}

	required := make([]string, 0, len(prerequisites))
	for _, p := range prerequisites {
		required = append(required, p.PrerequisiteID)
	}
	passed, err := s.repo.PassedUnitIDs(ctx, studentID, required)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check passed prerequisites")
	}
	passedSet := make(map[string]bool, len(passed))
	for _, id := range passed {
		passedSet[id] = true
	}
	for _, p := range prerequisites {
		if !passedSet[p.PrerequisiteID] {
			return appErrors.Clone(appErrors.ErrValidation, "prerequisite "+p.PrerequisiteCode+" not passed")
		}
	}
	return nil
}
