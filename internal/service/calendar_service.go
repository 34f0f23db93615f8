package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type academicCalendarRepository interface {
	ListYears(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error)
	FindYearByID(ctx context.Context, id string) (*models.AcademicYear, error)
	FindActiveYear(ctx context.Context) (*models.AcademicYear, error)
	YearExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	CreateYear(ctx context.Context, year *models.AcademicYear) error
	UpdateYear(ctx context.Context, year *models.AcademicYear) error
	SetActiveYear(ctx context.Context, id string) error
	DeleteYear(ctx context.Context, id string) error
	CountYearReferences(ctx context.Context, id string) (int, error)
	ListSemesters(ctx context.Context, yearID string) ([]models.SemesterDetail, error)
	FindSemesterByID(ctx context.Context, id string) (*models.Semester, error)
	FindActiveSemester(ctx context.Context) (*models.Semester, error)
	SemesterExists(ctx context.Context, yearID string, number int, excludeID string) (bool, error)
	CreateSemester(ctx context.Context, semester *models.Semester) error
	UpdateSemester(ctx context.Context, semester *models.Semester) error
	SetActiveSemester(ctx context.Context, id string) error
	DeleteSemester(ctx context.Context, id string) error
}

type calendarCacheInvalidator interface {
	InvalidateDashboards(ctx context.Context) error
}

// CreateAcademicYearRequest describes payload for creating academic years.
// The active flag is absent on purpose: activation is a separate operation.
type CreateAcademicYearRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// UpdateAcademicYearRequest updates descriptive fields on a year.
type UpdateAcademicYearRequest struct {
	Name      string    `json:"name" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// CreateSemesterRequest describes payload for creating semesters.
type CreateSemesterRequest struct {
	AcademicYearID string    `json:"academic_year_id" validate:"required"`
	Number         int       `json:"number" validate:"required,min=1,max=2"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	EndDate        time.Time `json:"end_date" validate:"required"`
}

// UpdateSemesterRequest updates descriptive fields on a semester.
type UpdateSemesterRequest struct {
	Number    int       `json:"number" validate:"required,min=1,max=2"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// CalendarService orchestrates academic year and semester workflows.
type CalendarService struct {
	repo      academicCalendarRepository
	cache     calendarCacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCalendarService creates a new calendar service instance.
func NewCalendarService(repo academicCalendarRepository, cache calendarCacheInvalidator, validate *validator.Validate, logger *zap.Logger) *CalendarService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{repo: repo, cache: cache, validator: validate, logger: logger, now: time.Now}
}

// ListYears returns paginated academic years.
func (s *CalendarService) ListYears(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, *models.Pagination, error) {
	years, total, err := s.repo.ListYears(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   size,
		TotalCount: total,
	}
	return years, pagination, nil
}

// GetYear returns an academic year by ID.
func (s *CalendarService) GetYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.repo.FindYearByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	return year, nil
}

// CreateYear adds a new academic year. The created year is never active;
// activation goes through ActivateYear.
func (s *CalendarService) CreateYear(ctx context.Context, req CreateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}

	exists, err := s.repo.YearExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check year uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "academic year name already exists")
	}

	year := &models.AcademicYear{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		IsActive:  false,
	}
	if err := s.repo.CreateYear(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create academic year")
	}
	return year, nil
}

// UpdateYear modifies descriptive fields of a year. The active flag stays
// untouched regardless of payload.
func (s *CalendarService) UpdateYear(ctx context.Context, id string, req UpdateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}

	year, err := s.repo.FindYearByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}

	exists, err := s.repo.YearExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check year uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "academic year name already exists")
	}

	year.Name = req.Name
	year.StartDate = req.StartDate
	year.EndDate = req.EndDate
	if err := s.repo.UpdateYear(ctx, year); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update academic year")
	}
	return year, nil
}

// ActivateYear designates the year as the single active one.
func (s *CalendarService) ActivateYear(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.repo.FindYearByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}

	if err := s.repo.SetActiveYear(ctx, year.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate academic year")
	}
	year.IsActive = true

	s.invalidateDashboards(ctx)
	return year, nil
}

// DeleteYear removes a year when inactive and unreferenced.
func (s *CalendarService) DeleteYear(ctx context.Context, id string) error {
	year, err := s.repo.FindYearByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	if year.IsActive {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot delete active academic year")
	}

	count, err := s.repo.CountYearReferences(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check year dependencies")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "academic year has enrollments associated")
	}

	if err := s.repo.DeleteYear(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete academic year")
	}
	return nil
}

// ListSemesters returns the semesters of one academic year.
func (s *CalendarService) ListSemesters(ctx context.Context, yearID string) ([]models.SemesterDetail, error) {
	if _, err := s.GetYear(ctx, yearID); err != nil {
		return nil, err
	}
	semesters, err := s.repo.ListSemesters(ctx, yearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semesters")
	}
	return semesters, nil
}

// GetSemester returns a semester by ID.
func (s *CalendarService) GetSemester(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.repo.FindSemesterByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	return semester, nil
}

// CreateSemester adds a semester under an academic year.
func (s *CalendarService) CreateSemester(ctx context.Context, req CreateSemesterRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}

	if _, err := s.GetYear(ctx, req.AcademicYearID); err != nil {
		return nil, err
	}

	exists, err := s.repo.SemesterExists(ctx, req.AcademicYearID, req.Number, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check semester uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "semester number already exists for academic year")
	}

	semester := &models.Semester{
		AcademicYearID: req.AcademicYearID,
		Number:         req.Number,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		IsActive:       false,
	}
	if err := s.repo.CreateSemester(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create semester")
	}
	return semester, nil
}

// UpdateSemester modifies descriptive fields of a semester.
func (s *CalendarService) UpdateSemester(ctx context.Context, id string, req UpdateSemesterRequest) (*models.Semester, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid semester payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}

	semester, err := s.repo.FindSemesterByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}

	exists, err := s.repo.SemesterExists(ctx, semester.AcademicYearID, req.Number, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check semester uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "semester number already exists for academic year")
	}

	semester.Number = req.Number
	semester.StartDate = req.StartDate
	semester.EndDate = req.EndDate
	if err := s.repo.UpdateSemester(ctx, semester); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update semester")
	}
	return semester, nil
}

// ActivateSemester designates the semester as the single active one. The
// parent year must already be active.
func (s *CalendarService) ActivateSemester(ctx context.Context, id string) (*models.Semester, error) {
	semester, err := s.repo.FindSemesterByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}

	year, err := s.repo.FindYearByID(ctx, semester.AcademicYearID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	if !year.IsActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "cannot activate semester under inactive academic year")
	}

	if err := s.repo.SetActiveSemester(ctx, semester.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate semester")
	}
	semester.IsActive = true

	s.invalidateDashboards(ctx)
	return semester, nil
}

// DeleteSemester removes a semester when inactive.
func (s *CalendarService) DeleteSemester(ctx context.Context, id string) error {
	semester, err := s.repo.FindSemesterByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	if semester.IsActive {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot delete active semester")
	}

	if err := s.repo.DeleteSemester(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete semester")
	}
	return nil
}

// Current resolves the active academic period. Without an active year the
// result degrades to the calendar-clock year label so callers can still
// render a period; nothing is written to the store.
func (s *CalendarService) Current(ctx context.Context) (*models.CurrentAcademicPeriod, error) {
	period := &models.CurrentAcademicPeriod{}

	year, err := s.repo.FindActiveYear(ctx)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active year")
		}
		now := s.now().UTC()
		period.Degraded = true
		period.FallbackYear = fmt.Sprintf("%d/%d", now.Year(), now.Year()+1)
		s.logger.Warn("no active academic year, serving degraded period", zap.String("fallback_year", period.FallbackYear))
		return period, nil
	}
	period.Year = year

	semester, err := s.repo.FindActiveSemester(ctx)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active semester")
		}
		return period, nil
	}
	period.Semester = semester
	return period, nil
}

func (s *CalendarService) invalidateDashboards(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateDashboards(ctx); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}
