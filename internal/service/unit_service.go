package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type unitRepository interface {
	List(ctx context.Context, filter models.UnitFilter) ([]models.UnitDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Unit, error)
	FindDetailByID(ctx context.Context, id string) (*models.UnitDetail, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, unit *models.Unit) error
	Update(ctx context.Context, unit *models.Unit) error
	Deactivate(ctx context.Context, id string) error
	ListPrerequisites(ctx context.Context, unitID string) ([]models.UnitPrerequisiteDetail, error)
	ListAllEdges(ctx context.Context) ([]models.UnitPrerequisite, error)
	EdgeExists(ctx context.Context, unitID, prerequisiteID string) (bool, error)
	AddPrerequisite(ctx context.Context, edge *models.UnitPrerequisite) error
	RemovePrerequisite(ctx context.Context, unitID, prerequisiteID string) error
}

type unitCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type unitLecturerReader interface {
	FindByID(ctx context.Context, id string) (*models.LecturerDetail, error)
}

// UnitRequest holds payload for creating and updating units.
type UnitRequest struct {
	CourseID        string  `json:"course_id" validate:"required"`
	Name            string  `json:"name" validate:"required"`
	Code            string  `json:"code" validate:"required,max=10"`
	CreditHours     int     `json:"credit_hours" validate:"required,min=1,max=6"`
	YearOffered     int     `json:"year_offered" validate:"required,min=1,max=8"`
	SemesterOffered int     `json:"semester_offered" validate:"required,min=1,max=2"`
	LecturerID      *string `json:"lecturer_id,omitempty"`
	Description     string  `json:"description"`
}

// AddPrerequisiteRequest links a unit to one of its prerequisites.
type AddPrerequisiteRequest struct {
	PrerequisiteID string `json:"prerequisite_id" validate:"required"`
}

// UnitService handles unit administration and the prerequisite graph.
type UnitService struct {
	repo      unitRepository
	courses   unitCourseReader
	lecturers unitLecturerReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUnitService constructs the unit service.
func NewUnitService(repo unitRepository, courses unitCourseReader, lecturers unitLecturerReader, validate *validator.Validate, logger *zap.Logger) *UnitService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnitService{repo: repo, courses: courses, lecturers: lecturers, validator: validate, logger: logger}
}

// List returns units and pagination metadata.
func (s *UnitService) List(ctx context.Context, filter models.UnitFilter) ([]models.UnitDetail, *models.Pagination, error) {
	units, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list units")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return units, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns unit detail including enrolled count.
func (s *UnitService) Get(ctx context.Context, id string) (*models.UnitDetail, error) {
	unit, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	return unit, nil
}

// Create registers a new unit in the catalogue.
func (s *UnitService) Create(ctx context.Context, req UnitRequest) (*models.Unit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unit payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.checkLecturer(ctx, req.LecturerID); err != nil {
		return nil, err
	}
	exists, err := s.repo.ExistsByCode(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate unit code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "unit code already exists")
	}

	unit := &models.Unit{
		CourseID:        req.CourseID,
		Name:            req.Name,
		Code:            req.Code,
		CreditHours:     req.CreditHours,
		YearOffered:     req.YearOffered,
		SemesterOffered: req.SemesterOffered,
		LecturerID:      req.LecturerID,
		Description:     req.Description,
		Active:          true,
	}
	if err := s.repo.Create(ctx, unit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create unit")
	}
	return unit, nil
}

// Update modifies an existing unit.
func (s *UnitService) Update(ctx context.Context, id string, req UnitRequest) (*models.Unit, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unit payload")
	}
	unit, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.checkLecturer(ctx, req.LecturerID); err != nil {
		return nil, err
	}
	exists, err := s.repo.ExistsByCode(ctx, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate unit code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "unit code already exists")
	}

	unit.CourseID = req.CourseID
	unit.Name = req.Name
	unit.Code = req.Code
	unit.CreditHours = req.CreditHours
	unit.YearOffered = req.YearOffered
	unit.SemesterOffered = req.SemesterOffered
	unit.LecturerID = req.LecturerID
	unit.Description = req.Description
	if err := s.repo.Update(ctx, unit); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update unit")
	}
	return unit, nil
}

// Deactivate retires a unit from the catalogue.
func (s *UnitService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate unit")
	}
	return nil
}

// ListPrerequisites returns the direct prerequisites of a unit.
func (s *UnitService) ListPrerequisites(ctx context.Context, unitID string) ([]models.UnitPrerequisiteDetail, error) {
	if _, err := s.repo.FindByID(ctx, unitID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	prerequisites, err := s.repo.ListPrerequisites(ctx, unitID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prerequisites")
	}
	return prerequisites, nil
}

// AddPrerequisite links a prerequisite to a unit. The edge is rejected when
// it would make the unit a transitive prerequisite of itself.
func (s *UnitService) AddPrerequisite(ctx context.Context, unitID string, req AddPrerequisiteRequest) (*models.UnitPrerequisite, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prerequisite payload")
	}
	if unitID == req.PrerequisiteID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unit cannot be its own prerequisite")
	}
	if _, err := s.repo.FindByID(ctx, unitID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	if _, err := s.repo.FindByID(ctx, req.PrerequisiteID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "prerequisite unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite unit")
	}
	exists, err := s.repo.EdgeExists(ctx, unitID, req.PrerequisiteID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisite edge")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "prerequisite already linked")
	}

	cyclic, err := s.wouldCloseCycle(ctx, unitID, req.PrerequisiteID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect prerequisite graph")
	}
	if cyclic {
		return nil, appErrors.Clone(appErrors.ErrValidation, "prerequisite would create a cycle")
	}

	edge := &models.UnitPrerequisite{UnitID: unitID, PrerequisiteID: req.PrerequisiteID}
	if err := s.repo.AddPrerequisite(ctx, edge); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add prerequisite")
	}
	return edge, nil
}

// RemovePrerequisite unlinks a prerequisite from a unit.
func (s *UnitService) RemovePrerequisite(ctx context.Context, unitID, prerequisiteID string) error {
	exists, err := s.repo.EdgeExists(ctx, unitID, prerequisiteID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisite edge")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, "prerequisite link not found")
	}
	if err := s.repo.RemovePrerequisite(ctx, unitID, prerequisiteID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove prerequisite")
	}
	return nil
}

// wouldCloseCycle walks prerequisite edges starting from the candidate
// prerequisite. Reaching unitID means the new edge would close a cycle.
func (s *UnitService) wouldCloseCycle(ctx context.Context, unitID, prerequisiteID string) (bool, error) {
	edges, err := s.repo.ListAllEdges(ctx)
	if err != nil {
		return false, err
	}
	adjacency := make(map[string][]string, len(edges))
	for _, edge := range edges {
		adjacency[edge.UnitID] = append(adjacency[edge.UnitID], edge.PrerequisiteID)
	}

	visited := map[string]bool{}
	stack := []string{prerequisiteID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == unitID {
			return true, nil
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		stack = append(stack, adjacency[current]...)
	}
	return false, nil
}

func (s *UnitService) checkLecturer(ctx context.Context, lecturerID *string) error {
	if lecturerID == nil || *lecturerID == "" {
		return nil
	}
	if _, err := s.lecturers.FindByID(ctx, *lecturerID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "lecturer not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	return nil
}
