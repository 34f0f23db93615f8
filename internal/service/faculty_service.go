package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type facultyRepository interface {
	ListFaculties(ctx context.Context, filter models.FacultyFilter) ([]models.FacultyDetail, int, error)
	FindFacultyByID(ctx context.Context, id string) (*models.Faculty, error)
	FacultyExists(ctx context.Context, name, code, excludeID string) (bool, error)
	CreateFaculty(ctx context.Context, faculty *models.Faculty) error
	UpdateFaculty(ctx context.Context, faculty *models.Faculty) error
	DeleteFaculty(ctx context.Context, id string) error
	CountFacultyDepartments(ctx context.Context, id string) (int, error)
	ListDepartments(ctx context.Context, filter models.DepartmentFilter) ([]models.DepartmentDetail, int, error)
	FindDepartmentByID(ctx context.Context, id string) (*models.Department, error)
	DepartmentExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	CreateDepartment(ctx context.Context, department *models.Department) error
	UpdateDepartment(ctx context.Context, department *models.Department) error
	DeleteDepartment(ctx context.Context, id string) error
	CountDepartmentCourses(ctx context.Context, id string) (int, error)
}

type facultyLecturerReader interface {
	FindByID(ctx context.Context, id string) (*models.LecturerDetail, error)
}

// FacultyRequest holds payload for creating and updating faculties.
type FacultyRequest struct {
	Name        string  `json:"name" validate:"required"`
	Code        string  `json:"code" validate:"required,max=10"`
	Description string  `json:"description"`
	DeanID      *string `json:"dean_id,omitempty"`
}

// DepartmentRequest holds payload for creating and updating departments.
type DepartmentRequest struct {
	FacultyID   string  `json:"faculty_id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Code        string  `json:"code" validate:"required,max=10"`
	Description string  `json:"description"`
	HeadID      *string `json:"head_id,omitempty"`
}

// FacultyService handles faculty and department administration.
type FacultyService struct {
	repo      facultyRepository
	lecturers facultyLecturerReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFacultyService constructs the faculty service.
func NewFacultyService(repo facultyRepository, lecturers facultyLecturerReader, validate *validator.Validate, logger *zap.Logger) *FacultyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FacultyService{repo: repo, lecturers: lecturers, validator: validate, logger: logger}
}

// ListFaculties returns faculties and pagination metadata.
func (s *FacultyService) ListFaculties(ctx context.Context, filter models.FacultyFilter) ([]models.FacultyDetail, *models.Pagination, error) {
	faculties, total, err := s.repo.ListFaculties(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list faculties")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return faculties, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetFaculty returns a single faculty.
func (s *FacultyService) GetFaculty(ctx context.Context, id string) (*models.Faculty, error) {
	faculty, err := s.repo.FindFacultyByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	return faculty, nil
}

// CreateFaculty registers a new faculty.
func (s *FacultyService) CreateFaculty(ctx context.Context, req FacultyRequest) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty payload")
	}
	if err := s.checkDean(ctx, req.DeanID); err != nil {
		return nil, err
	}
	exists, err := s.repo.FacultyExists(ctx, req.Name, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate faculty uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "faculty name or code already exists")
	}

	faculty := &models.Faculty{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		DeanID:      req.DeanID,
	}
	if err := s.repo.CreateFaculty(ctx, faculty); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create faculty")
	}
	return faculty, nil
}

// UpdateFaculty modifies an existing faculty.
func (s *FacultyService) UpdateFaculty(ctx context.Context, id string, req FacultyRequest) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty payload")
	}
	faculty, err := s.repo.FindFacultyByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	if err := s.checkDean(ctx, req.DeanID); err != nil {
		return nil, err
	}
	exists, err := s.repo.FacultyExists(ctx, req.Name, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate faculty uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "faculty name or code already exists")
	}

	faculty.Name = req.Name
	faculty.Code = req.Code
	faculty.Description = req.Description
	faculty.DeanID = req.DeanID
	if err := s.repo.UpdateFaculty(ctx, faculty); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update faculty")
	}
	return faculty, nil
}

// DeleteFaculty removes a faculty without departments.
func (s *FacultyService) DeleteFaculty(ctx context.Context, id string) error {
	if _, err := s.repo.FindFacultyByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	count, err := s.repo.CountFacultyDepartments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count departments")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "faculty has departments attached")
	}
	if err := s.repo.DeleteFaculty(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete faculty")
	}
	return nil
}

// ListDepartments returns departments and pagination metadata.
func (s *FacultyService) ListDepartments(ctx context.Context, filter models.DepartmentFilter) ([]models.DepartmentDetail, *models.Pagination, error) {
	departments, total, err := s.repo.ListDepartments(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return departments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetDepartment returns a single department.
func (s *FacultyService) GetDepartment(ctx context.Context, id string) (*models.Department, error) {
	department, err := s.repo.FindDepartmentByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return department, nil
}

// CreateDepartment registers a department under a faculty.
func (s *FacultyService) CreateDepartment(ctx context.Context, req DepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	if _, err := s.repo.FindFacultyByID(ctx, req.FacultyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	if err := s.checkHead(ctx, req.HeadID); err != nil {
		return nil, err
	}
	exists, err := s.repo.DepartmentExistsByCode(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate department code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "department code already exists")
	}

	department := &models.Department{
		FacultyID:   req.FacultyID,
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		HeadID:      req.HeadID,
	}
	if err := s.repo.CreateDepartment(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}
	return department, nil
}

// UpdateDepartment modifies an existing department.
func (s *FacultyService) UpdateDepartment(ctx context.Context, id string, req DepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	department, err := s.repo.FindDepartmentByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	if _, err := s.repo.FindFacultyByID(ctx, req.FacultyID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	if err := s.checkHead(ctx, req.HeadID); err != nil {
		return nil, err
	}
	exists, err := s.repo.DepartmentExistsByCode(ctx, req.Code, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate department code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "department code already exists")
	}

	department.FacultyID = req.FacultyID
	department.Name = req.Name
	department.Code = req.Code
	department.Description = req.Description
	department.HeadID = req.HeadID
	if err := s.repo.UpdateDepartment(ctx, department); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update department")
	}
	return department, nil
}

// DeleteDepartment removes a department without courses.
func (s *FacultyService) DeleteDepartment(ctx context.Context, id string) error {
	if _, err := s.repo.FindDepartmentByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	count, err := s.repo.CountDepartmentCourses(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count courses")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "department has courses attached")
	}
	if err := s.repo.DeleteDepartment(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete department")
	}
	return nil
}

func (s *FacultyService) checkDean(ctx context.Context, deanID *string) error {
	if deanID == nil || *deanID == "" {
		return nil
	}
	if _, err := s.lecturers.FindByID(ctx, *deanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "dean lecturer not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dean lecturer")
	}
	return nil
}

func (s *FacultyService) checkHead(ctx context.Context, headID *string) error {
	if headID == nil || *headID == "" {
		return nil
	}
	if _, err := s.lecturers.FindByID(ctx, *headID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "head lecturer not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load head lecturer")
	}
	return nil
}
