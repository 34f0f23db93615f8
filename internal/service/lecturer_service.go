package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type lecturerRepository interface {
	List(ctx context.Context, filter models.LecturerFilter) ([]models.LecturerDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.LecturerDetail, error)
	ExistsByStaffNumber(ctx context.Context, staffNumber string, excludeID string) (bool, error)
	Create(ctx context.Context, lecturer *models.Lecturer) error
	Update(ctx context.Context, lecturer *models.Lecturer) error
	Deactivate(ctx context.Context, id string) error
}

type lecturerUserWriter interface {
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
}

type lecturerDepartmentReader interface {
	FindDepartmentByID(ctx context.Context, id string) (*models.Department, error)
}

// CreateLecturerRequest holds payload for registering teaching staff. The
// linked login account is created in the same operation.
type CreateLecturerRequest struct {
	Email          string              `json:"email" validate:"required,email"`
	FullName       string              `json:"full_name" validate:"required"`
	Password       string              `json:"password" validate:"required,min=6"`
	StaffNumber    string              `json:"staff_number" validate:"required"`
	DepartmentID   string              `json:"department_id" validate:"required"`
	Rank           models.LecturerRank `json:"rank" validate:"required"`
	Specialization string              `json:"specialization"`
	Phone          string              `json:"phone"`
	OfficeLocation string              `json:"office_location"`
}

// UpdateLecturerRequest holds payload for updating lecturer profiles.
type UpdateLecturerRequest struct {
	StaffNumber    string              `json:"staff_number" validate:"required"`
	DepartmentID   string              `json:"department_id" validate:"required"`
	Rank           models.LecturerRank `json:"rank" validate:"required"`
	Specialization string              `json:"specialization"`
	Phone          string              `json:"phone"`
	OfficeLocation string              `json:"office_location"`
}

// LecturerService handles teaching staff administration.
type LecturerService struct {
	repo        lecturerRepository
	users       lecturerUserWriter
	departments lecturerDepartmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewLecturerService constructs the lecturer service.
func NewLecturerService(repo lecturerRepository, users lecturerUserWriter, departments lecturerDepartmentReader, validate *validator.Validate, logger *zap.Logger) *LecturerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LecturerService{repo: repo, users: users, departments: departments, validator: validate, logger: logger}
}

// List returns lecturers and pagination metadata.
func (s *LecturerService) List(ctx context.Context, filter models.LecturerFilter) ([]models.LecturerDetail, *models.Pagination, error) {
	lecturers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lecturers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return lecturers, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns detailed lecturer information.
func (s *LecturerService) Get(ctx context.Context, id string) (*models.LecturerDetail, error) {
	lecturer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lecturer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	return lecturer, nil
}

// Create registers a lecturer and their login account.
func (s *LecturerService) Create(ctx context.Context, req CreateLecturerRequest) (*models.Lecturer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lecturer payload")
	}
	if !req.Rank.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown lecturer rank")
	}
	if _, err := s.departments.FindDepartmentByID(ctx, req.DepartmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	exists, err := s.repo.ExistsByStaffNumber(ctx, req.StaffNumber, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate staff number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "staff number already used")
	}

	emailTaken, err := s.users.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if emailTaken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        strings.ToLower(req.Email),
		FullName:     req.FullName,
		Role:         models.RoleTeacher,
		Active:       true,
		PasswordHash: string(passwordHash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lecturer account")
	}

	lecturer := &models.Lecturer{
		UserID:         user.ID,
		StaffNumber:    req.StaffNumber,
		DepartmentID:   req.DepartmentID,
		Rank:           req.Rank,
		Specialization: req.Specialization,
		Phone:          req.Phone,
		OfficeLocation: req.OfficeLocation,
		Active:         true,
	}
	if err := s.repo.Create(ctx, lecturer); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lecturer")
	}
	return lecturer, nil
}

// Update modifies an existing lecturer profile.
func (s *LecturerService) Update(ctx context.Context, id string, req UpdateLecturerRequest) (*models.Lecturer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lecturer payload")
	}
	if !req.Rank.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown lecturer rank")
	}
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lecturer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	if _, err := s.departments.FindDepartmentByID(ctx, req.DepartmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	exists, err := s.repo.ExistsByStaffNumber(ctx, req.StaffNumber, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate staff number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "staff number already used")
	}

	lecturer := detail.Lecturer
	lecturer.StaffNumber = req.StaffNumber
	lecturer.DepartmentID = req.DepartmentID
	lecturer.Rank = req.Rank
	lecturer.Specialization = req.Specialization
	lecturer.Phone = req.Phone
	lecturer.OfficeLocation = req.OfficeLocation
	if err := s.repo.Update(ctx, &lecturer); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lecturer")
	}
	return &lecturer, nil
}

// Deactivate retires a lecturer from active teaching.
func (s *LecturerService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "lecturer not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate lecturer")
	}
	return nil
}
