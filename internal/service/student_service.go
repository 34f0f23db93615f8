package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByRegistrationNumber(ctx context.Context, regNumber string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	SetStatus(ctx context.Context, id string, status models.StudentStatus) error
}

type studentUserWriter interface {
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
}

type studentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CreateStudentRequest holds payload for registering students. The linked
// login account is created in the same operation.
type CreateStudentRequest struct {
	Email              string    `json:"email" validate:"required,email"`
	FullName           string    `json:"full_name" validate:"required"`
	Password           string    `json:"password" validate:"required,min=6"`
	RegistrationNumber string    `json:"registration_number" validate:"required"`
	CourseID           string    `json:"course_id" validate:"required"`
	YearOfStudy        int       `json:"year_of_study" validate:"required,min=1,max=6"`
	AdmissionDate      time.Time `json:"admission_date" validate:"required"`
	Phone              string    `json:"phone"`
	Address            string    `json:"address"`
	GuardianName       string    `json:"guardian_name"`
	GuardianPhone      string    `json:"guardian_phone"`
}

// UpdateStudentRequest holds payload for updating student profiles. Status
// changes go through SetStatus, never through here.
type UpdateStudentRequest struct {
	RegistrationNumber string    `json:"registration_number" validate:"required"`
	CourseID           string    `json:"course_id" validate:"required"`
	YearOfStudy        int       `json:"year_of_study" validate:"required,min=1,max=6"`
	AdmissionDate      time.Time `json:"admission_date" validate:"required"`
	Phone              string    `json:"phone"`
	Address            string    `json:"address"`
	GuardianName       string    `json:"guardian_name"`
	GuardianPhone      string    `json:"guardian_phone"`
}

// SetStudentStatusRequest moves a student along the lifecycle.
type SetStudentStatusRequest struct {
	Status models.StudentStatus `json:"status" validate:"required"`
}

// StudentService handles student registration use-cases.
type StudentService struct {
	repo      studentRepository
	users     studentUserWriter
	courses   studentCourseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, users studentUserWriter, courses studentCourseReader, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, users: users, courses: courses, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns detailed student information.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a student and their login account.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	exists, err := s.repo.ExistsByRegistrationNumber(ctx, req.RegistrationNumber, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate registration number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration number already used")
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
		Role:         models.RoleStudent,
		Active:       true,
		PasswordHash: string(passwordHash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student account")
	}

	student := &models.Student{
		UserID:             user.ID,
		RegistrationNumber: req.RegistrationNumber,
		CourseID:           req.CourseID,
		YearOfStudy:        req.YearOfStudy,
		AdmissionDate:      req.AdmissionDate,
		Status:             models.StudentStatusActive,
		Phone:              req.Phone,
		Address:            req.Address,
		GuardianName:       req.GuardianName,
		GuardianPhone:      req.GuardianPhone,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update modifies an existing student profile.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	exists, err := s.repo.ExistsByRegistrationNumber(ctx, req.RegistrationNumber, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate registration number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration number already used")
	}

	student := detail.Student
	student.RegistrationNumber = req.RegistrationNumber
	student.CourseID = req.CourseID
	student.YearOfStudy = req.YearOfStudy
	student.AdmissionDate = req.AdmissionDate
	student.Phone = req.Phone
	student.Address = req.Address
	student.GuardianName = req.GuardianName
	student.GuardianPhone = req.GuardianPhone
	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return &student, nil
}

// SetStatus moves the student to a new lifecycle status. Terminal statuses
// never return to active.
func (s *StudentService) SetStatus(ctx context.Context, id string, req SetStudentStatusRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown student status")
	}

	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if detail.Status.Terminal() && req.Status == models.StudentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student in terminal status cannot be reactivated")
	}

	if err := s.repo.SetStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student status")
	}

	student := detail.Student
	student.Status = req.Status
	return &student, nil
}
