package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type feeRepository interface {
	ListStructures(ctx context.Context, filter models.FeeStructureFilter) ([]models.FeeStructureDetail, int, error)
	FindStructureByID(ctx context.Context, id string) (*models.FeeStructure, error)
	FindStructure(ctx context.Context, courseID, yearID string, yearOfStudy int) (*models.FeeStructure, error)
	StructureExists(ctx context.Context, courseID, yearID string, yearOfStudy int, excludeID string) (bool, error)
	CreateStructure(ctx context.Context, structure *models.FeeStructure) error
	UpdateStructure(ctx context.Context, structure *models.FeeStructure) error
	DeleteStructure(ctx context.Context, id string) error
	ListPayments(ctx context.Context, filter models.FeePaymentFilter) ([]models.FeePaymentDetail, int, error)
	FindPaymentByID(ctx context.Context, id string) (*models.FeePayment, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	ReceiptExists(ctx context.Context, receipt string) (bool, error)
	CreatePayment(ctx context.Context, payment *models.FeePayment) error
	SetVerification(ctx context.Context, id string, verified bool, verifiedBy *string, verifiedAt *time.Time) error
	SumVerified(ctx context.Context, studentID, yearID string) (float64, error)
	ListPaymentsByStudentYear(ctx context.Context, studentID, yearID string) ([]models.FeePaymentDetail, error)
}

type feeStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type feeCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type feeCalendarReader interface {
	FindYearByID(ctx context.Context, id string) (*models.AcademicYear, error)
}

// FeeStructureRequest holds payload for creating and updating fee structures.
type FeeStructureRequest struct {
	CourseID       string  `json:"course_id" validate:"required"`
	AcademicYearID string  `json:"academic_year_id" validate:"required"`
	YearOfStudy    int     `json:"year_of_study" validate:"required,min=1,max=6"`
	TuitionFee     float64 `json:"tuition_fee" validate:"gte=0"`
	ActivityFee    float64 `json:"activity_fee" validate:"gte=0"`
	LibraryFee     float64 `json:"library_fee" validate:"gte=0"`
	LaboratoryFee  float64 `json:"laboratory_fee" validate:"gte=0"`
	OtherFees      float64 `json:"other_fees" validate:"gte=0"`
}

// RecordPaymentRequest records a fee payment against a student and year.
type RecordPaymentRequest struct {
	StudentID       string               `json:"student_id" validate:"required"`
	AcademicYearID  string               `json:"academic_year_id" validate:"required"`
	Amount          float64              `json:"amount" validate:"required,gt=0"`
	PaymentMethod   models.PaymentMethod `json:"payment_method" validate:"required"`
	ReferenceNumber string               `json:"reference_number" validate:"required"`
	Remarks         string               `json:"remarks"`
}

// FeeService handles fee structures, payments and balances.
type FeeService struct {
	repo      feeRepository
	students  feeStudentReader
	courses   feeCourseReader
	calendar  feeCalendarReader
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewFeeService constructs the fee service.
func NewFeeService(repo feeRepository, students feeStudentReader, courses feeCourseReader, calendar feeCalendarReader, validate *validator.Validate, logger *zap.Logger) *FeeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeService{
		repo:      repo,
		students:  students,
		courses:   courses,
		calendar:  calendar,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// ListStructures returns fee structures and pagination metadata.
func (s *FeeService) ListStructures(ctx context.Context, filter models.FeeStructureFilter) ([]models.FeeStructureDetail, *models.Pagination, error) {
	structures, total, err := s.repo.ListStructures(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee structures")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return structures, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetStructure returns a single fee structure.
func (s *FeeService) GetStructure(ctx context.Context, id string) (*models.FeeStructure, error) {
	structure, err := s.repo.FindStructureByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee structure not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee structure")
	}
	return structure, nil
}

// CreateStructure defines the fee components for a course, year and year of
// study.
func (s *FeeService) CreateStructure(ctx context.Context, req FeeStructureRequest) (*models.FeeStructure, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee structure payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if _, err := s.calendar.FindYearByID(ctx, req.AcademicYearID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	exists, err := s.repo.StructureExists(ctx, req.CourseID, req.AcademicYearID, req.YearOfStudy, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check structure uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "fee structure already defined for course, year and year of study")
	}

	structure := &models.FeeStructure{
		CourseID:       req.CourseID,
		AcademicYearID: req.AcademicYearID,
		YearOfStudy:    req.YearOfStudy,
		TuitionFee:     req.TuitionFee,
		ActivityFee:    req.ActivityFee,
		LibraryFee:     req.LibraryFee,
		LaboratoryFee:  req.LaboratoryFee,
		OtherFees:      req.OtherFees,
	}
	if err := s.repo.CreateStructure(ctx, structure); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee structure")
	}
	return structure, nil
}

// UpdateStructure replaces the fee components of a structure. The keying
// triple stays fixed after creation.
func (s *FeeService) UpdateStructure(ctx context.Context, id string, req FeeStructureRequest) (*models.FeeStructure, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee structure payload")
	}
	structure, err := s.repo.FindStructureByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee structure not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee structure")
	}

	structure.TuitionFee = req.TuitionFee
	structure.ActivityFee = req.ActivityFee
	structure.LibraryFee = req.LibraryFee
	structure.LaboratoryFee = req.LaboratoryFee
	structure.OtherFees = req.OtherFees
	if err := s.repo.UpdateStructure(ctx, structure); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update fee structure")
	}
	return structure, nil
}

// DeleteStructure removes a fee structure.
func (s *FeeService) DeleteStructure(ctx context.Context, id string) error {
	if _, err := s.repo.FindStructureByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "fee structure not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee structure")
	}
	if err := s.repo.DeleteStructure(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete fee structure")
	}
	return nil
}

// ListPayments returns payments and pagination metadata.
func (s *FeeService) ListPayments(ctx context.Context, filter models.FeePaymentFilter) ([]models.FeePaymentDetail, *models.Pagination, error) {
	payments, total, err := s.repo.ListPayments(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return payments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetPayment returns a single payment.
func (s *FeeService) GetPayment(ctx context.Context, id string) (*models.FeePayment, error) {
	payment, err := s.repo.FindPaymentByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// RecordPayment stores an unverified fee payment with a generated receipt
// number.
func (s *FeeService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*models.FeePayment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if !req.PaymentMethod.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown payment method")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.calendar.FindYearByID(ctx, req.AcademicYearID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}

	taken, err := s.repo.ReferenceExists(ctx, req.ReferenceNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check reference number")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "reference number already used")
	}

	receipt, err := s.generateReceiptNumber(ctx)
	if err != nil {
		return nil, err
	}

	payment := &models.FeePayment{
		StudentID:       req.StudentID,
		AcademicYearID:  req.AcademicYearID,
		Amount:          req.Amount,
		PaymentMethod:   req.PaymentMethod,
		ReferenceNumber: req.ReferenceNumber,
		ReceiptNumber:   receipt,
		PaymentDate:     s.now().UTC(),
		IsVerified:      false,
		Remarks:         req.Remarks,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}
	return payment, nil
}

// VerifyPayment confirms a payment so it counts toward the student's total.
func (s *FeeService) VerifyPayment(ctx context.Context, id, verifierID string) (*models.FeePayment, error) {
	payment, err := s.repo.FindPaymentByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.IsVerified {
		return nil, appErrors.Clone(appErrors.ErrConflict, "payment already verified")
	}

	verifiedAt := s.now().UTC()
	if err := s.repo.SetVerification(ctx, id, true, &verifierID, &verifiedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify payment")
	}
	payment.IsVerified = true
	payment.VerifiedBy = &verifierID
	payment.VerifiedAt = &verifiedAt
	return payment, nil
}

// UnverifyPayment withdraws verification from a payment.
func (s *FeeService) UnverifyPayment(ctx context.Context, id string) (*models.FeePayment, error) {
	payment, err := s.repo.FindPaymentByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if !payment.IsVerified {
		return nil, appErrors.Clone(appErrors.ErrConflict, "payment is not verified")
	}

	if err := s.repo.SetVerification(ctx, id, false, nil, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unverify payment")
	}
	payment.IsVerified = false
	payment.VerifiedBy = nil
	payment.VerifiedAt = nil
	return payment, nil
}

// TotalPaid sums the student's verified payments for a year.
func (s *FeeService) TotalPaid(ctx context.Context, studentID, yearID string) (float64, error) {
	total, err := s.repo.SumVerified(ctx, studentID, yearID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum payments")
	}
	return roundAmount(total), nil
}

// Balance computes the student's fee standing for a year. A missing fee
// structure is reported rather than treated as an error.
func (s *FeeService) Balance(ctx context.Context, studentID, yearID string) (*models.FeeBalance, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	balance := &models.FeeBalance{StudentID: studentID, AcademicYearID: yearID}
	structure, err := s.repo.FindStructure(ctx, student.CourseID, yearID, student.YearOfStudy)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee structure")
		}
		balance.StructureMissing = true
	} else {
		balance.Structure = structure
		balance.TotalFee = roundAmount(structure.Total())
	}

	paid, err := s.repo.SumVerified(ctx, studentID, yearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum payments")
	}
	balance.TotalPaid = roundAmount(paid)
	balance.Balance = roundAmount(balance.TotalFee - balance.TotalPaid)
	return balance, nil
}

// Statement assembles the printable fee standing of a student for a year.
func (s *FeeService) Statement(ctx context.Context, studentID, yearID string) (*models.FeeStatement, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	balance, err := s.Balance(ctx, studentID, yearID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPaymentsByStudentYear(ctx, studentID, yearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return &models.FeeStatement{Student: *student, Balance: *balance, Payments: payments}, nil
}

// generateReceiptNumber builds RCP + UTC date + 6-char suffix, retrying on
// the unlikely collision.
func (s *FeeService) generateReceiptNumber(ctx context.Context) (string, error) {
	date := s.now().UTC().Format("20060102")
	for attempt := 0; attempt < 5; attempt++ {
		suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
		receipt := fmt.Sprintf("RCP%s%s", date, suffix)
		exists, err := s.repo.ReceiptExists(ctx, receipt)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check receipt number")
		}
		if !exists {
			return receipt, nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrInternal, "could not generate unique receipt number")
}

func roundAmount(v float64) float64 {
	return math.Round(v*100) / 100
}
