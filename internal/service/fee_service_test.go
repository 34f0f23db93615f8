package service

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type feeRepoStub struct {
	structures      map[string]*models.FeeStructure
	structureByKey  *models.FeeStructure
	structureExists bool
	payments        map[string]*models.FeePayment
	referenceTaken  bool
	receiptTaken    bool
	verifiedSum     float64
	statementRows   []models.FeePaymentDetail
	createdStruct   *models.FeeStructure
	createdPayment  *models.FeePayment
	verification    map[string]bool
}

func (r *feeRepoStub) ListStructures(ctx context.Context, filter models.FeeStructureFilter) ([]models.FeeStructureDetail, int, error) {
	return nil, 0, nil
}

func (r *feeRepoStub) FindStructureByID(ctx context.Context, id string) (*models.FeeStructure, error) {
	if s, ok := r.structures[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (r *feeRepoStub) FindStructure(ctx context.Context, courseID, yearID string, yearOfStudy int) (*models.FeeStructure, error) {
	if r.structureByKey == nil {
		return nil, sql.ErrNoRows
	}
	return r.structureByKey, nil
}

func (r *feeRepoStub) StructureExists(ctx context.Context, courseID, yearID string, yearOfStudy int, excludeID string) (bool, error) {
	return r.structureExists, nil
}

func (r *feeRepoStub) CreateStructure(ctx context.Context, structure *models.FeeStructure) error {
	structure.ID = "fs-new"
	r.createdStruct = structure
	return nil
}

func (r *feeRepoStub) UpdateStructure(ctx context.Context, structure *models.FeeStructure) error {
	return nil
}

func (r *feeRepoStub) DeleteStructure(ctx context.Context, id string) error {
	delete(r.structures, id)
	return nil
}

func (r *feeRepoStub) ListPayments(ctx context.Context, filter models.FeePaymentFilter) ([]models.FeePaymentDetail, int, error) {
	return nil, 0, nil
}

func (r *feeRepoStub) FindPaymentByID(ctx context.Context, id string) (*models.FeePayment, error) {
	if p, ok := r.payments[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (r *feeRepoStub) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	return r.referenceTaken, nil
}

func (r *feeRepoStub) ReceiptExists(ctx context.Context, receipt string) (bool, error) {
	return r.receiptTaken, nil
}

func (r *feeRepoStub) CreatePayment(ctx context.Context, payment *models.FeePayment) error {
	payment.ID = "pay-new"
	r.createdPayment = payment
	return nil
}

func (r *feeRepoStub) SetVerification(ctx context.Context, id string, verified bool, verifiedBy *string, verifiedAt *time.Time) error {
	if r.verification == nil {
		r.verification = make(map[string]bool)
	}
	r.verification[id] = verified
	return nil
}

func (r *feeRepoStub) SumVerified(ctx context.Context, studentID, yearID string) (float64, error) {
	return r.verifiedSum, nil
}

func (r *feeRepoStub) ListPaymentsByStudentYear(ctx context.Context, studentID, yearID string) ([]models.FeePaymentDetail, error) {
	return r.statementRows, nil
}

type feeCourseStub struct {
	courses map[string]*models.Course
}

func (c *feeCourseStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if course, ok := c.courses[id]; ok {
		return course, nil
	}
	return nil, sql.ErrNoRows
}

func feeFixtures() (*feeRepoStub, *mockStudentReader, *feeCourseStub, *mockCalendarReader) {
	repo := &feeRepoStub{
		structures: map[string]*models.FeeStructure{},
		payments:   map[string]*models.FeePayment{},
	}
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		"s1": {Student: models.Student{ID: "s1", CourseID: "c1", YearOfStudy: 1, Status: models.StudentStatusActive}},
	}}
	courses := &feeCourseStub{courses: map[string]*models.Course{
		"c1": {ID: "c1", Name: "BSc Computer Science", Code: "BSC-CS", Active: true},
	}}
	calendar := &mockCalendarReader{years: map[string]*models.AcademicYear{
		"y1": {ID: "y1", Name: "2026/2027", IsActive: true},
	}}
	return repo, students, courses, calendar
}

func TestFeeServiceCreateStructure(t *testing.T) {
	repo, students, courses, calendar := feeFixtures()
	svc := NewFeeService(repo, students, courses, calendar, nil, nil)

	structure, err := svc.CreateStructure(context.Background(), FeeStructureRequest{
		CourseID:       "c1",
		AcademicYearID: "y1",
		YearOfStudy:    1,
		TuitionFee:     120000,
		ActivityFee:    5000,
		LibraryFee:     3000,
		LaboratoryFee:  8000,
		OtherFees:      2000,
	})
	require.NoError(t, err)
	assert.Equal(t, "fs-new", structure.ID)
	assert.InDelta(t, 138000.0, structure.Total(), 0.001)
}

func TestFeeServiceCreateStructureDuplicateTriple(t *testing.T) {
	repo, students, courses, calendar := feeFixtures()
	repo.structureExists = true
	svc := NewFeeService(repo, students, courses, calendar, nil, nil)

	_, err := svc.CreateStructure(context.Background(), FeeStructureRequest{
		CourseID:       "c1",
		AcademicYearID: "y1",
		YearOfStudy:    1,
		TuitionFee:     120000,
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestFeeServiceRecordPaymentGeneratesReceipt(t *testing.T) {
	repo, students, courses, calendar := feeFixtures()
	svc := NewFeeService(repo, students, courses, calendar, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC) }

	payment, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		StudentID:       "s1",
		AcademicYearID:  "y1",
		Amount:          50000,
		PaymentMethod:   models.PaymentMethodMobileMoney,
		ReferenceNumber: "MM-778812",
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^RCP20260825[0-9A-F]{6}$`), payment.ReceiptNumber)
	assert.False(t, payment.IsVerified)
	assert.Equal(t, "pay-new", payment.ID)
}

func TestFeeServiceRecordPaymentDuplicateReference(t *testing.T) {
	repo, students, courses, calendar := feeFixtures()
	repo.referenceTaken = true
	svc := NewFeeService(repo, students, courses, calendar, nil, nil)

	_, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		StudentID:       "s1",
		AcademicYearID:  "y1",
		Amount:          50000,
		PaymentMethod:   models.PaymentMethodCash,
		ReferenceNumber: "MM-778812",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Nil(t, repo.createdPayment)
}

func TestFeeServiceRecordPaymentUnknownMethod(t *testing.T) {
	repo, students, courses, calendar := feeFixtures()
	svc := NewFeeService(repo, students, courses, calendar, nil, nil)

	_, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{
		StudentID:       "s1",
		AcademicYearID:  "y1",
		Amount:          1000,
		PaymentMethod:   "CHEQUE",
		ReferenceNumber: "CHQ-1",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestFeeServiceVerifyPayment(t *testing.T) {
	repo, students, courses, calendar := feeFixtures()
	repo.payments["pay-1"] = &models.FeePayment{ID: "pay-1", StudentID: "s1", Amount: 50000}
	svc := NewFeeService(repo, students, courses, calendar, nil, nil)

	payment, err := svc.VerifyPayment(context.Background(), "pay-1", "admin-1")
	require.NoError(t, err)
	assert.True(t, payment.IsVerified)
	require.NotNil(t, payment.VerifiedBy)
	assert.Equal(t, "admin-1", *payment.VerifiedBy)
	assert.True(t, repo.verification["pay-1"])
}

func TestFeeServiceVerifyPaymentTwice(t *testing.T) {
	repo, students, courses, calendar := feeFixtures()
	repo.payments["pay-1"] = &models.FeePayment{ID: "pay-1", IsVerified: true}
	svc := NewFeeService(repo, students, courses, calendar, nil, nil)

	_, err := svc.VerifyPayment(context.Background(), "pay-1", "admin-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestFeeServiceUnverifyPayment(t *testing.T) {
	repo, students, courses, calendar := feeFixtures()
	verifier := "admin-1"
	at := time.Now()
	repo.payments["pay-1"] = &models.FeePayment{ID: "pay-1", IsVerified: true, VerifiedBy: &verifier, VerifiedAt: &at}
	svc := NewFeeService(repo, students, courses, calendar, nil, nil)

	payment, err := svc.UnverifyPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.False(t, payment.IsVerified)
	assert.Nil(t, payment.VerifiedBy)
	assert.False(t, repo.verification["pay-1"])
}

func TestFeeServiceBalanceCountsVerifiedOnly(t *testing.T) {
	repo, students, courses, calendar := feeFixtures()
	repo.structureByKey = &models.FeeStructure{
		ID:         "fs-1",
		TuitionFee: 120000, ActivityFee: 5000, LibraryFee: 3000, LaboratoryFee: 8000, OtherFees: 2000,
	}
	repo.verifiedSum = 90000
	svc := NewFeeService(repo, students, courses, calendar, nil, nil)

	balance, err := svc.Balance(context.Background(), "s1", "y1")
	require.NoError(t, err)
	assert.False(t, balance.StructureMissing)
	assert.InDelta(t, 138000.0, balance.TotalFee, 0.001)
	assert.InDelta(t, 90000.0, balance.TotalPaid, 0.001)
	assert.InDelta(t, 48000.0, balance.Balance, 0.001)
}

func TestFeeServiceBalanceMissingStructure(t *testing.T) {
	repo, students, courses, calendar := feeFixtures()
	repo.verifiedSum = 25000
	svc := NewFeeService(repo, students, courses, calendar, nil, nil)

	balance, err := svc.Balance(context.Background(), "s1", "y1")
	require.NoError(t, err)
	assert.True(t, balance.StructureMissing)
	assert.Equal(t, 0.0, balance.TotalFee)
	assert.InDelta(t, -25000.0, balance.Balance, 0.001)
}

func TestFeeServiceStatement(t *testing.T) {
	repo, students, courses, calendar := feeFixtures()
	repo.structureByKey = &models.FeeStructure{TuitionFee: 100000}
	repo.verifiedSum = 60000
	repo.statementRows = []models.FeePaymentDetail{
		{FeePayment: models.FeePayment{ID: "pay-1", Amount: 60000, IsVerified: true}},
		{FeePayment: models.FeePayment{ID: "pay-2", Amount: 10000}},
	}
	svc := NewFeeService(repo, students, courses, calendar, nil, nil)

	statement, err := svc.Statement(context.Background(), "s1", "y1")
	require.NoError(t, err)
	assert.Equal(t, "s1", statement.Student.ID)
	assert.InDelta(t, 40000.0, statement.Balance.Balance, 0.001)
	assert.Len(t, statement.Payments, 2)
}
