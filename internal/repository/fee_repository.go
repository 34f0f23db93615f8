package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-api/internal/models"
)

// FeeRepository handles fee structures and payment persistence.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs the repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// ListStructures returns fee structures matching the filter.
func (r *FeeRepository) ListStructures(ctx context.Context, filter models.FeeStructureFilter) ([]models.FeeStructureDetail, int, error) {
	base := `FROM fee_structures fs
JOIN courses c ON c.id = fs.course_id
JOIN academic_years y ON y.id = fs.academic_year_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.CourseID != "" {
		where = append(where, fmt.Sprintf("fs.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.AcademicYearID != "" {
		where = append(where, fmt.Sprintf("fs.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.YearOfStudy > 0 {
		where = append(where, fmt.Sprintf("fs.year_of_study = $%d", len(args)+1))
		args = append(args, filter.YearOfStudy)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"course_name":   "c.name",
		"year_of_study": "fs.year_of_study",
		"created_at":    "fs.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "course_name"
	}
	sortColumn, ok := allowedSort[sortBy]
	if !ok {
		sortColumn = "c.name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT fs.id, fs.course_id, fs.academic_year_id, fs.year_of_study,
        fs.tuition_fee, fs.activity_fee, fs.library_fee, fs.laboratory_fee, fs.other_fees,
        fs.created_at, fs.updated_at,
        c.name AS course_name, c.code AS course_code, y.name AS academic_year_name
        %s WHERE %s
        ORDER BY %s %s, fs.year_of_study ASC
        LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var structures []models.FeeStructureDetail
	if err := r.db.SelectContext(ctx, &structures, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fee structures: %w", err)
	}
	for i := range structures {
		structures[i].TotalFee = structures[i].Total()
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count fee structures: %w", err)
	}
	return structures, total, nil
}

// FindStructureByID returns a fee structure by its ID.
func (r *FeeRepository) FindStructureByID(ctx context.Context, id string) (*models.FeeStructure, error) {
	const query = `SELECT id, course_id, academic_year_id, year_of_study, tuition_fee, activity_fee, library_fee, laboratory_fee, other_fees, created_at, updated_at
        FROM fee_structures WHERE id = $1`
	var structure models.FeeStructure
	if err := r.db.GetContext(ctx, &structure, query, id); err != nil {
		return nil, err
	}
	return &structure, nil
}

// FindStructure returns the fee structure for a course, year and year of study.
func (r *FeeRepository) FindStructure(ctx context.Context, courseID, yearID string, yearOfStudy int) (*models.FeeStructure, error) {
	const query = `SELECT id, course_id, academic_year_id, year_of_study, tuition_fee, activity_fee, library_fee, laboratory_fee, other_fees, created_at, updated_at
        FROM fee_structures WHERE course_id = $1 AND academic_year_id = $2 AND year_of_study = $3`
	var structure models.FeeStructure
	if err := r.db.GetContext(ctx, &structure, query, courseID, yearID, yearOfStudy); err != nil {
		return nil, err
	}
	return &structure, nil
}

// StructureExists checks the unique (course, year, year of study) tuple.
func (r *FeeRepository) StructureExists(ctx context.Context, courseID, yearID string, yearOfStudy int, excludeID string) (bool, error) {
	query := `SELECT 1 FROM fee_structures WHERE course_id = $1 AND academic_year_id = $2 AND year_of_study = $3`
	args := []interface{}{courseID, yearID, yearOfStudy}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check fee structure: %w", err)
	}
	return true, nil
}

// CreateStructure persists a new fee structure.
func (r *FeeRepository) CreateStructure(ctx context.Context, structure *models.FeeStructure) error {
	if structure.ID == "" {
		structure.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	structure.CreatedAt = now
	structure.UpdatedAt = now
	const query = `INSERT INTO fee_structures (id, course_id, academic_year_id, year_of_study, tuition_fee, activity_fee, library_fee, laboratory_fee, other_fees, created_at, updated_at)
        VALUES (:id, :course_id, :academic_year_id, :year_of_study, :tuition_fee, :activity_fee, :library_fee, :laboratory_fee, :other_fees, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, structure); err != nil {
		return fmt.Errorf("create fee structure: %w", err)
	}
	return nil
}

// UpdateStructure rewrites the fee components of a structure.
func (r *FeeRepository) UpdateStructure(ctx context.Context, structure *models.FeeStructure) error {
	structure.UpdatedAt = time.Now().UTC()
	const query = `UPDATE fee_structures SET tuition_fee = :tuition_fee, activity_fee = :activity_fee, library_fee = :library_fee,
        laboratory_fee = :laboratory_fee, other_fees = :other_fees, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, structure); err != nil {
		return fmt.Errorf("update fee structure: %w", err)
	}
	return nil
}

// DeleteStructure removes a fee structure.
func (r *FeeRepository) DeleteStructure(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM fee_structures WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete fee structure: %w", err)
	}
	return nil
}

// ListPayments returns payments matching the filter.
func (r *FeeRepository) ListPayments(ctx context.Context, filter models.FeePaymentFilter) ([]models.FeePaymentDetail, int, error) {
	base := `FROM fee_payments fp
JOIN students s ON s.id = fp.student_id
JOIN users su ON su.id = s.user_id
JOIN academic_years y ON y.id = fp.academic_year_id
LEFT JOIN users vu ON vu.id = fp.verified_by`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("fp.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.AcademicYearID != "" {
		where = append(where, fmt.Sprintf("fp.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.Method != "" {
		where = append(where, fmt.Sprintf("fp.payment_method = $%d", len(args)+1))
		args = append(args, filter.Method)
	}
	if filter.Verified != nil {
		where = append(where, fmt.Sprintf("fp.is_verified = $%d", len(args)+1))
		args = append(args, *filter.Verified)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("fp.payment_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("fp.payment_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"payment_date": "fp.payment_date",
		"amount":       "fp.amount",
		"created_at":   "fp.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "payment_date"
	}
	sortColumn, ok := allowedSort[sortBy]
	if !ok {
		sortColumn = "fp.payment_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT fp.id, fp.student_id, fp.academic_year_id, fp.amount, fp.payment_method,
        fp.reference_number, fp.receipt_number, fp.payment_date, fp.is_verified, fp.verified_by, fp.verified_at,
        fp.remarks, fp.created_at, fp.updated_at,
        su.full_name AS student_name, s.registration_number AS reg_number,
        y.name AS academic_year_name, vu.full_name AS verifier_name
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var payments []models.FeePaymentDetail
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fee payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count fee payments: %w", err)
	}
	return payments, total, nil
}

// FindPaymentByID returns a payment by its ID.
func (r *FeeRepository) FindPaymentByID(ctx context.Context, id string) (*models.FeePayment, error) {
	const query = `SELECT id, student_id, academic_year_id, amount, payment_method, reference_number, receipt_number,
        payment_date, is_verified, verified_by, verified_at, remarks, created_at, updated_at
        FROM fee_payments WHERE id = $1`
	var payment models.FeePayment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// ReferenceExists checks whether the caller reference has been used before.
func (r *FeeRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	const query = `SELECT 1 FROM fee_payments WHERE reference_number = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, reference); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check payment reference: %w", err)
	}
	return true, nil
}

// ReceiptExists checks whether a generated receipt number is already taken.
func (r *FeeRepository) ReceiptExists(ctx context.Context, receipt string) (bool, error) {
	const query = `SELECT 1 FROM fee_payments WHERE receipt_number = $1 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, receipt); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check receipt number: %w", err)
	}
	return true, nil
}

// CreatePayment persists a new payment row.
func (r *FeeRepository) CreatePayment(ctx context.Context, payment *models.FeePayment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	const query = `INSERT INTO fee_payments (id, student_id, academic_year_id, amount, payment_method, reference_number, receipt_number,
        payment_date, is_verified, verified_by, verified_at, remarks, created_at, updated_at)
        VALUES (:id, :student_id, :academic_year_id, :amount, :payment_method, :reference_number, :receipt_number,
        :payment_date, :is_verified, :verified_by, :verified_at, :remarks, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create fee payment: %w", err)
	}
	return nil
}

// SetVerification flips the verified flag. The verifier and timestamp are
// cleared on unverify.
func (r *FeeRepository) SetVerification(ctx context.Context, id string, verified bool, verifiedBy *string, verifiedAt *time.Time) error {
	const query = `UPDATE fee_payments SET is_verified = $2, verified_by = $3, verified_at = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, verified, verifiedBy, verifiedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("set payment verification: %w", err)
	}
	return nil
}

// SumVerified totals the verified payments of a student for a year.
func (r *FeeRepository) SumVerified(ctx context.Context, studentID, yearID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM fee_payments
        WHERE student_id = $1 AND academic_year_id = $2 AND is_verified = TRUE`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, studentID, yearID); err != nil {
		return 0, fmt.Errorf("sum verified payments: %w", err)
	}
	return total, nil
}

// ListPaymentsByStudentYear returns all payments of a student for a year,
// newest first. Used for statements.
func (r *FeeRepository) ListPaymentsByStudentYear(ctx context.Context, studentID, yearID string) ([]models.FeePaymentDetail, error) {
	const query = `SELECT fp.id, fp.student_id, fp.academic_year_id, fp.amount, fp.payment_method,
        fp.reference_number, fp.receipt_number, fp.payment_date, fp.is_verified, fp.verified_by, fp.verified_at,
        fp.remarks, fp.created_at, fp.updated_at,
        su.full_name AS student_name, s.registration_number AS reg_number,
        y.name AS academic_year_name, vu.full_name AS verifier_name
        FROM fee_payments fp
        JOIN students s ON s.id = fp.student_id
        JOIN users su ON su.id = s.user_id
        JOIN academic_years y ON y.id = fp.academic_year_id
        LEFT JOIN users vu ON vu.id = fp.verified_by
        WHERE fp.student_id = $1 AND fp.academic_year_id = $2
        ORDER BY fp.payment_date DESC`
	var payments []models.FeePaymentDetail
	if err := r.db.SelectContext(ctx, &payments, query, studentID, yearID); err != nil {
		return nil, fmt.Errorf("list student payments: %w", err)
	}
	return payments, nil
}
