package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-api/internal/models"
)

// EnrollmentRepository handles persistence of unit enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN users su ON su.id = s.user_id
JOIN units un ON un.id = e.unit_id
JOIN academic_years y ON y.id = e.academic_year_id
JOIN semesters sm ON sm.id = e.semester_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.UnitID != "" {
		conditions = append(conditions, fmt.Sprintf("e.unit_id = $%d", len(args)+1))
		args = append(args, filter.UnitID)
	}
	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("e.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("e.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "su.full_name",
		"unit_code":    "un.code",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "enrolled_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.unit_id, e.academic_year_id, e.semester_id, e.enrolled_at, e.is_retake, e.status,
        su.full_name AS student_name, s.registration_number AS student_reg_number,
        un.name AS unit_name, un.code AS unit_code, un.credit_hours,
        y.name AS academic_year_name, sm.number AS semester_number
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, unit_id, academic_year_id, semester_id, enrolled_at, is_retake, status FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Exists checks if an enrollment exists for the unique tuple regardless of
// status. Duplicates are rejected at this level.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, unitID, yearID, semesterID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND unit_id = $2 AND academic_year_id = $3 AND semester_id = $4 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, unitID, yearID, semesterID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	const query = `INSERT INTO enrollments (id, student_id, unit_id, academic_year_id, semester_id, enrolled_at, is_retake, status)
        VALUES (:id, :student_id, :unit_id, :academic_year_id, :semester_id, :enrolled_at, :is_retake, :status)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus updates the lifecycle status of an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// IsEnrolled reports whether the student holds an ENROLLED row for the unit
// offering.
func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, studentID, unitID, yearID, semesterID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND unit_id = $2 AND academic_year_id = $3 AND semester_id = $4 AND status = $5 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, unitID, yearID, semesterID, models.EnrollmentStatusEnrolled); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrolled: %w", err)
	}
	return true, nil
}

// ListRoster returns the ENROLLED students of a unit offering.
func (r *EnrollmentRepository) ListRoster(ctx context.Context, unitID, yearID, semesterID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.unit_id, e.academic_year_id, e.semester_id, e.enrolled_at, e.is_retake, e.status,
        su.full_name AS student_name, s.registration_number AS student_reg_number,
        un.name AS unit_name, un.code AS unit_code, un.credit_hours,
        y.name AS academic_year_name, sm.number AS semester_number
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN users su ON su.id = s.user_id
        JOIN units un ON un.id = e.unit_id
        JOIN academic_years y ON y.id = e.academic_year_id
        JOIN semesters sm ON sm.id = e.semester_id
        WHERE e.unit_id = $1 AND e.academic_year_id = $2 AND e.semester_id = $3 AND e.status = $4
        ORDER BY su.full_name ASC`
	var roster []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &roster, query, unitID, yearID, semesterID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return roster, nil
}

// ListByStudentAndTerm returns a student's enrollments for one term.
func (r *EnrollmentRepository) ListByStudentAndTerm(ctx context.Context, studentID, yearID, semesterID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.unit_id, e.academic_year_id, e.semester_id, e.enrolled_at, e.is_retake, e.status,
        su.full_name AS student_name, s.registration_number AS student_reg_number,
        un.name AS unit_name, un.code AS unit_code, un.credit_hours,
        y.name AS academic_year_name, sm.number AS semester_number
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN users su ON su.id = s.user_id
        JOIN units un ON un.id = e.unit_id
        JOIN academic_years y ON y.id = e.academic_year_id
        JOIN semesters sm ON sm.id = e.semester_id
        WHERE e.student_id = $1 AND e.academic_year_id = $2 AND e.semester_id = $3 AND e.status = $4
        ORDER BY un.code ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, yearID, semesterID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list student term enrollments: %w", err)
	}
	return enrollments, nil
}

// PassedUnitIDs filters the given unit ids down to those the student has
// passed: a final grade whose letter carries points above zero.
func (r *EnrollmentRepository) PassedUnitIDs(ctx context.Context, studentID string, unitIDs []string) ([]string, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT DISTINCT unit_id FROM grades
        WHERE student_id = $1 AND unit_id = ANY($2) AND is_final = TRUE AND letter IN ('A', 'B', 'C', 'D')`
	var passed []string
	if err := r.db.SelectContext(ctx, &passed, query, studentID, pq.Array(unitIDs)); err != nil {
		return nil, fmt.Errorf("list passed units: %w", err)
	}
	return passed, nil
}

// HasFailedFinal reports whether the student holds a failed final grade for
// the unit, which qualifies a retake enrollment.
func (r *EnrollmentRepository) HasFailedFinal(ctx context.Context, studentID, unitID string) (bool, error) {
	const query = `SELECT 1 FROM grades WHERE student_id = $1 AND unit_id = $2 AND is_final = TRUE AND letter = 'F' LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, unitID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check failed final: %w", err)
	}
	return true, nil
}
