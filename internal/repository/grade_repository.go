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

// GradeRepository handles grade entry persistence.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeDetailColumns = `g.id, g.student_id, g.unit_id, g.academic_year_id, g.semester_id, g.assessment, g.marks, g.letter, g.is_final, g.recorded_by, g.created_at, g.updated_at,
        un.code AS unit_code, un.name AS unit_name, un.credit_hours,
        su.full_name AS student_name, s.registration_number AS reg_number`

const gradeDetailJoins = `FROM grades g
        JOIN units un ON un.id = g.unit_id
        JOIN students s ON s.id = g.student_id
        JOIN users su ON su.id = s.user_id`

// List returns grade entries matching the filter.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("g.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.UnitID != "" {
		conditions = append(conditions, fmt.Sprintf("g.unit_id = $%d", len(args)+1))
		args = append(args, filter.UnitID)
	}
	if filter.AcademicYearID != "" {
		conditions = append(conditions, fmt.Sprintf("g.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.SemesterID != "" {
		conditions = append(conditions, fmt.Sprintf("g.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.Assessment != "" {
		conditions = append(conditions, fmt.Sprintf("g.assessment = $%d", len(args)+1))
		args = append(args, filter.Assessment)
	}
	if filter.FinalOnly {
		conditions = append(conditions, "g.is_final = TRUE")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"marks":        "g.marks",
		"recorded_at":  "g.created_at",
		"unit_code":    "un.code",
		"student_name": "su.full_name",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "recorded_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "g.created_at"
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

	query := fmt.Sprintf("SELECT %s %s%s ORDER BY %s %s LIMIT %d OFFSET %d",
		gradeDetailColumns, gradeDetailJoins, clause, orderBy, order, size, offset)

	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s%s", gradeDetailJoins, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	return grades, total, nil
}

// FindByID returns a grade entry by its ID.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	const query = `SELECT id, student_id, unit_id, academic_year_id, semester_id, assessment, marks, letter, is_final, recorded_by, created_at, updated_at
        FROM grades WHERE id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// Exists checks whether a grade is already recorded for the unique tuple.
func (r *GradeRepository) Exists(ctx context.Context, studentID, unitID, yearID, semesterID string, assessment models.AssessmentType) (bool, error) {
	const query = `SELECT 1 FROM grades
        WHERE student_id = $1 AND unit_id = $2 AND academic_year_id = $3 AND semester_id = $4 AND assessment = $5 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, unitID, yearID, semesterID, assessment); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check grade: %w", err)
	}
	return true, nil
}

// Create persists a new grade entry.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, student_id, unit_id, academic_year_id, semester_id, assessment, marks, letter, is_final, recorded_by, created_at, updated_at)
        VALUES (:id, :student_id, :unit_id, :academic_year_id, :semester_id, :assessment, :marks, :letter, :is_final, :recorded_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update rewrites the marks and letter of an existing grade entry.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET marks = :marks, letter = :letter, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return nil
}

// SetLetter overwrites the letter alone, leaving marks untouched. Used for
// the incomplete and withdrawn statuses and their resolution.
func (r *GradeRepository) SetLetter(ctx context.Context, id string, letter models.LetterGrade) error {
	const query = `UPDATE grades SET letter = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, letter, time.Now().UTC()); err != nil {
		return fmt.Errorf("set grade letter: %w", err)
	}
	return nil
}

// ListFinalByStudent returns the student's final grades across all terms,
// joined with unit credits for GPA and transcript assembly.
func (r *GradeRepository) ListFinalByStudent(ctx context.Context, studentID string) ([]models.TranscriptRow, error) {
	const query = `SELECT un.code AS unit_code, un.name AS unit_name, un.credit_hours, g.marks, g.letter,
        y.name AS year_name, sm.number AS semester
        FROM grades g
        JOIN units un ON un.id = g.unit_id
        JOIN academic_years y ON y.id = g.academic_year_id
        JOIN semesters sm ON sm.id = g.semester_id
        WHERE g.student_id = $1 AND g.is_final = TRUE
        ORDER BY y.name ASC, sm.number ASC, un.code ASC`
	var rows []models.TranscriptRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list final grades: %w", err)
	}
	return rows, nil
}

// ListByUnitOffering returns grades of one unit offering.
func (r *GradeRepository) ListByUnitOffering(ctx context.Context, unitID, yearID, semesterID string, finalOnly bool) ([]models.GradeDetail, error) {
	query := fmt.Sprintf(`SELECT %s %s
        WHERE g.unit_id = $1 AND g.academic_year_id = $2 AND g.semester_id = $3`, gradeDetailColumns, gradeDetailJoins)
	if finalOnly {
		query += " AND g.is_final = TRUE"
	}
	query += " ORDER BY su.full_name ASC"
	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, unitID, yearID, semesterID); err != nil {
		return nil, fmt.Errorf("list unit grades: %w", err)
	}
	return grades, nil
}
