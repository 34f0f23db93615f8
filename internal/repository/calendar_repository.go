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

// CalendarRepository handles persistence for academic years and semesters.
type CalendarRepository struct {
	db *sqlx.DB
}

// NewCalendarRepository instantiates a calendar repository.
func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// ListYears returns academic years matching provided filters.
func (r *CalendarRepository) ListYears(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error) {
	base := "FROM academic_years WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.IsActive != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "start_date"
	}
	allowedSorts := map[string]bool{
		"name":       true,
		"start_date": true,
		"end_date":   true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
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

	query := fmt.Sprintf("SELECT id, name, start_date, end_date, is_active, created_at, updated_at %s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)

	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list academic years: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count academic years: %w", err)
	}

	return years, total, nil
}

// FindYearByID loads an academic year by identifier.
func (r *CalendarRepository) FindYearByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	const query = `SELECT id, name, start_date, end_date, is_active, created_at, updated_at FROM academic_years WHERE id = $1`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindActiveYear returns the currently active academic year.
func (r *CalendarRepository) FindActiveYear(ctx context.Context) (*models.AcademicYear, error) {
	const query = `SELECT id, name, start_date, end_date, is_active, created_at, updated_at FROM academic_years WHERE is_active = TRUE LIMIT 1`
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query); err != nil {
		return nil, err
	}
	return &year, nil
}

// YearExistsByName checks if an academic year with the same name exists.
func (r *CalendarRepository) YearExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	base := "SELECT 1 FROM academic_years WHERE name = $1"
	args := []interface{}{name}
	if excludeID != "" {
		base += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check year uniqueness: %w", err)
	}
	return true, nil
}

// CreateYear inserts a new academic year record.
func (r *CalendarRepository) CreateYear(ctx context.Context, year *models.AcademicYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if year.CreatedAt.IsZero() {
		year.CreatedAt = now
	}
	year.UpdatedAt = now

	const query = `INSERT INTO academic_years (id, name, start_date, end_date, is_active, created_at, updated_at) VALUES (:id, :name, :start_date, :end_date, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("create academic year: %w", err)
	}
	return nil
}

// UpdateYear modifies the descriptive fields of an academic year. The active
// flag is deliberately not part of the statement; activation owns it.
func (r *CalendarRepository) UpdateYear(ctx context.Context, year *models.AcademicYear) error {
	year.UpdatedAt = time.Now().UTC()
	const query = `UPDATE academic_years SET name = :name, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		return fmt.Errorf("update academic year: %w", err)
	}
	return nil
}

// SetActiveYear marks the provided year as active and deactivates the rest
// in one transaction, so at most one row carries the flag at any instant.
func (r *CalendarRepository) SetActiveYear(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active year tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE academic_years SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE AND id <> $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate other years: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE academic_years SET is_active = TRUE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("activate year: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set active year tx: %w", err)
	}
	return nil
}

// DeleteYear removes an academic year permanently.
func (r *CalendarRepository) DeleteYear(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM academic_years WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete academic year: %w", err)
	}
	return nil
}

// CountYearReferences returns enrollment rows referencing the year.
func (r *CalendarRepository) CountYearReferences(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE academic_year_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count year references: %w", err)
	}
	return count, nil
}

// ListSemesters returns all semesters of an academic year ordered by number.
func (r *CalendarRepository) ListSemesters(ctx context.Context, yearID string) ([]models.SemesterDetail, error) {
	const query = `SELECT s.id, s.academic_year_id, s.number, s.start_date, s.end_date, s.is_active, s.created_at, s.updated_at, y.name AS academic_year_name
FROM semesters s
JOIN academic_years y ON y.id = s.academic_year_id
WHERE s.academic_year_id = $1
ORDER BY s.number ASC`
	var semesters []models.SemesterDetail
	if err := r.db.SelectContext(ctx, &semesters, query, yearID); err != nil {
		return nil, fmt.Errorf("list semesters: %w", err)
	}
	return semesters, nil
}

// FindSemesterByID loads a semester by identifier.
func (r *CalendarRepository) FindSemesterByID(ctx context.Context, id string) (*models.Semester, error) {
	const query = `SELECT id, academic_year_id, number, start_date, end_date, is_active, created_at, updated_at FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}

// FindActiveSemester returns the currently active semester.
func (r *CalendarRepository) FindActiveSemester(ctx context.Context) (*models.Semester, error) {
	const query = `SELECT id, academic_year_id, number, start_date, end_date, is_active, created_at, updated_at FROM semesters WHERE is_active = TRUE LIMIT 1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query); err != nil {
		return nil, err
	}
	return &semester, nil
}

// SemesterExists checks if the year already carries a semester of the number.
func (r *CalendarRepository) SemesterExists(ctx context.Context, yearID string, number int, excludeID string) (bool, error) {
	base := "SELECT 1 FROM semesters WHERE academic_year_id = $1 AND number = $2"
	args := []interface{}{yearID, number}
	if excludeID != "" {
		base += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check semester uniqueness: %w", err)
	}
	return true, nil
}

// CreateSemester inserts a new semester record.
func (r *CalendarRepository) CreateSemester(ctx context.Context, semester *models.Semester) error {
	if semester.ID == "" {
		semester.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if semester.CreatedAt.IsZero() {
		semester.CreatedAt = now
	}
	semester.UpdatedAt = now

	const query = `INSERT INTO semesters (id, academic_year_id, number, start_date, end_date, is_active, created_at, updated_at) VALUES (:id, :academic_year_id, :number, :start_date, :end_date, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("create semester: %w", err)
	}
	return nil
}

// UpdateSemester modifies the descriptive fields of a semester.
func (r *CalendarRepository) UpdateSemester(ctx context.Context, semester *models.Semester) error {
	semester.UpdatedAt = time.Now().UTC()
	const query = `UPDATE semesters SET number = :number, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, semester); err != nil {
		return fmt.Errorf("update semester: %w", err)
	}
	return nil
}

// SetActiveSemester marks the provided semester as active and deactivates the
// rest in one transaction.
func (r *CalendarRepository) SetActiveSemester(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set active semester tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE semesters SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE AND id <> $2`, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("deactivate other semesters: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE semesters SET is_active = TRUE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("activate semester: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit set active semester tx: %w", err)
	}
	return nil
}

// DeleteSemester removes a semester permanently.
func (r *CalendarRepository) DeleteSemester(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM semesters WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete semester: %w", err)
	}
	return nil
}
