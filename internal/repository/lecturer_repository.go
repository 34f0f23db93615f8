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

// LecturerRepository manages persistence for teaching staff records.
type LecturerRepository struct {
	db *sqlx.DB
}

// NewLecturerRepository constructs a LecturerRepository.
func NewLecturerRepository(db *sqlx.DB) *LecturerRepository {
	return &LecturerRepository{db: db}
}

// List returns lecturers matching the provided filters.
func (r *LecturerRepository) List(ctx context.Context, filter models.LecturerFilter) ([]models.LecturerDetail, int, error) {
	base := `FROM lecturers l
JOIN users u ON u.id = l.user_id
JOIN departments dp ON dp.id = l.department_id`
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.DepartmentID != "" {
		conditions = append(conditions, fmt.Sprintf("l.department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.Rank != "" {
		conditions = append(conditions, fmt.Sprintf("l.rank = $%d", len(args)+1))
		args = append(args, filter.Rank)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("l.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(u.full_name) LIKE $%d OR LOWER(l.staff_number) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"full_name":    "u.full_name",
		"staff_number": "l.staff_number",
		"rank":         "l.rank",
		"created_at":   "l.created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "l.created_at"
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

	query := fmt.Sprintf(`SELECT l.id, l.user_id, l.staff_number, l.department_id, l.rank, l.specialization, l.phone, l.office_location, l.active, l.created_at, l.updated_at,
        u.full_name, u.email, dp.name AS department_name,
        (SELECT COUNT(*) FROM units un WHERE un.lecturer_id = l.id) AS unit_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var lecturers []models.LecturerDetail
	if err := r.db.SelectContext(ctx, &lecturers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list lecturers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lecturers: %w", err)
	}
	return lecturers, total, nil
}

// FindByID fetches a lecturer detail by ID.
func (r *LecturerRepository) FindByID(ctx context.Context, id string) (*models.LecturerDetail, error) {
	const query = `SELECT l.id, l.user_id, l.staff_number, l.department_id, l.rank, l.specialization, l.phone, l.office_location, l.active, l.created_at, l.updated_at,
        u.full_name, u.email, dp.name AS department_name,
        (SELECT COUNT(*) FROM units un WHERE un.lecturer_id = l.id) AS unit_count
        FROM lecturers l
        JOIN users u ON u.id = l.user_id
        JOIN departments dp ON dp.id = l.department_id
        WHERE l.id = $1`
	var detail models.LecturerDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByUserID fetches the lecturer record linked to a user account.
func (r *LecturerRepository) FindByUserID(ctx context.Context, userID string) (*models.Lecturer, error) {
	const query = `SELECT id, user_id, staff_number, department_id, rank, specialization, phone, office_location, active, created_at, updated_at FROM lecturers WHERE user_id = $1`
	var lecturer models.Lecturer
	if err := r.db.GetContext(ctx, &lecturer, query, userID); err != nil {
		return nil, err
	}
	return &lecturer, nil
}

// ExistsByStaffNumber checks if the staff number is taken.
func (r *LecturerRepository) ExistsByStaffNumber(ctx context.Context, staffNumber string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM lecturers WHERE staff_number = $1"
	args := []interface{}{staffNumber}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check staff number: %w", err)
	}
	return true, nil
}

// Create inserts a new lecturer record.
func (r *LecturerRepository) Create(ctx context.Context, lecturer *models.Lecturer) error {
	if lecturer.ID == "" {
		lecturer.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lecturer.CreatedAt.IsZero() {
		lecturer.CreatedAt = now
	}
	lecturer.UpdatedAt = now
	const query = `INSERT INTO lecturers (id, user_id, staff_number, department_id, rank, specialization, phone, office_location, active, created_at, updated_at)
        VALUES (:id, :user_id, :staff_number, :department_id, :rank, :specialization, :phone, :office_location, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lecturer); err != nil {
		return fmt.Errorf("create lecturer: %w", err)
	}
	return nil
}

// Update modifies an existing lecturer.
func (r *LecturerRepository) Update(ctx context.Context, lecturer *models.Lecturer) error {
	lecturer.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lecturers SET staff_number = :staff_number, department_id = :department_id, rank = :rank, specialization = :specialization, phone = :phone, office_location = :office_location, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lecturer); err != nil {
		return fmt.Errorf("update lecturer: %w", err)
	}
	return nil
}

// Deactivate marks a lecturer as inactive.
func (r *LecturerRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE lecturers SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate lecturer: %w", err)
	}
	return nil
}
