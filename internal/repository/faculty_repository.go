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

// FacultyRepository handles persistence for faculties and departments.
type FacultyRepository struct {
	db *sqlx.DB
}

// NewFacultyRepository constructs the repository.
func NewFacultyRepository(db *sqlx.DB) *FacultyRepository {
	return &FacultyRepository{db: db}
}

// ListFaculties returns faculties matching the provided filters.
func (r *FacultyRepository) ListFaculties(ctx context.Context, filter models.FacultyFilter) ([]models.FacultyDetail, int, error) {
	base := `FROM faculties f
LEFT JOIN lecturers d ON d.id = f.dean_id
LEFT JOIN users du ON du.id = d.user_id`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(f.name) LIKE $%d OR LOWER(f.code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "f.name",
		"code":       "f.code",
		"created_at": "f.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "name"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "f.name"
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

	query := fmt.Sprintf(`SELECT f.id, f.name, f.code, f.description, f.dean_id, f.created_at, f.updated_at,
du.full_name AS dean_name,
(SELECT COUNT(*) FROM departments dp WHERE dp.faculty_id = f.id) AS department_count
%s%s ORDER BY %s %s LIMIT %d OFFSET %d`, base, clause, orderBy, order, size, offset)

	var faculties []models.FacultyDetail
	if err := r.db.SelectContext(ctx, &faculties, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list faculties: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s%s", base, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count faculties: %w", err)
	}

	return faculties, total, nil
}

// FindFacultyByID loads a faculty by identifier.
func (r *FacultyRepository) FindFacultyByID(ctx context.Context, id string) (*models.Faculty, error) {
	const query = `SELECT id, name, code, description, dean_id, created_at, updated_at FROM faculties WHERE id = $1`
	var faculty models.Faculty
	if err := r.db.GetContext(ctx, &faculty, query, id); err != nil {
		return nil, err
	}
	return &faculty, nil
}

// FacultyExists checks whether a faculty with the name or code already exists.
func (r *FacultyRepository) FacultyExists(ctx context.Context, name, code, excludeID string) (bool, error) {
	base := "SELECT 1 FROM faculties WHERE (LOWER(name) = LOWER($1) OR LOWER(code) = LOWER($2))"
	args := []interface{}{name, code}
	if excludeID != "" {
		base += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check faculty uniqueness: %w", err)
	}
	return true, nil
}

// CreateFaculty inserts a new faculty record.
func (r *FacultyRepository) CreateFaculty(ctx context.Context, faculty *models.Faculty) error {
	if faculty.ID == "" {
		faculty.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if faculty.CreatedAt.IsZero() {
		faculty.CreatedAt = now
	}
	faculty.UpdatedAt = now

	const query = `INSERT INTO faculties (id, name, code, description, dean_id, created_at, updated_at) VALUES (:id, :name, :code, :description, :dean_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, faculty); err != nil {
		return fmt.Errorf("create faculty: %w", err)
	}
	return nil
}

// UpdateFaculty modifies an existing faculty.
func (r *FacultyRepository) UpdateFaculty(ctx context.Context, faculty *models.Faculty) error {
	faculty.UpdatedAt = time.Now().UTC()
	const query = `UPDATE faculties SET name = :name, code = :code, description = :description, dean_id = :dean_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, faculty); err != nil {
		return fmt.Errorf("update faculty: %w", err)
	}
	return nil
}

// DeleteFaculty removes a faculty permanently.
func (r *FacultyRepository) DeleteFaculty(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM faculties WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete faculty: %w", err)
	}
	return nil
}

// CountFacultyDepartments returns the number of departments under a faculty.
func (r *FacultyRepository) CountFacultyDepartments(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM departments WHERE faculty_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count faculty departments: %w", err)
	}
	return count, nil
}

// ListDepartments returns departments matching the provided filters.
func (r *FacultyRepository) ListDepartments(ctx context.Context, filter models.DepartmentFilter) ([]models.DepartmentDetail, int, error) {
	base := `FROM departments dp
JOIN faculties f ON f.id = dp.faculty_id
LEFT JOIN lecturers h ON h.id = dp.head_id
LEFT JOIN users hu ON hu.id = h.user_id`
	var conditions []string
	var args []interface{}

	if filter.FacultyID != "" {
		conditions = append(conditions, fmt.Sprintf("dp.faculty_id = $%d", len(args)+1))
		args = append(args, filter.FacultyID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(dp.name) LIKE $%d OR LOWER(dp.code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "dp.name",
		"code":       "dp.code",
		"created_at": "dp.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "name"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "dp.name"
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

	query := fmt.Sprintf(`SELECT dp.id, dp.faculty_id, dp.name, dp.code, dp.description, dp.head_id, dp.created_at, dp.updated_at,
f.name AS faculty_name, hu.full_name AS head_name
%s%s ORDER BY %s %s LIMIT %d OFFSET %d`, base, clause, orderBy, order, size, offset)

	var departments []models.DepartmentDetail
	if err := r.db.SelectContext(ctx, &departments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list departments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s%s", base, clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count departments: %w", err)
	}

	return departments, total, nil
}

// FindDepartmentByID loads a department by identifier.
func (r *FacultyRepository) FindDepartmentByID(ctx context.Context, id string) (*models.Department, error) {
	const query = `SELECT id, faculty_id, name, code, description, head_id, created_at, updated_at FROM departments WHERE id = $1`
	var department models.Department
	if err := r.db.GetContext(ctx, &department, query, id); err != nil {
		return nil, err
	}
	return &department, nil
}

// DepartmentExistsByCode checks whether the department code is taken.
func (r *FacultyRepository) DepartmentExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	base := "SELECT 1 FROM departments WHERE LOWER(code) = LOWER($1)"
	args := []interface{}{code}
	if excludeID != "" {
		base += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check department uniqueness: %w", err)
	}
	return true, nil
}

// CreateDepartment inserts a new department record.
func (r *FacultyRepository) CreateDepartment(ctx context.Context, department *models.Department) error {
	if department.ID == "" {
		department.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if department.CreatedAt.IsZero() {
		department.CreatedAt = now
	}
	department.UpdatedAt = now

	const query = `INSERT INTO departments (id, faculty_id, name, code, description, head_id, created_at, updated_at) VALUES (:id, :faculty_id, :name, :code, :description, :head_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, department); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// UpdateDepartment modifies an existing department.
func (r *FacultyRepository) UpdateDepartment(ctx context.Context, department *models.Department) error {
	department.UpdatedAt = time.Now().UTC()
	const query = `UPDATE departments SET faculty_id = :faculty_id, name = :name, code = :code, description = :description, head_id = :head_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, department); err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	return nil
}

// DeleteDepartment removes a department permanently.
func (r *FacultyRepository) DeleteDepartment(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM departments WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete department: %w", err)
	}
	return nil
}

// CountDepartmentCourses returns the number of courses under a department.
func (r *FacultyRepository) CountDepartmentCourses(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM courses WHERE department_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count department courses: %w", err)
	}
	return count, nil
}
