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

// UnitRepository manages persistence for course units and their
// prerequisite edges.
type UnitRepository struct {
	db *sqlx.DB
}

// NewUnitRepository constructs a UnitRepository.
func NewUnitRepository(db *sqlx.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// List returns units matching the provided filters.
func (r *UnitRepository) List(ctx context.Context, filter models.UnitFilter) ([]models.UnitDetail, int, error) {
	base := `FROM units un
JOIN courses c ON c.id = un.course_id
LEFT JOIN lecturers l ON l.id = un.lecturer_id
LEFT JOIN users lu ON lu.id = l.user_id`
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("un.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.LecturerID != "" {
		conditions = append(conditions, fmt.Sprintf("un.lecturer_id = $%d", len(args)+1))
		args = append(args, filter.LecturerID)
	}
	if filter.YearOffered > 0 {
		conditions = append(conditions, fmt.Sprintf("un.year_offered = $%d", len(args)+1))
		args = append(args, filter.YearOffered)
	}
	if filter.SemesterOffered > 0 {
		conditions = append(conditions, fmt.Sprintf("un.semester_offered = $%d", len(args)+1))
		args = append(args, filter.SemesterOffered)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("un.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(un.name) LIKE $%d OR LOWER(un.code) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":         "un.name",
		"code":         "un.code",
		"credit_hours": "un.credit_hours",
		"year_offered": "un.year_offered",
		"created_at":   "un.created_at",
	}
	if sortBy == "" {
		sortBy = "code"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "un.code"
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

	query := fmt.Sprintf(`SELECT un.id, un.course_id, un.name, un.code, un.credit_hours, un.year_offered, un.semester_offered, un.lecturer_id, un.description, un.active, un.created_at, un.updated_at,
        c.name AS course_name, c.code AS course_code, lu.full_name AS lecturer_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.unit_id = un.id AND e.status = 'ENROLLED') AS enrolled_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)

	var units []models.UnitDetail
	if err := r.db.SelectContext(ctx, &units, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list units: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count units: %w", err)
	}
	return units, total, nil
}

// FindByID fetches a unit by ID.
func (r *UnitRepository) FindByID(ctx context.Context, id string) (*models.Unit, error) {
	const query = `SELECT id, course_id, name, code, credit_hours, year_offered, semester_offered, lecturer_id, description, active, created_at, updated_at FROM units WHERE id = $1`
	var unit models.Unit
	if err := r.db.GetContext(ctx, &unit, query, id); err != nil {
		return nil, err
	}
	return &unit, nil
}

// FindDetailByID fetches a unit with joined display fields.
func (r *UnitRepository) FindDetailByID(ctx context.Context, id string) (*models.UnitDetail, error) {
	const query = `SELECT un.id, un.course_id, un.name, un.code, un.credit_hours, un.year_offered, un.semester_offered, un.lecturer_id, un.description, un.active, un.created_at, un.updated_at,
        c.name AS course_name, c.code AS course_code, lu.full_name AS lecturer_name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.unit_id = un.id AND e.status = 'ENROLLED') AS enrolled_count
        FROM units un
        JOIN courses c ON c.id = un.course_id
        LEFT JOIN lecturers l ON l.id = un.lecturer_id
        LEFT JOIN users lu ON lu.id = l.user_id
        WHERE un.id = $1`
	var detail models.UnitDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByCode checks whether a unit code is already taken.
func (r *UnitRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	query := "SELECT 1 FROM units WHERE LOWER(code) = LOWER($1)"
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check unit code: %w", err)
	}
	return true, nil
}

// Create inserts a new unit record.
func (r *UnitRepository) Create(ctx context.Context, unit *models.Unit) error {
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = now
	}
	unit.UpdatedAt = now
	const query = `INSERT INTO units (id, course_id, name, code, credit_hours, year_offered, semester_offered, lecturer_id, description, active, created_at, updated_at)
        VALUES (:id, :course_id, :name, :code, :credit_hours, :year_offered, :semester_offered, :lecturer_id, :description, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, unit); err != nil {
		return fmt.Errorf("create unit: %w", err)
	}
	return nil
}

// Update modifies an existing unit.
func (r *UnitRepository) Update(ctx context.Context, unit *models.Unit) error {
	unit.UpdatedAt = time.Now().UTC()
	const query = `UPDATE units SET course_id = :course_id, name = :name, code = :code, credit_hours = :credit_hours, year_offered = :year_offered, semester_offered = :semester_offered, lecturer_id = :lecturer_id, description = :description, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, unit); err != nil {
		return fmt.Errorf("update unit: %w", err)
	}
	return nil
}

// Deactivate marks a unit inactive without removing it.
func (r *UnitRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE units SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate unit: %w", err)
	}
	return nil
}

// ListPrerequisites returns the direct prerequisite edges of a unit.
func (r *UnitRepository) ListPrerequisites(ctx context.Context, unitID string) ([]models.UnitPrerequisiteDetail, error) {
	const query = `SELECT p.id, p.unit_id, p.prerequisite_id, p.created_at,
        un.code AS prerequisite_code, un.name AS prerequisite_name, un.credit_hours
        FROM unit_prerequisites p
        JOIN units un ON un.id = p.prerequisite_id
        WHERE p.unit_id = $1
        ORDER BY un.code ASC`
	var prerequisites []models.UnitPrerequisiteDetail
	if err := r.db.SelectContext(ctx, &prerequisites, query, unitID); err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}
	return prerequisites, nil
}

// ListAllEdges returns every prerequisite edge as (unit_id, prerequisite_id)
// pairs. The service walks these to reject edges that would close a cycle.
func (r *UnitRepository) ListAllEdges(ctx context.Context) ([]models.UnitPrerequisite, error) {
	const query = `SELECT id, unit_id, prerequisite_id, created_at FROM unit_prerequisites`
	var edges []models.UnitPrerequisite
	if err := r.db.SelectContext(ctx, &edges, query); err != nil {
		return nil, fmt.Errorf("list prerequisite edges: %w", err)
	}
	return edges, nil
}

// EdgeExists checks whether the directed edge already exists.
func (r *UnitRepository) EdgeExists(ctx context.Context, unitID, prerequisiteID string) (bool, error) {
	const query = `SELECT 1 FROM unit_prerequisites WHERE unit_id = $1 AND prerequisite_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, unitID, prerequisiteID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check prerequisite edge: %w", err)
	}
	return true, nil
}

// AddPrerequisite inserts a prerequisite edge.
func (r *UnitRepository) AddPrerequisite(ctx context.Context, edge *models.UnitPrerequisite) error {
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO unit_prerequisites (id, unit_id, prerequisite_id, created_at) VALUES (:id, :unit_id, :prerequisite_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, edge); err != nil {
		return fmt.Errorf("add prerequisite: %w", err)
	}
	return nil
}

// RemovePrerequisite deletes a prerequisite edge.
func (r *UnitRepository) RemovePrerequisite(ctx context.Context, unitID, prerequisiteID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM unit_prerequisites WHERE unit_id = $1 AND prerequisite_id = $2`, unitID, prerequisiteID); err != nil {
		return fmt.Errorf("remove prerequisite: %w", err)
	}
	return nil
}
