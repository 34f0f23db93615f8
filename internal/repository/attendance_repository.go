package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-api/internal/models"
)

// AttendanceRepository handles persistence for sessions and attendance marks.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// ListSessions returns sessions matching the provided filter.
func (r *AttendanceRepository) ListSessions(ctx context.Context, filter models.AttendanceSessionFilter) ([]models.AttendanceSessionDetail, int, error) {
	base := `FROM attendance_sessions ats
JOIN units un ON un.id = ats.unit_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.UnitID != "" {
		where = append(where, fmt.Sprintf("ats.unit_id = $%d", len(args)+1))
		args = append(args, filter.UnitID)
	}
	if filter.AcademicYearID != "" {
		where = append(where, fmt.Sprintf("ats.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.SemesterID != "" {
		where = append(where, fmt.Sprintf("ats.semester_id = $%d", len(args)+1))
		args = append(args, filter.SemesterID)
	}
	if filter.SessionType != "" {
		where = append(where, fmt.Sprintf("ats.session_type = $%d", len(args)+1))
		args = append(args, filter.SessionType)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("ats.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("ats.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"date":        "ats.date",
		"week_number": "ats.week_number",
		"created_at":  "ats.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "date"
	}
	sortColumn, ok := allowedSort[sortBy]
	if !ok {
		sortColumn = "ats.date"
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

	query := fmt.Sprintf(`SELECT ats.id, ats.unit_id, ats.academic_year_id, ats.semester_id, ats.date, ats.start_time, ats.end_time,
        ats.week_number, ats.session_type, ats.topic, ats.created_by, ats.created_at, ats.updated_at,
        un.code AS unit_code, un.name AS unit_name
        %s WHERE %s
        ORDER BY %s %s
        LIMIT %d OFFSET %d`, base, whereClause, sortColumn, order, size, offset)

	var sessions []models.AttendanceSessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// FindSessionByID returns a session by its ID.
func (r *AttendanceRepository) FindSessionByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	const query = `SELECT id, unit_id, academic_year_id, semester_id, date, start_time, end_time, week_number, session_type, topic, created_by, created_at, updated_at
        FROM attendance_sessions WHERE id = $1`
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateSession persists a new teaching session.
func (r *AttendanceRepository) CreateSession(ctx context.Context, session *models.AttendanceSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	const query = `INSERT INTO attendance_sessions (id, unit_id, academic_year_id, semester_id, date, start_time, end_time, week_number, session_type, topic, created_by, created_at, updated_at)
        VALUES (:id, :unit_id, :academic_year_id, :semester_id, :date, :start_time, :end_time, :week_number, :session_type, :topic, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateSession rewrites the mutable fields of a session.
func (r *AttendanceRepository) UpdateSession(ctx context.Context, session *models.AttendanceSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendance_sessions SET date = :date, start_time = :start_time, end_time = :end_time,
        week_number = :week_number, session_type = :session_type, topic = :topic, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// DeleteSession removes a session and its attendance marks.
func (r *AttendanceRepository) DeleteSession(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM attendance_records WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("delete session records: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM attendance_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete session: %w", err)
	}
	return nil
}

// CountSessions returns the number of held sessions for a unit offering.
func (r *AttendanceRepository) CountSessions(ctx context.Context, unitID, yearID, semesterID string) (int, error) {
	const query = `SELECT COUNT(*) FROM attendance_sessions WHERE unit_id = $1 AND academic_year_id = $2 AND semester_id = $3`
	var total int
	if err := r.db.GetContext(ctx, &total, query, unitID, yearID, semesterID); err != nil {
		return 0, fmt.Errorf("count unit sessions: %w", err)
	}
	return total, nil
}

// UpsertRecord inserts or updates a student's mark for a session. Marking
// twice rewrites the stored status instead of failing.
func (r *AttendanceRepository) UpsertRecord(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	const query = `INSERT INTO attendance_records (id, session_id, student_id, status, remarks, marked_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id, student_id)
DO UPDATE SET status = EXCLUDED.status, remarks = EXCLUDED.remarks, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at
RETURNING id, session_id, student_id, status, remarks, marked_by, created_at, updated_at`
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, query, record.ID, record.SessionID, record.StudentID, record.Status, record.Remarks, record.MarkedBy, record.CreatedAt, record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance record: %w", err)
	}
	return &stored, nil
}

// BulkUpsertRecords writes many marks in one transaction.
func (r *AttendanceRepository) BulkUpsertRecords(ctx context.Context, records []models.AttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk attendance: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()
	const query = `INSERT INTO attendance_records (id, session_id, student_id, status, remarks, marked_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (session_id, student_id)
DO UPDATE SET status = EXCLUDED.status, remarks = EXCLUDED.remarks, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, query, rec.ID, rec.SessionID, rec.StudentID, rec.Status, rec.Remarks, rec.MarkedBy, rec.CreatedAt, rec.UpdatedAt); err != nil {
			return fmt.Errorf("bulk upsert attendance: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk attendance: %w", err)
	}
	commit = true
	return nil
}

// ListRecordsBySession returns the marks of one session with student names.
func (r *AttendanceRepository) ListRecordsBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	const query = `SELECT ar.id, ar.session_id, ar.student_id, ar.status, ar.remarks, ar.marked_by, ar.created_at, ar.updated_at,
        su.full_name AS student_name, s.registration_number AS reg_number
        FROM attendance_records ar
        JOIN students s ON s.id = ar.student_id
        JOIN users su ON su.id = s.user_id
        WHERE ar.session_id = $1
        ORDER BY su.full_name ASC`
	var records []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session records: %w", err)
	}
	return records, nil
}

// SessionCounts returns the recorded and attended mark counts of a session.
func (r *AttendanceRepository) SessionCounts(ctx context.Context, sessionID string) (recorded int, present int, err error) {
	const query = `SELECT COUNT(*) AS recorded,
        COUNT(*) FILTER (WHERE status IN ('PRESENT', 'LATE')) AS present
        FROM attendance_records WHERE session_id = $1`
	row := struct {
		Recorded int `db:"recorded"`
		Present  int `db:"present"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, sessionID); err != nil {
		return 0, 0, fmt.Errorf("session counts: %w", err)
	}
	return row.Recorded, row.Present, nil
}

// CountAttendedByStudent returns how many sessions of the unit offering the
// student attended.
func (r *AttendanceRepository) CountAttendedByStudent(ctx context.Context, studentID, unitID, yearID, semesterID string) (int, error) {
	const query = `SELECT COUNT(*) FROM attendance_records ar
        JOIN attendance_sessions ats ON ats.id = ar.session_id
        WHERE ar.student_id = $1 AND ats.unit_id = $2 AND ats.academic_year_id = $3 AND ats.semester_id = $4
        AND ar.status IN ('PRESENT', 'LATE')`
	var attended int
	if err := r.db.GetContext(ctx, &attended, query, studentID, unitID, yearID, semesterID); err != nil {
		return 0, fmt.Errorf("count attended: %w", err)
	}
	return attended, nil
}

// AttendedCountsByUnit returns per-student attended counts for a unit
// offering, keyed by student ID.
func (r *AttendanceRepository) AttendedCountsByUnit(ctx context.Context, unitID, yearID, semesterID string) (map[string]int, error) {
	const query = `SELECT ar.student_id, COUNT(*) AS attended
        FROM attendance_records ar
        JOIN attendance_sessions ats ON ats.id = ar.session_id
        WHERE ats.unit_id = $1 AND ats.academic_year_id = $2 AND ats.semester_id = $3
        AND ar.status IN ('PRESENT', 'LATE')
        GROUP BY ar.student_id`
	rows := []struct {
		StudentID string `db:"student_id"`
		Attended  int    `db:"attended"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, unitID, yearID, semesterID); err != nil {
		return nil, fmt.Errorf("attended counts: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.StudentID] = row.Attended
	}
	return counts, nil
}

// StudentHistory returns a student's marks across a unit offering.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID, unitID, yearID, semesterID string) ([]models.AttendanceRecordDetail, error) {
	const query = `SELECT ar.id, ar.session_id, ar.student_id, ar.status, ar.remarks, ar.marked_by, ar.created_at, ar.updated_at,
        su.full_name AS student_name, s.registration_number AS reg_number
        FROM attendance_records ar
        JOIN attendance_sessions ats ON ats.id = ar.session_id
        JOIN students s ON s.id = ar.student_id
        JOIN users su ON su.id = s.user_id
        WHERE ar.student_id = $1 AND ats.unit_id = $2 AND ats.academic_year_id = $3 AND ats.semester_id = $4
        ORDER BY ats.date ASC`
	var records []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, studentID, unitID, yearID, semesterID); err != nil {
		return nil, fmt.Errorf("student attendance history: %w", err)
	}
	return records, nil
}

// ListUpcomingForStudent returns sessions of the student's enrolled units
// scheduled within the coming days.
func (r *AttendanceRepository) ListUpcomingForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceSessionDetail, error) {
	const query = `SELECT ats.id, ats.unit_id, ats.academic_year_id, ats.semester_id, ats.date, ats.start_time, ats.end_time,
        ats.week_number, ats.session_type, ats.topic, ats.created_by, ats.created_at, ats.updated_at,
        un.code AS unit_code, un.name AS unit_name
        FROM attendance_sessions ats
        JOIN units un ON un.id = ats.unit_id
        JOIN enrollments e ON e.unit_id = ats.unit_id
            AND e.academic_year_id = ats.academic_year_id
            AND e.semester_id = ats.semester_id
        WHERE e.student_id = $1 AND e.status = 'ENROLLED' AND ats.date >= $2 AND ats.date <= $3
        ORDER BY ats.date ASC, ats.start_time ASC`
	var sessions []models.AttendanceSessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, studentID, from, to); err != nil {
		return nil, fmt.Errorf("list upcoming sessions: %w", err)
	}
	return sessions, nil
}

// ListRecentByLecturer returns the latest sessions of units taught by the
// lecturer within the term.
func (r *AttendanceRepository) ListRecentByLecturer(ctx context.Context, lecturerID, yearID, semesterID string, limit int) ([]models.AttendanceSessionDetail, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`SELECT ats.id, ats.unit_id, ats.academic_year_id, ats.semester_id, ats.date, ats.start_time, ats.end_time,
        ats.week_number, ats.session_type, ats.topic, ats.created_by, ats.created_at, ats.updated_at,
        un.code AS unit_code, un.name AS unit_name
        FROM attendance_sessions ats
        JOIN units un ON un.id = ats.unit_id
        WHERE un.lecturer_id = $1 AND ats.academic_year_id = $2 AND ats.semester_id = $3
        ORDER BY ats.date DESC, ats.start_time DESC
        LIMIT %d`, limit)
	var sessions []models.AttendanceSessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, lecturerID, yearID, semesterID); err != nil {
		return nil, fmt.Errorf("list recent sessions: %w", err)
	}
	return sessions, nil
}
