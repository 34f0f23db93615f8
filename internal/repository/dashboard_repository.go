package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-api/internal/models"
)

// DashboardRepository exposes read-optimised aggregate queries for the
// dashboard endpoints.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository instantiates the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// StudentsByStatus buckets the student population by lifecycle status.
func (r *DashboardRepository) StudentsByStatus(ctx context.Context) (map[string]int, error) {
	const query = `SELECT status, COUNT(*) AS cnt FROM students GROUP BY status`
	rows := []struct {
		Status string `db:"status"`
		Count  int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("query students by status: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountPopulation returns headline counts in one round trip.
func (r *DashboardRepository) CountPopulation(ctx context.Context) (*models.PopulationTotals, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM lecturers WHERE active = TRUE) AS lecturers,
        (SELECT COUNT(*) FROM units WHERE active = TRUE) AS units,
        (SELECT COUNT(*) FROM courses WHERE active = TRUE) AS courses,
        (SELECT COUNT(*) FROM faculties) AS faculties,
        (SELECT COUNT(*) FROM departments) AS departments`
	var totals models.PopulationTotals
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return nil, fmt.Errorf("query population totals: %w", err)
	}
	return &totals, nil
}

// CountEnrollments returns the total enrollment rows and those created in
// the trailing window.
func (r *DashboardRepository) CountEnrollments(ctx context.Context, since time.Time) (total int, recent int, err error) {
	const query = `SELECT COUNT(*) AS total,
        COUNT(*) FILTER (WHERE enrolled_at >= $1) AS recent
        FROM enrollments`
	row := struct {
		Total  int `db:"total"`
		Recent int `db:"recent"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, since); err != nil {
		return 0, 0, fmt.Errorf("query enrollment counts: %w", err)
	}
	return row.Total, row.Recent, nil
}

// YearAttendanceCounts aggregates attendance over one academic year. Rate
// handling belongs to the caller; zero recorded marks means no rate.
func (r *DashboardRepository) YearAttendanceCounts(ctx context.Context, yearID string) (sessions int, recorded int, present int, err error) {
	const sessionQuery = `SELECT COUNT(*) FROM attendance_sessions WHERE academic_year_id = $1`
	if err := r.db.GetContext(ctx, &sessions, sessionQuery, yearID); err != nil {
		return 0, 0, 0, fmt.Errorf("query year session count: %w", err)
	}
	const recordQuery = `SELECT COUNT(*) AS recorded,
        COUNT(*) FILTER (WHERE ar.status IN ('PRESENT', 'LATE')) AS present
        FROM attendance_records ar
        JOIN attendance_sessions ats ON ats.id = ar.session_id
        WHERE ats.academic_year_id = $1`
	row := struct {
		Recorded int `db:"recorded"`
		Present  int `db:"present"`
	}{}
	if err := r.db.GetContext(ctx, &row, recordQuery, yearID); err != nil {
		return 0, 0, 0, fmt.Errorf("query year attendance counts: %w", err)
	}
	return sessions, row.Recorded, row.Present, nil
}

// FinalGradeDistribution buckets final grades of one year by letter.
func (r *DashboardRepository) FinalGradeDistribution(ctx context.Context, yearID string) (map[string]int, error) {
	const query = `SELECT letter, COUNT(*) AS cnt FROM grades
        WHERE academic_year_id = $1 AND is_final = TRUE
        GROUP BY letter`
	rows := []struct {
		Letter string `db:"letter"`
		Count  int    `db:"cnt"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, yearID); err != nil {
		return nil, fmt.Errorf("query grade distribution: %w", err)
	}
	buckets := make(map[string]int, len(rows))
	for _, row := range rows {
		buckets[row.Letter] = row.Count
	}
	return buckets, nil
}

// FeeCollection returns the verified sum and the pending payment count for
// one academic year.
func (r *DashboardRepository) FeeCollection(ctx context.Context, yearID string) (verifiedTotal float64, pending int, err error) {
	const query = `SELECT COALESCE(SUM(amount) FILTER (WHERE is_verified = TRUE), 0) AS verified_total,
        COUNT(*) FILTER (WHERE is_verified = FALSE) AS pending
        FROM fee_payments WHERE academic_year_id = $1`
	row := struct {
		VerifiedTotal float64 `db:"verified_total"`
		Pending       int     `db:"pending"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, yearID); err != nil {
		return 0, 0, fmt.Errorf("query fee collection: %w", err)
	}
	return row.VerifiedTotal, row.Pending, nil
}

// CirculationCounts returns the open and overdue loan counts.
func (r *DashboardRepository) CirculationCounts(ctx context.Context, now time.Time) (open int, overdue int, err error) {
	const query = `SELECT COUNT(*) AS open,
        COUNT(*) FILTER (WHERE due_date < $1) AS overdue
        FROM book_borrowings WHERE returned_at IS NULL`
	row := struct {
		Open    int `db:"open"`
		Overdue int `db:"overdue"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, now); err != nil {
		return 0, 0, fmt.Errorf("query circulation counts: %w", err)
	}
	return row.Open, row.Overdue, nil
}

// ListLecturerUnits returns the units a lecturer teaches with enrolled
// counts for one term.
func (r *DashboardRepository) ListLecturerUnits(ctx context.Context, lecturerID, yearID, semesterID string) ([]models.LecturerUnitRow, error) {
	const query = `SELECT un.id, un.code, un.name,
        (SELECT COUNT(*) FROM enrollments e WHERE e.unit_id = un.id AND e.academic_year_id = $2 AND e.semester_id = $3 AND e.status = 'ENROLLED') AS enrolled_count,
        (SELECT COUNT(*) FROM attendance_sessions ats WHERE ats.unit_id = un.id AND ats.academic_year_id = $2 AND ats.semester_id = $3) AS session_count
        FROM units un
        WHERE un.lecturer_id = $1 AND un.active = TRUE
        ORDER BY un.code ASC`
	var rows []models.LecturerUnitRow
	if err := r.db.SelectContext(ctx, &rows, query, lecturerID, yearID, semesterID); err != nil {
		return nil, fmt.Errorf("query lecturer units: %w", err)
	}
	return rows, nil
}

// UngradedCount counts actively enrolled students still missing a final
// grade for one unit offering.
func (r *DashboardRepository) UngradedCount(ctx context.Context, unitID, yearID, semesterID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments e
        WHERE e.unit_id = $1 AND e.academic_year_id = $2 AND e.semester_id = $3 AND e.status = 'ENROLLED'
        AND NOT EXISTS (
            SELECT 1 FROM grades g
            WHERE g.student_id = e.student_id AND g.unit_id = e.unit_id
            AND g.academic_year_id = e.academic_year_id AND g.semester_id = e.semester_id
            AND g.is_final = TRUE)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, unitID, yearID, semesterID); err != nil {
		return 0, fmt.Errorf("query ungraded count: %w", err)
	}
	return count, nil
}

// UnitAttendanceCounts aggregates marks across every session of one unit
// offering.
func (r *DashboardRepository) UnitAttendanceCounts(ctx context.Context, unitID, yearID, semesterID string) (recorded int, present int, err error) {
	const query = `SELECT COUNT(*) AS recorded,
        COUNT(*) FILTER (WHERE ar.status IN ('PRESENT', 'LATE')) AS present
        FROM attendance_records ar
        JOIN attendance_sessions ats ON ats.id = ar.session_id
        WHERE ats.unit_id = $1 AND ats.academic_year_id = $2 AND ats.semester_id = $3`
	row := struct {
		Recorded int `db:"recorded"`
		Present  int `db:"present"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, unitID, yearID, semesterID); err != nil {
		return 0, 0, fmt.Errorf("query unit attendance counts: %w", err)
	}
	return row.Recorded, row.Present, nil
}
