package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAttendanceRepositoryUpsertRecord(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	markedBy := "lect-1"
	rows := sqlmock.NewRows([]string{"id", "session_id", "student_id", "status", "remarks", "marked_by", "created_at", "updated_at"}).
		AddRow("rec-1", "sess-1", "stu-1", models.AttendanceStatusPresent, nil, "lect-1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnRows(rows)

	stored, err := repo.UpsertRecord(context.Background(), &models.AttendanceRecord{
		SessionID: "sess-1",
		StudentID: "stu-1",
		Status:    models.AttendanceStatusPresent,
		MarkedBy:  &markedBy,
	})
	require.NoError(t, err)
	require.Equal(t, "rec-1", stored.ID)
	require.Equal(t, models.AttendanceStatusPresent, stored.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryBulkUpsertRecords(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	markedBy := "lect-1"
	records := []models.AttendanceRecord{
		{SessionID: "sess-1", StudentID: "stu-1", Status: models.AttendanceStatusPresent, MarkedBy: &markedBy},
		{SessionID: "sess-1", StudentID: "stu-2", Status: models.AttendanceStatusAbsent, MarkedBy: &markedBy},
	}
	require.NoError(t, repo.BulkUpsertRecords(context.Background(), records))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryDeleteSessionCascades(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance_records WHERE session_id = $1")).
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM attendance_sessions WHERE id = $1")).
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteSession(context.Background(), "sess-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositorySessionCounts(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	rows := sqlmock.NewRows([]string{"recorded", "present"}).AddRow(10, 7)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS recorded")).
		WithArgs("sess-1").
		WillReturnRows(rows)

	recorded, present, err := repo.SessionCounts(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, 10, recorded)
	require.Equal(t, 7, present)
	require.NoError(t, mock.ExpectationsWereMet())
}
