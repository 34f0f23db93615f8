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

func newStudentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "registration_number", "course_id", "year_of_study", "admission_date", "status",
		"phone", "address", "guardian_name", "guardian_phone", "created_at", "updated_at",
		"full_name", "email", "course_name", "course_code",
	}).AddRow(
		"stu-1", "user-1", "SCT-001-2026", "course-1", 2, now, models.StudentStatusActive,
		"", "", "", "", now, now,
		"Jane Wanjiku", "jane@campus.local", "BSc Computer Science", "BSC-CS",
	)
	mock.ExpectQuery("SELECT s.id, s.user_id, s.registration_number").
		WithArgs("stu-1").
		WillReturnRows(rows)

	detail, err := repo.FindByID(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Equal(t, "SCT-001-2026", detail.RegistrationNumber)
	require.Equal(t, "Jane Wanjiku", detail.FullName)
	require.Equal(t, "BSC-CS", detail.CourseCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByRegistrationNumberExcludes(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE registration_number = $1 AND id <> $2 LIMIT 1")).
		WithArgs("SCT-001-2026", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsByRegistrationNumber(context.Background(), "SCT-001-2026", "stu-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySetStatus(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("stu-1", models.StudentStatusGraduated, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetStatus(context.Background(), "stu-1", models.StudentStatusGraduated))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO students")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{
		UserID:             "user-1",
		RegistrationNumber: "SCT-002-2026",
		CourseID:           "course-1",
		YearOfStudy:        1,
		AdmissionDate:      time.Now(),
		Status:             models.StudentStatusActive,
	}
	require.NoError(t, repo.Create(context.Background(), student))
	require.NotEmpty(t, student.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
