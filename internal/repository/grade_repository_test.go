package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-api/internal/models"
)

func newGradeRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestGradeRepositoryExists(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM grades")).
		WithArgs("stu-1", "unit-1", "year-1", "sem-1", models.AssessmentFinalExam).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.Exists(context.Background(), "stu-1", "unit-1", "year-1", "sem-1", models.AssessmentFinalExam)
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositorySetLetter(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE grades SET letter = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("grade-1", models.GradeI, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetLetter(context.Background(), "grade-1", models.GradeI))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryListFinalByStudent(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{"unit_code", "unit_name", "credit_hours", "marks", "letter", "year_name", "semester"}).
		AddRow("CS101", "Introduction to Programming", 4, 78.5, models.GradeA, "2026/2027", 1).
		AddRow("CS102", "Data Structures", 4, 63.0, models.GradeB, "2026/2027", 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT un.code AS unit_code, un.name AS unit_name, un.credit_hours, g.marks, g.letter")).
		WithArgs("stu-1").
		WillReturnRows(rows)

	transcript, err := repo.ListFinalByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	require.Equal(t, "CS101", transcript[0].UnitCode)
	require.Equal(t, models.GradeB, transcript[1].Letter)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newGradeRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	grade := &models.Grade{
		StudentID:      "stu-1",
		UnitID:         "unit-1",
		AcademicYearID: "year-1",
		SemesterID:     "sem-1",
		Assessment:     models.AssessmentCAT,
		Marks:          24,
		Letter:         models.GradeA,
	}
	require.NoError(t, repo.Create(context.Background(), grade))
	require.NotEmpty(t, grade.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
