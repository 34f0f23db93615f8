package service

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
	"github.com/noah-isme/campus-api/pkg/storage"
)

type exportGradeStub struct {
	transcript *models.Transcript
}

func (g *exportGradeStub) Transcript(ctx context.Context, studentID string) (*models.Transcript, error) {
	return g.transcript, nil
}

type exportAttendanceStub struct {
	rows []models.UnitRegisterRow
}

func (a *exportAttendanceStub) UnitRegister(ctx context.Context, unitID, yearID, semesterID string) ([]models.UnitRegisterRow, error) {
	return a.rows, nil
}

type exportFeeStub struct {
	statement *models.FeeStatement
}

func (f *exportFeeStub) Statement(ctx context.Context, studentID, yearID string) (*models.FeeStatement, error) {
	return f.statement, nil
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	grades := &exportGradeStub{transcript: &models.Transcript{
		StudentID:   "stu-1",
		StudentName: "Jane Wanjiku",
		RegNumber:   "CS/0001/26",
		CourseName:  "BSc Computer Science",
		Rows: []models.TranscriptRow{
			{UnitCode: "CS101", UnitName: "Introduction to Programming", CreditHours: 4, Marks: 72, Letter: models.GradeA, Points: 5, YearName: "2026/2027", Semester: 1},
			{UnitCode: "CS102", UnitName: "Discrete Mathematics", CreditHours: 3, Marks: 64, Letter: models.GradeB, Points: 4, YearName: "2026/2027", Semester: 1},
		},
		GPA: 4.57,
	}}
	attendance := &exportAttendanceStub{rows: []models.UnitRegisterRow{
		{StudentID: "stu-1", StudentName: "Jane Wanjiku", RegNumber: "CS/0001/26", Attended: 10, TotalSessions: 12, Percentage: 83.33},
	}}
	paid := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	fees := &exportFeeStub{statement: &models.FeeStatement{
		Student: models.StudentDetail{
			Student:  models.Student{ID: "stu-1", RegistrationNumber: "CS/0001/26"},
			FullName: "Jane Wanjiku",
		},
		Balance: models.FeeBalance{TotalFee: 138000, TotalPaid: 90000, Balance: 48000},
		Payments: []models.FeePaymentDetail{
			{FeePayment: models.FeePayment{ReceiptNumber: "RCP20260820AB12CD", PaymentDate: paid, PaymentMethod: models.PaymentMethodCash, ReferenceNumber: "REF-001", Amount: 90000, IsVerified: true}},
		},
	}}
	units := &mockUnitReader{units: map[string]*models.Unit{
		"u1": {ID: "u1", CourseID: "c1", Code: "CS101", Name: "Introduction to Programming", CreditHours: 4},
	}}
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(grades, attendance, fees, units, store, signer, ExportConfig{APIPrefix: "/api/v1", CleanupTTL: time.Hour}, zap.NewNop())
	return svc, store
}

func TestExportServiceTranscriptCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	result, err := svc.StudentTranscript(context.Background(), "stu-1", models.ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatCSV, result.Format)
	assert.True(t, strings.HasPrefix(result.RelativePath, "transcript_CS-0001-26_"))
	assert.True(t, strings.HasSuffix(result.RelativePath, ".csv"))
	assert.Contains(t, result.URL, "/api/v1/exports/download?token=")
	assert.True(t, result.ExpiresAt.After(time.Now()))

	data, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Unit Code")
	assert.Contains(t, content, "CS101")
	assert.Contains(t, content, "Cumulative GPA")
	assert.Contains(t, content, "4.57")
}

func TestExportServiceTranscriptPDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	result, err := svc.StudentTranscript(context.Background(), "stu-1", models.ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatPDF, result.Format)
	assert.True(t, strings.HasSuffix(result.RelativePath, ".pdf"))

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportServiceTranscriptRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	_, err := svc.StudentTranscript(context.Background(), "stu-1", models.ExportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportServiceAttendanceRegister(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	result, err := svc.AttendanceRegister(context.Background(), "u1", "y1", "sem-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatCSV, result.Format)
	assert.True(t, strings.HasPrefix(result.RelativePath, "register_CS101_"))

	data, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "CS/0001/26")
	assert.Contains(t, content, "83.33")
}

func TestExportServiceAttendanceRegisterUnknownUnit(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	_, err := svc.AttendanceRegister(context.Background(), "nope", "y1", "sem-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportServiceFeeStatementPDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	result, err := svc.FeeStatement(context.Background(), "stu-1", "y1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatPDF, result.Format)
	assert.True(t, strings.HasPrefix(result.RelativePath, "statement_CS-0001-26_"))

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportServiceResolveDownload(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	result, err := svc.StudentTranscript(context.Background(), "stu-1", models.ExportFormatCSV)
	require.NoError(t, err)

	relPath, err := svc.ResolveDownload(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.RelativePath, relPath)

	file, err := svc.Open(relPath)
	require.NoError(t, err)
	require.NoError(t, file.Close())
}

func TestExportServiceResolveDownloadExpired(t *testing.T) {
	signer := storage.NewSignedURLSigner("secret", time.Millisecond*10)
	token, _, err := signer.Generate("exp-1", "exports/transcript.csv")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 20)

	svc := NewExportService(nil, nil, nil, nil, nil, signer, ExportConfig{}, zap.NewNop())
	_, err = svc.ResolveDownload(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestExportServiceResolveDownloadTampered(t *testing.T) {
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("exp-1", "exports/transcript.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "exp-2"

	svc := NewExportService(nil, nil, nil, nil, nil, signer, ExportConfig{}, zap.NewNop())
	_, err = svc.ResolveDownload(strings.Join(parts, "."))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportServiceSweepsStaleFiles(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	stale, err := store.Save("stale_report.csv", []byte("old"))
	require.NoError(t, err)
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path(stale), old, old))

	result, err := svc.StudentTranscript(context.Background(), "stu-1", models.ExportFormatCSV)
	require.NoError(t, err)

	_, err = os.Stat(store.Path(stale))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(store.Path(result.RelativePath))
	assert.NoError(t, err)
}
