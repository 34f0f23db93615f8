package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
	"github.com/noah-isme/campus-api/pkg/export"
	"github.com/noah-isme/campus-api/pkg/storage"
)

type exportTranscriptProvider interface {
	Transcript(ctx context.Context, studentID string) (*models.Transcript, error)
}

type exportRegisterProvider interface {
	UnitRegister(ctx context.Context, unitID, yearID, semesterID string) ([]models.UnitRegisterRow, error)
}

type exportStatementProvider interface {
	Statement(ctx context.Context, studentID, yearID string) (*models.FeeStatement, error)
}

type exportUnitReader interface {
	FindByID(ctx context.Context, id string) (*models.Unit, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix  string
	CleanupTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders reports synchronously and hands them out through
// short-lived signed download links.
type ExportService struct {
	grades     exportTranscriptProvider
	attendance exportRegisterProvider
	fees       exportStatementProvider
	units      exportUnitReader
	storage    fileStorage
	csv        csvRenderer
	pdf        pdfRenderer
	signer     *storage.SignedURLSigner
	logger     *zap.Logger
	cfg        ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(grades exportTranscriptProvider, attendance exportRegisterProvider, fees exportStatementProvider, units exportUnitReader, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CleanupTTL <= 0 {
		cfg.CleanupTTL = 24 * time.Hour
	}
	return &ExportService{
		grades:     grades,
		attendance: attendance,
		fees:       fees,
		units:      units,
		storage:    files,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		signer:     signer,
		logger:     logger,
		cfg:        cfg,
	}
}

// StudentTranscript renders the student's transcript as PDF or CSV.
func (s *ExportService) StudentTranscript(ctx context.Context, studentID string, format models.ExportFormat) (*ExportResult, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	transcript, err := s.grades.Transcript(ctx, studentID)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(transcript.Rows)+1)
	for _, row := range transcript.Rows {
		rows = append(rows, map[string]string{
			"Unit Code": row.UnitCode,
			"Unit Name": row.UnitName,
			"Credits":   fmt.Sprintf("%d", row.CreditHours),
			"Marks":     fmt.Sprintf("%.2f", row.Marks),
			"Grade":     string(row.Letter),
			"Points":    fmt.Sprintf("%.2f", row.Points),
			"Year":      row.YearName,
			"Semester":  fmt.Sprintf("%d", row.Semester),
		})
	}
	rows = append(rows, map[string]string{
		"Unit Name": "Cumulative GPA",
		"Points":    fmt.Sprintf("%.2f", transcript.GPA),
	})
	dataset := export.Dataset{
		Headers: []string{"Unit Code", "Unit Name", "Credits", "Marks", "Grade", "Points", "Year", "Semester"},
		Rows:    rows,
		Meta: []string{
			fmt.Sprintf("Student: %s (%s)", transcript.StudentName, transcript.RegNumber),
			fmt.Sprintf("Programme: %s", transcript.CourseName),
		},
	}

	var payload []byte
	switch format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, fmt.Sprintf("Academic Transcript %s", transcript.RegNumber))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript")
	}

	filename := fmt.Sprintf("transcript_%s_%s.%s", sanitizeFilename(transcript.RegNumber), exportTimestamp(), format)
	return s.store(filename, payload, format)
}

// AttendanceRegister renders the per-student register of one unit offering
// as CSV.
func (s *ExportService) AttendanceRegister(ctx context.Context, unitID, yearID, semesterID string) (*ExportResult, error) {
	unit, err := s.units.FindByID(ctx, unitID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	register, err := s.attendance.UnitRegister(ctx, unitID, yearID, semesterID)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(register))
	for _, row := range register {
		rows = append(rows, map[string]string{
			"Reg Number":     row.RegNumber,
			"Student Name":   row.StudentName,
			"Attended":       fmt.Sprintf("%d", row.Attended),
			"Total Sessions": fmt.Sprintf("%d", row.TotalSessions),
			"Attendance (%)": fmt.Sprintf("%.2f", row.Percentage),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Reg Number", "Student Name", "Attended", "Total Sessions", "Attendance (%)"},
		Rows:    rows,
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render register")
	}

	filename := fmt.Sprintf("register_%s_%s.csv", sanitizeFilename(unit.Code), exportTimestamp())
	return s.store(filename, payload, models.ExportFormatCSV)
}

// FeeStatement renders the student's fee standing for one academic year as
// PDF.
func (s *ExportService) FeeStatement(ctx context.Context, studentID, yearID string) (*ExportResult, error) {
	statement, err := s.fees.Statement(ctx, studentID, yearID)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(statement.Payments)+3)
	for _, payment := range statement.Payments {
		verified := "NO"
		if payment.IsVerified {
			verified = "YES"
		}
		rows = append(rows, map[string]string{
			"Receipt":   payment.ReceiptNumber,
			"Date":      payment.PaymentDate.Format("2006-01-02"),
			"Method":    string(payment.PaymentMethod),
			"Reference": payment.ReferenceNumber,
			"Amount":    fmt.Sprintf("%.2f", payment.Amount),
			"Verified":  verified,
		})
	}
	rows = append(rows,
		map[string]string{"Reference": "Total Fee", "Amount": fmt.Sprintf("%.2f", statement.Balance.TotalFee)},
		map[string]string{"Reference": "Total Paid", "Amount": fmt.Sprintf("%.2f", statement.Balance.TotalPaid)},
		map[string]string{"Reference": "Balance", "Amount": fmt.Sprintf("%.2f", statement.Balance.Balance)},
	)
	dataset := export.Dataset{
		Headers: []string{"Receipt", "Date", "Method", "Reference", "Amount", "Verified"},
		Rows:    rows,
		Meta: []string{
			fmt.Sprintf("Student: %s (%s)", statement.Student.FullName, statement.Student.RegistrationNumber),
			fmt.Sprintf("Programme: %s", statement.Student.CourseName),
		},
	}
	payload, err := s.pdf.Render(dataset, fmt.Sprintf("Fee Statement %s", statement.Student.RegistrationNumber))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}

	filename := fmt.Sprintf("statement_%s_%s.pdf", sanitizeFilename(statement.Student.RegistrationNumber), exportTimestamp())
	return s.store(filename, payload, models.ExportFormatPDF)
}

// ResolveDownload validates a signed token and returns the stored file path.
// Expired links map to unauthorized, tampered ones to forbidden.
func (s *ExportService) ResolveDownload(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return "", appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return "", appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	return relPath, nil
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

func (s *ExportService) store(filename string, payload []byte, format models.ExportFormat) (*ExportResult, error) {
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(uuid.NewString(), relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	// Stale files are swept opportunistically; there is no background worker.
	if removed, err := s.storage.CleanupOlderThan(s.cfg.CleanupTTL); err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download?token=%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

func exportTimestamp() string {
	return time.Now().UTC().Format("20060102_150405")
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
