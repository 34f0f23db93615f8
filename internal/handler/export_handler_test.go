package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-api/internal/service"
	"github.com/noah-isme/campus-api/pkg/storage"
)

func newExportHandlerForTest(t *testing.T, ttl time.Duration) (*ExportHandler, *storage.LocalStorage, *storage.SignedURLSigner) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to prepare storage: %v", err)
	}
	signer := storage.NewSignedURLSigner("handler-secret", ttl)
	svc := service.NewExportService(nil, nil, nil, nil, store, signer, service.ExportConfig{APIPrefix: "/api/v1", CleanupTTL: time.Hour}, zap.NewNop())
	return NewExportHandler(svc), store, signer
}

func TestExportHandlerDownloadStreamsFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, store, signer := newExportHandlerForTest(t, time.Hour)

	relPath, err := store.Save("register_CS101_20260825_090000.csv", []byte("Reg Number,Attendance (%)\nCS/0001/26,83.33\n"))
	assert.NoError(t, err)
	token, _, err := signer.Generate("dl-1", relPath)
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download?token="+token, nil)

	handler.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "register_CS101_20260825_090000.csv")
	assert.Contains(t, rec.Body.String(), "CS/0001/26")
}

func TestExportHandlerDownloadRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newExportHandlerForTest(t, time.Hour)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download", nil)

	handler.Download(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportHandlerDownloadExpiredLink(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, store, signer := newExportHandlerForTest(t, 10*time.Millisecond)

	relPath, err := store.Save("statement_old.pdf", []byte("%PDF-1.4"))
	assert.NoError(t, err)
	token, _, err := signer.Generate("dl-2", relPath)
	assert.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download?token="+token, nil)

	handler.Download(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExportHandlerDownloadTamperedToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, store, signer := newExportHandlerForTest(t, time.Hour)

	relPath, err := store.Save("transcript_x.csv", []byte("Unit Code\nCS101\n"))
	assert.NoError(t, err)
	token, _, err := signer.Generate("dl-3", relPath)
	assert.NoError(t, err)
	parts := strings.Split(token, ".")
	parts[0] = "dl-other"
	tampered := strings.Join(parts, ".")

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download?token="+tampered, nil)

	handler.Download(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExportHandlerDownloadMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, signer := newExportHandlerForTest(t, time.Hour)

	// Signature is genuine but the file was already swept.
	token, _, err := signer.Generate("dl-4", "register_gone.csv")
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/download?token="+token, nil)

	handler.Download(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportHandlerRegisterRequiresTerm(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newExportHandlerForTest(t, time.Hour)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/exports/register/u1", nil)
	c.Params = gin.Params{{Key: "id", Value: "u1"}}

	handler.Register(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
