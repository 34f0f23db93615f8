package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/campus-api/internal/dto"
	"github.com/noah-isme/campus-api/internal/middleware"
	"github.com/noah-isme/campus-api/internal/models"
	appErrors "github.com/noah-isme/campus-api/pkg/errors"
)

type fakeDashboardSrv struct {
	adminResp    *dto.AdminDashboardResponse
	adminErr     error
	adminHit     bool
	teacherResp  *dto.TeacherDashboardResponse
	teacherErr   error
	teacherHit   bool
	studentResp  *dto.StudentDashboardResponse
	studentErr   error
	studentHit   bool
	lastLecturer string
	lastStudent  string
}

func (f *fakeDashboardSrv) Admin(context.Context) (*dto.AdminDashboardResponse, bool, error) {
	return f.adminResp, f.adminHit, f.adminErr
}

func (f *fakeDashboardSrv) Teacher(_ context.Context, lecturerID string) (*dto.TeacherDashboardResponse, bool, error) {
	f.lastLecturer = lecturerID
	return f.teacherResp, f.teacherHit, f.teacherErr
}

func (f *fakeDashboardSrv) Student(_ context.Context, studentID string) (*dto.StudentDashboardResponse, bool, error) {
	f.lastStudent = studentID
	return f.studentResp, f.studentHit, f.studentErr
}

func TestDashboardHandlerAdminSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{
		adminResp: &dto.AdminDashboardResponse{
			Calendar:   dto.CalendarContext{AcademicYearID: "y1"},
			Population: dto.AdminPopulationSection{TotalStudents: 100},
		},
		adminHit: true,
	})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/admin", nil)

	handler.Admin(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")
	calendar, ok := envelope.Data["calendar"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "y1", calendar["academic_year_id"])
}

func TestDashboardHandlerAdminServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{adminErr: appErrors.ErrInternal})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/admin", nil)

	handler.Admin(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDashboardHandlerTeacherQueryOverride(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &fakeDashboardSrv{teacherResp: &dto.TeacherDashboardResponse{LecturerID: "lect-9"}}
	handler := NewDashboardHandler(service)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/teacher?lecturerId=lect-9", nil)

	handler.Teacher(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lect-9", service.lastLecturer)
	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Equal(t, "lect-9", envelope.Data["lecturer_id"])
}

func TestDashboardHandlerTeacherFallsBackToPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &fakeDashboardSrv{teacherResp: &dto.TeacherDashboardResponse{LecturerID: "lect-1"}}
	handler := NewDashboardHandler(service)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/teacher", nil)
	c.Set(middleware.ContextPrincipalKey, &models.Principal{
		UserID:   "user-1",
		Role:     models.RoleTeacher,
		Lecturer: &models.LecturerPrincipal{LecturerID: "lect-1", StaffNumber: "STF-001"},
	})

	handler.Teacher(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lect-1", service.lastLecturer)
}

func TestDashboardHandlerTeacherMissingIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/teacher", nil)
	c.Set(middleware.ContextPrincipalKey, &models.Principal{
		UserID:  "user-2",
		Role:    models.RoleStudent,
		Student: &models.StudentPrincipal{StudentID: "stu-1"},
	})

	handler.Teacher(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardHandlerStudentQueryOverride(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &fakeDashboardSrv{studentResp: &dto.StudentDashboardResponse{StudentID: "stu-7"}}
	handler := NewDashboardHandler(service)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/student?studentId=stu-7", nil)

	handler.Student(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stu-7", service.lastStudent)
}

func TestDashboardHandlerStudentFallsBackToPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &fakeDashboardSrv{studentResp: &dto.StudentDashboardResponse{StudentID: "stu-1"}}
	handler := NewDashboardHandler(service)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/student", nil)
	c.Set(middleware.ContextPrincipalKey, &models.Principal{
		UserID:  "user-3",
		Role:    models.RoleStudent,
		Student: &models.StudentPrincipal{StudentID: "stu-1", RegistrationNumber: "CS/0001/26"},
	})

	handler.Student(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stu-1", service.lastStudent)
}

func TestDashboardHandlerStudentMissingIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(&fakeDashboardSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/dashboard/student", nil)

	handler.Student(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type responseEnvelope struct {
	Data map[string]interface{} `json:"data"`
	Meta map[string]interface{} `json:"meta"`
}
