package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-api/internal/models"
)

func rbacRouter(claims *models.JWTClaims, principal *models.Principal, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		if principal != nil {
			c.Set(ContextPrincipalKey, principal)
		}
		c.Next()
	})
	router.GET("/:id", RBAC(allowed...), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestRBACAllowsListedRole(t *testing.T) {
	router := rbacRouter(&models.JWTClaims{UserID: "user-1", Role: models.RoleAdmin}, nil, "ADMIN")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/any", nil))

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRBACRejectsMissingClaims(t *testing.T) {
	router := rbacRouter(nil, nil, "ADMIN")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/any", nil))

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRBACRejectsUnlistedRole(t *testing.T) {
	router := rbacRouter(&models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}, nil, "ADMIN", "TEACHER")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/any", nil))

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRBACSelfMatchesOwnUserID(t *testing.T) {
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}
	router := rbacRouter(claims, nil, "ADMIN", "SELF")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/user-1", nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status for own id: %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/user-2", nil))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status for foreign id: %d", recorder.Code)
	}
}

func TestRBACSelfMatchesPrincipalRecord(t *testing.T) {
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}
	principal := &models.Principal{
		UserID:  "user-1",
		Role:    models.RoleStudent,
		Student: &models.StudentPrincipal{StudentID: "stu-1", RegistrationNumber: "CS/0001/26"},
	}
	router := rbacRouter(claims, principal, "SELF")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/stu-1", nil))

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}

func TestRequireRolesAcceptsTypedRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleTeacher})
		c.Next()
	})
	router.GET("/", RequireRoles(models.RoleAdmin, models.RoleTeacher), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", recorder.Code)
	}
}
