package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-api/api/swagger"
	"github.com/noah-isme/campus-api/internal/handler"
	"github.com/noah-isme/campus-api/internal/middleware"
	"github.com/noah-isme/campus-api/internal/models"
	"github.com/noah-isme/campus-api/internal/repository"
	"github.com/noah-isme/campus-api/internal/service"
	"github.com/noah-isme/campus-api/pkg/cache"
	"github.com/noah-isme/campus-api/pkg/config"
	"github.com/noah-isme/campus-api/pkg/database"
	"github.com/noah-isme/campus-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-api/pkg/storage"
)

// @title Campus API
// @version 1.0.0
// @description University campus management service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	// The cache is an accelerator, not a dependency. A dead redis only
	// costs dashboard latency.
	redisClient, err := cache.NewRedis(cfg.Redis)
	cacheEnabled := err == nil
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	lecturerRepo := repository.NewLecturerRepository(db)
	unitRepo := repository.NewUnitRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	libraryRepo := repository.NewLibraryRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Dashboard.CacheTTL, logr, cacheEnabled)

	authService := service.NewAuthService(userRepo, studentRepo, lecturerRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "campus-api",
	})
	userService := service.NewUserService(userRepo, validate, logr)
	facultyService := service.NewFacultyService(facultyRepo, lecturerRepo, validate, logr)
	courseService := service.NewCourseService(courseRepo, facultyRepo, validate, logr)
	lecturerService := service.NewLecturerService(lecturerRepo, userRepo, facultyRepo, validate, logr)
	studentService := service.NewStudentService(studentRepo, userRepo, courseRepo, validate, logr)
	unitService := service.NewUnitService(unitRepo, courseRepo, lecturerRepo, validate, logr)
	calendarService := service.NewCalendarService(calendarRepo, cacheService, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, studentRepo, unitRepo, calendarRepo, validate, logr)
	gradeService := service.NewGradeService(gradeRepo, enrollmentRepo, studentRepo, validate, logr)
	attendanceService := service.NewAttendanceService(attendanceRepo, enrollmentRepo, unitRepo, cfg.Attendance.LowAttendanceThreshold, validate, logr)
	feeService := service.NewFeeService(feeRepo, studentRepo, courseRepo, calendarRepo, validate, logr)
	libraryService := service.NewLibraryService(libraryRepo, studentRepo, cfg.Library.LoanPeriodDays, cfg.Library.FinePerDay, validate, logr)
	dashboardService := service.NewDashboardService(service.DashboardServiceParams{
		Stats:       dashboardRepo,
		Calendar:    calendarService,
		Enrollments: enrollmentRepo,
		Sessions:    attendanceRepo,
		Attendance:  attendanceService,
		Grades:      gradeService,
		Fees:        feeService,
		Library:     libraryService,
		Cache:       cacheService,
		Logger:      logr,
		Config:      service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})

	fileStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportService := service.NewExportService(gradeService, attendanceService, feeService, unitRepo, fileStore, signer, service.ExportConfig{
		APIPrefix:  cfg.APIPrefix,
		CleanupTTL: cfg.Exports.CleanupTTL,
	}, logr)

	handlers := handlerSet{
		auth:        handler.NewAuthHandler(authService),
		users:       handler.NewUserHandler(userService),
		faculties:   handler.NewFacultyHandler(facultyService),
		courses:     handler.NewCourseHandler(courseService),
		lecturers:   handler.NewLecturerHandler(lecturerService),
		students:    handler.NewStudentHandler(studentService),
		units:       handler.NewUnitHandler(unitService),
		calendar:    handler.NewCalendarHandler(calendarService),
		enrollments: handler.NewEnrollmentHandler(enrollmentService),
		grades:      handler.NewGradeHandler(gradeService),
		attendance:  handler.NewAttendanceHandler(attendanceService),
		fees:        handler.NewFeeHandler(feeService),
		library:     handler.NewLibraryHandler(libraryService),
		dashboard:   handler.NewDashboardHandler(dashboardService),
		exports:     handler.NewExportHandler(exportService),
		metrics:     handler.NewMetricsHandler(metricsService),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", handlers.metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", handlers.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg.APIPrefix, handlers, authService, userRepo)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

type handlerSet struct {
	auth        *handler.AuthHandler
	users       *handler.UserHandler
	faculties   *handler.FacultyHandler
	courses     *handler.CourseHandler
	lecturers   *handler.LecturerHandler
	students    *handler.StudentHandler
	units       *handler.UnitHandler
	calendar    *handler.CalendarHandler
	enrollments *handler.EnrollmentHandler
	grades      *handler.GradeHandler
	attendance  *handler.AttendanceHandler
	fees        *handler.FeeHandler
	library     *handler.LibraryHandler
	dashboard   *handler.DashboardHandler
	exports     *handler.ExportHandler
	metrics     *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, prefix string, h handlerSet, authService *service.AuthService, userRepo *repository.UserRepository) {
	admin := middleware.RBAC("ADMIN")
	staff := middleware.RBAC("ADMIN", "TEACHER")
	adminOrSelf := middleware.RBAC("ADMIN", "SELF")
	staffOrSelf := middleware.RBAC("ADMIN", "TEACHER", "SELF")

	api := r.Group(prefix)

	api.POST("/auth/login", h.auth.Login)
	api.POST("/auth/refresh", h.auth.Refresh)
	// Download links carry their own credential in the signed token.
	api.GET("/exports/download", h.exports.Download)

	authed := api.Group("", middleware.JWT(authService), middleware.Principal(authService))

	authed.POST("/auth/logout", h.auth.Logout)
	authed.POST("/auth/change-password", h.auth.ChangePassword)
	authed.GET("/auth/me", h.auth.Me)

	// User mutations are audited inside the service with old/new payloads,
	// so the route-level audit stays off this group.
	users := authed.Group("/users", admin)
	users.GET("", h.users.List)
	users.GET("/:id", h.users.Get)
	users.POST("", h.users.Create)
	users.PUT("/:id", h.users.Update)
	users.DELETE("/:id", h.users.Delete)

	authed.GET("/faculties", h.faculties.List)
	authed.GET("/faculties/:id", h.faculties.Get)
	authed.POST("/faculties", admin, h.faculties.Create)
	authed.PUT("/faculties/:id", admin, h.faculties.Update)
	authed.DELETE("/faculties/:id", admin, h.faculties.Delete)

	authed.GET("/departments", h.faculties.ListDepartments)
	authed.GET("/departments/:id", h.faculties.GetDepartment)
	authed.POST("/departments", admin, h.faculties.CreateDepartment)
	authed.PUT("/departments/:id", admin, h.faculties.UpdateDepartment)
	authed.DELETE("/departments/:id", admin, h.faculties.DeleteDepartment)

	authed.GET("/courses", h.courses.List)
	authed.GET("/courses/:id", h.courses.Get)
	authed.POST("/courses", admin, h.courses.Create)
	authed.PUT("/courses/:id", admin, h.courses.Update)
	authed.DELETE("/courses/:id", admin, h.courses.Deactivate)

	authed.GET("/lecturers", staff, h.lecturers.List)
	authed.GET("/lecturers/:id", staffOrSelf, h.lecturers.Get)
	authed.POST("/lecturers", admin, h.lecturers.Create)
	authed.PUT("/lecturers/:id", admin, h.lecturers.Update)
	authed.DELETE("/lecturers/:id", admin, h.lecturers.Deactivate)

	authed.GET("/students", staff, h.students.List)
	authed.GET("/students/:id", staffOrSelf, h.students.Get)
	authed.POST("/students", admin, h.students.Create)
	authed.PUT("/students/:id", admin, h.students.Update)
	authed.PATCH("/students/:id/status", admin, middleware.Audit(userRepo, models.AuditActionStudentStatus, "students"), h.students.SetStatus)

	authed.GET("/units", h.units.List)
	authed.GET("/units/:id", h.units.Get)
	authed.POST("/units", admin, h.units.Create)
	authed.PUT("/units/:id", admin, h.units.Update)
	authed.DELETE("/units/:id", admin, h.units.Deactivate)
	authed.GET("/units/:id/prerequisites", h.units.ListPrerequisites)
	authed.POST("/units/:id/prerequisites", admin, h.units.AddPrerequisite)
	authed.DELETE("/units/:id/prerequisites/:prerequisiteId", admin, h.units.RemovePrerequisite)

	authed.GET("/calendar/years", h.calendar.ListYears)
	authed.GET("/calendar/years/:id", h.calendar.GetYear)
	authed.POST("/calendar/years", admin, h.calendar.CreateYear)
	authed.PUT("/calendar/years/:id", admin, h.calendar.UpdateYear)
	authed.POST("/calendar/years/:id/activate", admin, middleware.Audit(userRepo, models.AuditActionYearActivate, "academic_years"), h.calendar.ActivateYear)
	authed.DELETE("/calendar/years/:id", admin, h.calendar.DeleteYear)
	authed.GET("/calendar/years/:id/semesters", h.calendar.ListSemesters)
	authed.GET("/calendar/semesters/:id", h.calendar.GetSemester)
	authed.POST("/calendar/semesters", admin, h.calendar.CreateSemester)
	authed.PUT("/calendar/semesters/:id", admin, h.calendar.UpdateSemester)
	authed.POST("/calendar/semesters/:id/activate", admin, middleware.Audit(userRepo, models.AuditActionSemesterActivate, "semesters"), h.calendar.ActivateSemester)
	authed.DELETE("/calendar/semesters/:id", admin, h.calendar.DeleteSemester)
	authed.GET("/calendar/current", h.calendar.Current)

	authed.GET("/enrollments", staff, h.enrollments.List)
	authed.GET("/enrollments/:id", staff, h.enrollments.Get)
	authed.POST("/enrollments", admin, h.enrollments.Create)
	authed.PATCH("/enrollments/:id/status", admin, h.enrollments.UpdateStatus)
	authed.GET("/units/:id/roster", staff, h.enrollments.Roster)

	authed.GET("/grades", staff, h.grades.List)
	authed.GET("/grades/:id", staff, h.grades.Get)
	authed.POST("/grades", staff, h.grades.Record)
	authed.PUT("/grades/:id", staff, h.grades.Update)
	authed.PATCH("/grades/:id/status", staff, h.grades.SetStatus)
	authed.POST("/grades/:id/resolve", staff, h.grades.Resolve)
	authed.GET("/students/:id/gpa", staffOrSelf, h.grades.GPA)
	authed.GET("/students/:id/transcript", staffOrSelf, h.grades.Transcript)
	authed.GET("/units/:id/grades/report", staff, h.grades.UnitReport)

	authed.GET("/attendance/sessions", staff, h.attendance.ListSessions)
	authed.GET("/attendance/sessions/:id", staff, h.attendance.GetSession)
	authed.POST("/attendance/sessions", staff, h.attendance.CreateSession)
	authed.PUT("/attendance/sessions/:id", staff, h.attendance.UpdateSession)
	authed.DELETE("/attendance/sessions/:id", staff, h.attendance.DeleteSession)
	authed.POST("/attendance/sessions/:id/records", staff, h.attendance.Mark)
	authed.POST("/attendance/sessions/:id/records/bulk", staff, h.attendance.BulkMark)
	authed.GET("/attendance/sessions/:id/records", staff, h.attendance.SessionRecords)
	authed.GET("/attendance/sessions/:id/rate", staff, h.attendance.SessionRate)
	authed.GET("/students/:id/attendance", staffOrSelf, h.attendance.StudentHistory)
	authed.GET("/students/:id/attendance/summary", staffOrSelf, h.attendance.StudentSummary)
	authed.GET("/units/:id/attendance/register", staff, h.attendance.Register)
	authed.GET("/units/:id/attendance/flags", staff, h.attendance.LowAttendance)

	authed.GET("/fees/structures", h.fees.ListStructures)
	authed.GET("/fees/structures/:id", h.fees.GetStructure)
	authed.POST("/fees/structures", admin, h.fees.CreateStructure)
	authed.PUT("/fees/structures/:id", admin, h.fees.UpdateStructure)
	authed.DELETE("/fees/structures/:id", admin, h.fees.DeleteStructure)
	authed.GET("/fees/payments", admin, h.fees.ListPayments)
	authed.GET("/fees/payments/:id", admin, h.fees.GetPayment)
	authed.POST("/fees/payments", admin, h.fees.RecordPayment)
	authed.POST("/fees/payments/:id/verify", admin, middleware.Audit(userRepo, models.AuditActionPaymentVerify, "fee_payments"), h.fees.VerifyPayment)
	authed.POST("/fees/payments/:id/unverify", admin, middleware.Audit(userRepo, models.AuditActionPaymentUnverify, "fee_payments"), h.fees.UnverifyPayment)
	authed.GET("/students/:id/fees/balance", adminOrSelf, h.fees.Balance)
	authed.GET("/students/:id/fees/statement", adminOrSelf, h.fees.Statement)

	authed.GET("/library/books", h.library.ListBooks)
	authed.GET("/library/books/:id", h.library.GetBook)
	authed.POST("/library/books", admin, h.library.CreateBook)
	authed.PUT("/library/books/:id", admin, h.library.UpdateBook)
	authed.DELETE("/library/books/:id", admin, h.library.DeactivateBook)
	authed.GET("/library/borrowings", staff, h.library.ListBorrowings)
	authed.POST("/library/borrowings", admin, h.library.Borrow)
	authed.POST("/library/borrowings/:id/return", admin, h.library.Return)
	authed.POST("/library/borrowings/:id/fine", admin, h.library.PayFine)
	authed.GET("/students/:id/borrowings", adminOrSelf, h.library.StudentBorrowings)

	dashboards := authed.Group("/dashboard", middleware.WithResponseMeta())
	dashboards.GET("/admin", admin, h.dashboard.Admin)
	dashboards.GET("/teacher", staff, h.dashboard.Teacher)
	dashboards.GET("/student", middleware.RBAC("ADMIN", "STUDENT"), h.dashboard.Student)

	authed.POST("/exports/transcript/:id", staffOrSelf, h.exports.Transcript)
	authed.POST("/exports/register/:id", staff, h.exports.Register)
	authed.POST("/exports/statement/:id", adminOrSelf, h.exports.Statement)

	authed.GET("/metrics/snapshot", admin, h.metrics.Snapshot)
}
