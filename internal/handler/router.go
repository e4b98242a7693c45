package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/middleware"
	"github.com/noah-isme/scholarship-api/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth         *AuthHandler
	Users        *UserHandler
	Scholarships *ScholarshipHandler
	Applications *ApplicationHandler
	Documents    *DocumentHandler
	Interviews   *InterviewHandler
	Stipends     *StipendHandler
	Reports      *ReportHandler
	Metrics      *MetricsHandler
}

// RouterDeps carries the cross-cutting collaborators of the route table.
type RouterDeps struct {
	Tokens middleware.TokenValidator
	Audit  middleware.AuditWriter
	Logger *zap.Logger
}

// RegisterRoutes mounts the scholarship API on api.
func RegisterRoutes(api gin.IRouter, h Handlers, deps RouterDeps) {
	api.Use(middleware.WithResponseMeta(), middleware.UUIDParams())

	auth := api.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)

	// Signed links carry their own authorisation.
	api.GET("/documents/:id/file", h.Documents.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.Tokens))

	secured.POST("/auth/logout", h.Auth.Logout)
	secured.GET("/auth/me", h.Auth.Me)

	staff := middleware.RequireStaff()
	admin := middleware.RequireRoles(models.RoleAdmin)
	student := middleware.RequireRoles(models.RoleStudent)

	users := secured.Group("/users")
	users.GET("", staff, h.Users.List)
	users.POST("", admin, h.Users.CreateStaff)
	users.GET("/:id", staff, h.Users.Get)

	students := secured.Group("/students")
	students.GET("/:id", h.Users.Profile)
	students.GET("/:id/grades", h.Users.Grades)
	students.PUT("/:id/academic-record", staff, h.Users.UpdateAcademicRecord)

	scholarships := secured.Group("/scholarships")
	scholarships.GET("", h.Scholarships.List)
	scholarships.POST("", admin, h.Scholarships.Create)
	scholarships.GET("/:id", h.Scholarships.Get)
	scholarships.PUT("/:id", admin, h.Scholarships.Update)
	scholarships.PATCH("/:id/status", admin, h.Scholarships.SetStatus)
	scholarships.GET("/:id/eligibility", h.Scholarships.Eligibility)

	applications := secured.Group("/applications")
	applications.GET("", h.Applications.List)
	applications.POST("", student, h.Applications.Apply)
	applications.GET("/:id", h.Applications.Get)
	applications.POST("/:id/submit", student, h.Applications.Submit)
	applications.GET("/:id/history", h.Applications.History)
	applications.GET("/:id/completeness", h.Applications.Completeness)
	applications.PATCH("/:id/status", staff, h.Applications.Transition)
	applications.GET("/:id/documents", h.Documents.List)
	applications.POST("/:id/documents", student, h.Documents.Upload)
	applications.GET("/:id/stipends", h.Stipends.List)
	applications.POST("/:id/stipends", staff, h.Stipends.Release)

	documents := secured.Group("/documents")
	documents.GET("/pending", staff, h.Documents.Pending)
	documents.PATCH("/:id/verify", staff, h.Documents.Verify)
	documents.GET("/:id/download-url",
		middleware.AccessAudit(deps.Audit, deps.Logger, models.AuditActionDocumentDownload, "document"),
		h.Documents.DownloadURL)

	interviews := secured.Group("/interviews")
	interviews.GET("", staff, h.Interviews.List)
	interviews.POST("", staff, h.Interviews.Schedule)
	interviews.GET("/:id", h.Interviews.Get)
	interviews.PATCH("/:id/reschedule", staff, h.Interviews.Reschedule)
	interviews.POST("/:id/complete", staff, h.Interviews.Complete)
	interviews.POST("/:id/cancel", staff, h.Interviews.Cancel)
	interviews.POST("/:id/no-show", staff, h.Interviews.NoShow)

	secured.POST("/stipends/batch", staff, h.Stipends.ReleaseBatch)
	secured.GET("/funds", staff, h.Stipends.ListFunds)
	secured.POST("/funds", staff, h.Stipends.AllocateFund)

	reports := secured.Group("/reports", staff)
	reports.GET("/summary", h.Reports.Summary)
	reports.GET("/export",
		middleware.AccessAudit(deps.Audit, deps.Logger, models.AuditActionReportExport, "report"),
		h.Reports.Export)

	if h.Metrics != nil {
		secured.GET("/metrics/snapshot", admin, h.Metrics.Snapshot)
	}
}

// RegisterOps mounts unauthenticated operational endpoints at the server root.
func RegisterOps(r gin.IRouter, metrics *MetricsHandler) {
	r.GET("/health", metrics.Health)
	r.GET("/ready", metrics.Ready)
	r.GET("/metrics", metrics.Prometheus)
}
