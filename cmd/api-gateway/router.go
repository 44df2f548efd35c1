package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	internalmiddleware "github.com/noah-isme/agency-portal-api/internal/middleware"
	"github.com/noah-isme/agency-portal-api/internal/models"
	"github.com/noah-isme/agency-portal-api/pkg/config"
	"github.com/noah-isme/agency-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/agency-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/agency-portal-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, app *application, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(app.metrics, "/health", "/ready", "/metrics"))
	r.Use(internalmiddleware.WithResponseMeta())

	h := app.handlers
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Account administration keeps its flat response contract outside the versioned API.
	r.POST("/api/update-credentials", internalmiddleware.OptionalJWT(app.identity), h.admin.UpdateCredentials)
	r.POST("/api/delete", internalmiddleware.OptionalJWT(app.identity), h.admin.Delete)

	prefix := strings.TrimRight(cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)

	auth := api.Group("/auth")
	auth.POST("/login", h.auth.Login)
	auth.POST("/google", h.auth.Google)
	auth.GET("/me", internalmiddleware.JWT(app.identity), h.auth.Me)

	if h.reports != nil {
		api.GET("/export/:token", h.reports.DownloadReport)
	}

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(app.identity))

	admin := internalmiddleware.RequireRoles(models.RoleAdmin)
	staff := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleEvaluator)
	anyRole := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleEvaluator, models.RoleLGU, models.RoleViewer)

	users := secured.Group("/users")
	users.GET("", admin, h.users.List)
	users.POST("", admin, h.users.Create)
	users.GET("/:id", internalmiddleware.RBAC(string(models.RoleAdmin), internalmiddleware.RoleSelf), h.users.Get)
	users.POST("/:id/avatar", internalmiddleware.RBAC(string(models.RoleAdmin), internalmiddleware.RoleSelf), h.users.UploadAvatar)
	users.GET("/:id/analytics", anyRole, h.analytics.User)

	programs := secured.Group("/programs")
	programs.GET("", anyRole, h.programs.List)
	programs.POST("", admin, h.programs.Create)
	programs.GET("/:id", anyRole, h.programs.Get)
	programs.PUT("/:id", admin, h.programs.Update)
	programs.DELETE("/:id", admin, h.programs.Delete)
	programs.POST("/:id/participants/select-all", admin, h.programs.SelectAll)
	programs.GET("/:id/occurrences", anyRole, h.programs.Occurrences)
	programs.POST("/:id/submissions", internalmiddleware.RequireRoles(models.RoleLGU), h.submissions.Submit)
	programs.GET("/:id/ledgers/:participantId", anyRole, h.submissions.Ledger)
	programs.PATCH("/:id/ledgers/:participantId/:occurrence", staff, h.submissions.Evaluate)
	programs.GET("/:id/analytics", internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleEvaluator, models.RoleViewer), h.analytics.Program)
	programs.GET("/:id/analytics/stream", internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleEvaluator, models.RoleViewer), h.analytics.Stream)

	secured.GET("/analytics/system", admin, h.analytics.System)
	secured.GET("/dashboard", anyRole, h.dashboard.Get)

	secured.GET("/inbox", anyRole, h.messages.Inbox)
	secured.POST("/messages", anyRole, internalmiddleware.Audit(app.audit, logr, models.AuditActionMessageSend, "message"), h.messages.Send)
	secured.PATCH("/messages/:id/read", anyRole, h.messages.MarkRead)

	secured.GET("/org-chart", anyRole, h.orgChart.Tree)
	secured.GET("/org-chart/:id", anyRole, h.orgChart.Subtree)

	secured.GET("/preferences/:view", anyRole, h.preferences.Get)
	secured.PUT("/preferences/:view", anyRole, h.preferences.Save)
	secured.DELETE("/preferences/:view", anyRole, h.preferences.Reset)

	if h.reports != nil {
		reports := secured.Group("/reports")
		reports.POST("/generate", anyRole, internalmiddleware.Audit(app.audit, logr, models.AuditActionReportGenerate, "report"), h.reports.GenerateReport)
		reports.GET("/status/:id", anyRole, h.reports.ReportStatus)
	}

	return r
}
