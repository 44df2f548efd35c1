package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/agency-portal-api/api/swagger"
	"github.com/noah-isme/agency-portal-api/internal/handler"
	"github.com/noah-isme/agency-portal-api/internal/repository"
	"github.com/noah-isme/agency-portal-api/internal/service"
	"github.com/noah-isme/agency-portal-api/pkg/cache"
	"github.com/noah-isme/agency-portal-api/pkg/config"
	"github.com/noah-isme/agency-portal-api/pkg/database"
	"github.com/noah-isme/agency-portal-api/pkg/jobs"
	"github.com/noah-isme/agency-portal-api/pkg/logger"
	"github.com/noah-isme/agency-portal-api/pkg/media"
	"github.com/noah-isme/agency-portal-api/pkg/storage"
)

// @title Agency Reporting Portal API
// @version 1.0.0
// @description Reporting programs, submission ledgers and status analytics for local government units
// @BasePath /api/v1
// @schemes http https
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
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	// Redis backs caching, the ledger feed and saved filters; the portal
	// still serves without it.
	var redisClient redis.UniversalClient
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Warn("redis unavailable, running without cache and live updates", zap.Error(err))
	} else {
		redisClient = client
		defer client.Close() //nolint:errcheck
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, db, redisClient, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to build application", "error", err)
	}
	defer app.shutdown()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, app, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

type application struct {
	identity  *service.IdentityService
	metrics   *service.MetricsService
	audit     *repository.AuditRepository
	handlers  handlers
	readiness map[string]handler.ReadinessCheck
	queue     *jobs.Queue
}

type handlers struct {
	auth        *handler.AuthHandler
	admin       *handler.AdminHandler
	users       *handler.UserHandler
	programs    *handler.ProgramHandler
	submissions *handler.SubmissionHandler
	analytics   *handler.AnalyticsHandler
	dashboard   *handler.DashboardHandler
	messages    *handler.MessageHandler
	orgChart    *handler.OrgChartHandler
	preferences *handler.PreferenceHandler
	reports     *handler.ReportHandler
	metrics     *handler.MetricsHandler
}

func (a *application) shutdown() {
	if a.queue != nil {
		a.queue.Stop()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, redisClient redis.UniversalClient, logr *zap.Logger) (*application, error) {
	validate := validator.New()
	loc := cfg.Portal.Location()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	programRepo := repository.NewProgramRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	orgRepo := repository.NewOrgUnitRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	ledgerFeed := repository.NewLedgerFeed(redisClient, logr)
	preferenceRepo := repository.NewPreferenceRepository(redisClient, cfg.Preferences.TTL)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Analytics.CacheTTL, logr, cfg.Analytics.CacheEnabled && redisClient != nil)
	mediaClient := media.NewClient(cfg.Media, nil)

	identitySvc := service.NewIdentityService(userRepo, auditRepo, service.NewGoogleTokenVerifier(cfg.Google.ClientID), validate, logr, service.IdentityConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, auditRepo, mediaClient, validate, logr, service.UserServiceConfig{
		AvatarFolder: "avatars",
		Avatar:       media.AvatarOptions{MaxPixels: cfg.Media.AvatarMaxPixels, Quality: cfg.Media.AvatarQuality},
	})
	programSvc := service.NewProgramService(programRepo, userRepo, auditRepo, cacheSvc, validate, logr, loc)
	submissionSvc := service.NewSubmissionService(programRepo, ledgerRepo, mediaClient, ledgerFeed, cacheSvc, auditRepo, metricsSvc, validate, logr, loc)
	analyticsSvc := service.NewAnalyticsService(programRepo, ledgerRepo, userRepo, ledgerFeed, cacheSvc, metricsSvc, logr, loc, cfg.Analytics.CacheTTL).
		WithInventory(repository.NewAnalyticsRepository(db))
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Programs:  programRepo,
		Ledgers:   ledgerRepo,
		Users:     userRepo,
		Analytics: analyticsSvc,
		Cache:     cacheSvc,
		Metrics:   metricsSvc,
		Logger:    logr,
		Location:  loc,
		Config: service.DashboardServiceConfig{
			CacheTTL:      cfg.Dashboard.CacheTTL,
			UpcomingLimit: cfg.Dashboard.UpcomingLimit,
		},
	})
	messageSvc := service.NewMessageService(messageRepo, programRepo, userRepo, validate, logr)
	orgChartSvc := service.NewOrgChartService(orgRepo, logr)
	preferenceSvc := service.NewPreferenceService(preferenceRepo, validate, logr)

	app := &application{
		identity: identitySvc,
		metrics:  metricsSvc,
		audit:    auditRepo,
		readiness: map[string]handler.ReadinessCheck{
			"database": db.PingContext,
		},
	}
	if redisClient != nil {
		app.readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var reportHandler *handler.ReportHandler
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			return nil, fmt.Errorf("init report storage: %w", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportSvc := service.NewExportService(analyticsSvc, store, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr, service.ExportRenderers{})

		var reportSvc *service.ReportService
		worker := service.NewReportWorker(reportRepo, exportSvc, logr)
		queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			RetryDelay: 5 * time.Second,
			DeadLetter: func(ctx context.Context, job jobs.Job, cause error) {
				reportSvc.DeadLetter(ctx, job, cause)
			},
			Logger: logr,
		})
		reportSvc = service.NewReportService(reportRepo, programRepo, queue, exportSvc, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})

		queue.Start(ctx)
		app.queue = queue
		if recovered := reportSvc.RecoverPendingJobs(ctx); recovered > 0 {
			logr.Info("requeued pending report jobs", zap.Int("count", recovered))
		}
		reportSvc.StartCleanup(ctx)
		reportHandler = handler.NewReportHandler(reportSvc, logr)
	}

	app.handlers = handlers{
		auth:        handler.NewAuthHandler(identitySvc),
		admin:       handler.NewAdminHandler(userSvc, identitySvc),
		users:       handler.NewUserHandler(userSvc, cfg.Media.MaxFileSizeBytes),
		programs:    handler.NewProgramHandler(programSvc),
		submissions: handler.NewSubmissionHandler(submissionSvc, cfg.Media.MaxFileSizeBytes),
		analytics:   handler.NewAnalyticsHandler(analyticsSvc),
		dashboard:   handler.NewDashboardHandler(dashboardSvc),
		messages:    handler.NewMessageHandler(messageSvc),
		orgChart:    handler.NewOrgChartHandler(orgChartSvc),
		preferences: handler.NewPreferenceHandler(preferenceSvc),
		reports:     reportHandler,
		metrics:     handler.NewMetricsHandler(metricsSvc, app.readiness),
	}
	return app, nil
}
