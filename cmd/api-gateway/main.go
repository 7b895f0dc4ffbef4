package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/glorious-schools/portal-api/api/swagger"
	"github.com/glorious-schools/portal-api/internal/handler"
	"github.com/glorious-schools/portal-api/internal/middleware"
	"github.com/glorious-schools/portal-api/internal/models"
	"github.com/glorious-schools/portal-api/internal/repository"
	"github.com/glorious-schools/portal-api/internal/service"
	"github.com/glorious-schools/portal-api/pkg/cache"
	"github.com/glorious-schools/portal-api/pkg/config"
	"github.com/glorious-schools/portal-api/pkg/database"
	"github.com/glorious-schools/portal-api/pkg/jobs"
	"github.com/glorious-schools/portal-api/pkg/logger"
	corsmiddleware "github.com/glorious-schools/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/glorious-schools/portal-api/pkg/middleware/requestid"
	"github.com/glorious-schools/portal-api/pkg/storage"
)

// @title Glorious Schools Portal API
// @version 1.0.0
// @description School portal backend: roll-call attendance with an offline-first local cache, register exports, prefect elections, the digital library and admin dashboards.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Warn("redis unavailable, read caches disabled")
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Library.CacheTTL, logr, true)
	}

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	attendanceCache, err := repository.NewAttendanceCache(cfg.Attendance.CacheDir, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to initialise attendance cache", "error", err)
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "glorious-portal-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, userRepo, attendanceRepo, validate, logr, cfg.School.EmailDomain)
	classSvc := service.NewClassService(classRepo, validate, logr)
	syncSvc := service.NewSyncService(attendanceCache, attendanceRepo, logr)
	attendanceSvc := service.NewAttendanceService(attendanceCache, attendanceRepo, studentRepo, syncSvc, validate, logr)

	var dashboardSvc *service.DashboardService
	if cfg.Dashboard.Enabled {
		dashboardSvc = service.NewDashboardService(service.DashboardServiceParams{
			Students:   studentRepo,
			Users:      userRepo,
			Classes:    classRepo,
			Attendance: attendanceRepo,
			Local:      attendanceCache,
			Cache:      cacheSvc,
			CacheTTL:   cfg.Dashboard.CacheTTL,
			Logger:     logr,
		})
	}

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	classHandler := handler.NewClassHandler(classSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, syncSvc, dashboardSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	admin := string(models.RoleAdmin)
	teacher := string(models.RoleTeacher)
	student := string(models.RoleStudent)

	secured := api.Group("", middleware.JWT(authSvc))
	secured.POST("/auth/logout", authHandler.Logout)
	secured.POST("/auth/change-password", authHandler.ChangePassword)
	secured.GET("/auth/me", authHandler.Me)

	secured.GET("/profile", userHandler.Profile)
	secured.PATCH("/profile", userHandler.UpdateProfile)

	secured.GET("/users", middleware.RBAC(admin), userHandler.List)
	secured.GET("/users/:id", middleware.RBAC(admin), userHandler.Get)
	secured.POST("/users", middleware.RBAC(admin), userHandler.Create)
	secured.PUT("/users/:id", middleware.RBAC(admin), userHandler.Update)
	secured.DELETE("/users/:id", middleware.RBAC(admin), userHandler.Delete)

	secured.GET("/students", middleware.RBAC(admin, teacher), studentHandler.List)
	secured.GET("/students/:id", middleware.RBAC(admin, teacher), studentHandler.Get)
	secured.POST("/students", middleware.RBAC(admin), middleware.Audit(userRepo, models.AuditActionStudentProvision, "students"), studentHandler.Create)
	secured.PATCH("/students/:id", middleware.RBAC(admin), studentHandler.Update)
	secured.DELETE("/students/:id", middleware.RBAC(admin), middleware.Audit(userRepo, models.AuditActionStudentDeactivate, "students"), studentHandler.Deactivate)
	secured.GET("/students/:id/attendance", middleware.RBAC(admin, teacher), studentHandler.AttendanceHistory)

	secured.GET("/classes", classHandler.List)
	secured.GET("/classes/:id", classHandler.Get)
	secured.POST("/classes", middleware.RBAC(admin), classHandler.Create)
	secured.GET("/classes/:id/streams", classHandler.Streams)
	secured.POST("/classes/:id/streams", middleware.RBAC(admin), classHandler.CreateStream)
	secured.GET("/streams/:id", classHandler.GetStream)

	secured.GET("/attendance/:streamId/:date", middleware.RBAC(admin, teacher), attendanceHandler.RollCall)
	secured.POST("/attendance/:streamId/:date/mark", middleware.RBAC(admin, teacher), attendanceHandler.Mark)
	secured.POST("/attendance/:streamId/:date/mark-all", middleware.RBAC(admin, teacher), attendanceHandler.MarkAll)
	secured.DELETE("/attendance/:streamId/:date", middleware.RBAC(admin, teacher), attendanceHandler.Clear)
	secured.POST("/attendance/sync", middleware.RBAC(admin, teacher), attendanceHandler.Sync)

	var exportQueue *jobs.Queue
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to initialise export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportRepo := repository.NewExportRepository(db)
		exportSvc := service.NewExportService(attendanceSvc, classRepo, store, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.SignedURLTTL,
		}, logr)
		worker := service.NewExportWorker(exportRepo, exportSvc, cfg.Exports.WorkerRetries, logr)
		exportQueue = jobs.NewQueue("exports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			RetryDelay: 5 * time.Second,
			Logger:     logr,
		})
		exportQueue.Start(ctx)
		exportJobSvc := service.NewExportJobService(exportRepo, exportQueue, exportSvc, validate, logr, service.ExportJobConfig{
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
			MaxRetries:      cfg.Exports.WorkerRetries,
		})
		exportJobSvc.RecoverPendingJobs(ctx)
		exportJobSvc.StartCleanup(ctx)

		exportHandler := handler.NewExportHandler(exportJobSvc)
		secured.POST("/exports", middleware.RBAC(admin, teacher), middleware.Audit(userRepo, models.AuditActionExportRequest, "exports"), exportHandler.Create)
		secured.GET("/exports/:id", middleware.RBAC(admin, teacher), exportHandler.Status)
		// Download URLs carry their own signed token; no session required.
		api.GET("/export/:token", exportHandler.Download)
	}

	if cfg.Electoral.Enabled {
		electoralRepo := repository.NewElectoralRepository(db)
		electoralSvc := service.NewElectoralService(electoralRepo, service.VotingWindow{
			Open:  cfg.Electoral.VotingOpen,
			Close: cfg.Electoral.VotingClose,
		}, validate, logr)
		electoralHandler := handler.NewElectoralHandler(electoralSvc)

		secured.GET("/electoral/positions", electoralHandler.Positions)
		secured.POST("/electoral/applications", middleware.RBAC(student), electoralHandler.Apply)
		secured.GET("/electoral/applications", middleware.RBAC(admin), electoralHandler.Applications)
		secured.POST("/electoral/applications/:id/review", middleware.RBAC(admin), electoralHandler.Review)
		secured.GET("/electoral/candidates", electoralHandler.Candidates)
		secured.POST("/electoral/votes", middleware.RBAC(student), electoralHandler.Vote)
		secured.GET("/electoral/votes/receipt", middleware.RBAC(student), electoralHandler.Receipt)
		secured.GET("/electoral/results", electoralHandler.Results)
	}

	if cfg.Library.Enabled {
		libraryRepo := repository.NewLibraryRepository(db)
		librarySvc := service.NewLibraryService(libraryRepo, cacheSvc, cfg.Library.CacheTTL, logr)
		libraryHandler := handler.NewLibraryHandler(librarySvc)

		secured.GET("/library", libraryHandler.List)
		secured.GET("/library/:id", libraryHandler.Get)
	}

	if dashboardSvc != nil {
		dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
		secured.GET("/dashboard/admin", middleware.RBAC(admin), dashboardHandler.Admin)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown incomplete", "error", err)
	}
	if exportQueue != nil {
		exportQueue.Stop()
	}
}
