package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/pulseworks/pulse-api/api/swagger"
	"github.com/pulseworks/pulse-api/internal/handler"
	"github.com/pulseworks/pulse-api/internal/middleware"
	"github.com/pulseworks/pulse-api/internal/models"
	"github.com/pulseworks/pulse-api/internal/repository"
	"github.com/pulseworks/pulse-api/internal/service"
	"github.com/pulseworks/pulse-api/pkg/cache"
	"github.com/pulseworks/pulse-api/pkg/config"
	"github.com/pulseworks/pulse-api/pkg/database"
	"github.com/pulseworks/pulse-api/pkg/logger"
	corsmiddleware "github.com/pulseworks/pulse-api/pkg/middleware/cors"
	reqidmiddleware "github.com/pulseworks/pulse-api/pkg/middleware/requestid"
	"github.com/pulseworks/pulse-api/pkg/storage"
)

// @title Pulse API
// @version 1.0.0
// @description Survey collection, anonymity and aggregation service
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	validate := validator.New()
	metrics := service.NewMetricsService()

	// Redis is optional; with no reachable instance reports skip the cache.
	var cacheSvc *service.CacheService
	if redisClient, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, report caching disabled", "error", err)
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close()
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Reports.CacheTTL, logr, true)
	}

	surveyRepo := repository.NewSurveyRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	inviteRepo := repository.NewInviteRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)

	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	authSvc := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	surveySvc := service.NewSurveyService(surveyRepo, validate, logr, service.SurveyServiceConfig{
		DefaultKThreshold:  cfg.Surveys.DefaultKThreshold,
		DefaultPublishDays: cfg.Surveys.DefaultPublishDays,
	})
	responseSvc := service.NewResponseService(surveyRepo, responseRepo, inviteRepo, logr).WithMetrics(metrics)
	inviteSvc := service.NewInviteService(inviteRepo, surveyRepo, logr, service.InviteServiceConfig{
		DefaultTTLDays: cfg.Invites.DefaultTTLDays,
		TokenBytes:     cfg.Invites.TokenBytes,
	})
	reportSvc := service.NewReportService(surveyRepo, responseRepo, snapshotRepo, cacheSvc, cfg.Reports.CacheTTL, logr).
		WithMetrics(metrics)
	exportSvc := service.NewExportService(reportSvc, store, signer, service.ExportServiceConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
	}, logr).WithMetrics(metrics)
	generator := service.NewGenerator(service.GeneratorConfig{
		BaseURL: cfg.Generator.BaseURL,
		APIKey:  cfg.Generator.APIKey,
		Model:   cfg.Generator.Model,
		Timeout: cfg.Generator.Timeout,
	}, logr)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exportSvc.Start(rootCtx)
	defer exportSvc.Stop()

	go func() {
		ticker := time.NewTicker(cfg.Reports.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				exportSvc.Cleanup(cfg.Reports.SignedURLTTL)
			}
		}
	}()

	surveyHandler := handler.NewSurveyHandler(surveySvc, generator)
	responseHandler := handler.NewResponseHandler(responseSvc)
	inviteHandler := handler.NewInviteHandler(inviteSvc)
	reportHandler := handler.NewReportHandler(reportSvc, exportSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public: invite probing and gated/anonymous submission.
	api.GET("/invites/:token", inviteHandler.Probe)
	api.POST("/surveys/:id/responses", middleware.OptionalJWT(authSvc), responseHandler.Submit)

	authed := api.Group("", middleware.JWT(authSvc))
	{
		authed.GET("/surveys", surveyHandler.List)
		authed.GET("/surveys/:id", surveyHandler.Get)
		authed.GET("/surveys/:id/responses/me", responseHandler.GetOwn)
		authed.GET("/invites/mine", inviteHandler.Mine)

		authoring := authed.Group("", middleware.RequireRoles(models.RoleCreator))
		{
			authoring.POST("/surveys", surveyHandler.Create)
			authoring.POST("/surveys/generate", surveyHandler.Generate)
			authoring.POST("/surveys/:id/sections", surveyHandler.AddSection)
			authoring.POST("/sections/:sectionId/questions", surveyHandler.AddQuestion)
			authoring.POST("/surveys/:id/reorder", surveyHandler.Reorder)
		}

		admin := authed.Group("", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("/surveys/:id/transition", surveyHandler.Transition)
			admin.POST("/surveys/:id/invites", inviteHandler.Issue)
			admin.GET("/surveys/:id/invites", inviteHandler.List)
			admin.PUT("/answers/:answerId/moderation", responseHandler.Moderate)
		}

		analysts := authed.Group("", middleware.RequireRoles(models.RoleAnalyst))
		{
			analysts.POST("/surveys/:id/reports", reportHandler.Compute)
			analysts.GET("/surveys/:id/reports", reportHandler.History)
			analysts.GET("/surveys/:id/reports/latest", reportHandler.Latest)
			analysts.POST("/surveys/:id/reports/export", reportHandler.Export)
			analysts.GET("/exports/:exportId", reportHandler.ExportStatus)
		}
	}

	// Signed URL carries its own authorization.
	api.GET("/exports/download", reportHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
