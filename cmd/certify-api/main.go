package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/credentia/certify-api/api/swagger"
	"github.com/credentia/certify-api/internal/handler"
	"github.com/credentia/certify-api/internal/middleware"
	"github.com/credentia/certify-api/internal/models"
	"github.com/credentia/certify-api/internal/repository"
	"github.com/credentia/certify-api/internal/service"
	"github.com/credentia/certify-api/pkg/cache"
	"github.com/credentia/certify-api/pkg/config"
	"github.com/credentia/certify-api/pkg/database"
	"github.com/credentia/certify-api/pkg/jobs"
	"github.com/credentia/certify-api/pkg/logger"
	corsmiddleware "github.com/credentia/certify-api/pkg/middleware/cors"
	reqidmiddleware "github.com/credentia/certify-api/pkg/middleware/requestid"
	"github.com/credentia/certify-api/pkg/storage"
)

// @title Certify API
// @version 1.0.0
// @description Certificate issuance and verification service
// @BasePath /api/v1
// @schemes http https

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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	templateRepo := repository.NewTemplateRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	userRepo := repository.NewUserRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	exportRepo := repository.NewExportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      "certify-api",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notificationSvc *service.NotificationService
	if cfg.Notifications.Enabled {
		notificationSvc = service.NewNotificationService(nil, cfg.Notifications.Workers, logr)
		notificationSvc.Start(ctx)
		defer notificationSvc.Stop()
	}

	resolver := service.NewIdentityResolver(userRepo, documentRepo, logr)
	minter := service.NewCertificateMinter(service.MinterConfig{VerificationBaseURL: cfg.Verification.BaseURL})
	approvalSvc := service.NewApprovalService(templateRepo, certificateRepo, activityRepo,
		resolver, minter, userRepo, notificationSvc, logr)
	approvalSvc.SetMetrics(metricsSvc)

	verificationSvc := service.NewVerificationService(certificateRepo, activityRepo,
		cacheRepo, cfg.Verification.CacheTTL, logr)
	verificationSvc.SetMetrics(metricsSvc)

	activitySvc := service.NewActivityService(activityRepo, logr)

	var certificateSvc *service.CertificateService
	if cfg.Exports.Enabled {
		exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		certificateSvc = service.NewCertificateService(certificateRepo, exportRepo, activityRepo,
			nil, exportStorage, signer,
			service.CertificateServiceConfig{APIPrefix: cfg.APIPrefix, MaxRetries: cfg.Exports.WorkerRetries},
			logr)
		exportQueue := jobs.NewQueue("registry_exports", certificateSvc.ProcessExport, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		certificateSvc.SetQueue(exportQueue)
		exportQueue.Start(ctx)
		defer exportQueue.Stop()

		// Prune artifacts once their signed URLs can no longer reach them.
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					removed, err := exportStorage.CleanupOlderThan(2 * cfg.Exports.SignedURLTTL)
					if err != nil {
						logr.Sugar().Warnw("export artifact cleanup failed", "error", err)
						continue
					}
					if len(removed) > 0 {
						logr.Sugar().Infow("export artifacts pruned", "count", len(removed))
					}
				}
			}
		}()
	} else {
		certificateSvc = service.NewCertificateService(certificateRepo, exportRepo, activityRepo,
			nil, nil, nil,
			service.CertificateServiceConfig{APIPrefix: cfg.APIPrefix}, logr)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	approvalHandler := handler.NewApprovalHandler(approvalSvc)
	verificationHandler := handler.NewVerificationHandler(verificationSvc, metricsSvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)
	activityHandler := handler.NewActivityHandler(activitySvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/verify", verificationHandler.Verify)

		authed := api.Group("")
		authed.Use(middleware.JWT(authSvc))
		{
			authed.GET("/auth/me", authHandler.Me)

			review := authed.Group("/templates")
			review.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleReviewer))
			{
				review.GET("", approvalHandler.List)
				review.GET("/:id", approvalHandler.Get)
				review.POST("/:id/decision", approvalHandler.Decide)
			}

			certs := authed.Group("/certificates")
			{
				certs.GET("", certificateHandler.List)
				certs.GET("/:id", certificateHandler.Get)
				certs.POST("/exports", certificateHandler.RequestExport)
				certs.GET("/exports/:id", certificateHandler.GetExport)
			}

			authed.GET("/activity",
				middleware.RequireRoles(models.RoleAdmin, models.RoleReviewer),
				activityHandler.List)
		}

		// Signed token is the only credential needed here.
		api.GET("/exports/:token", certificateHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}
