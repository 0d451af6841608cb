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

	_ "github.com/fresadolab/cnc-training-api/api/swagger"
	"github.com/fresadolab/cnc-training-api/internal/handler"
	"github.com/fresadolab/cnc-training-api/internal/repository"
	"github.com/fresadolab/cnc-training-api/internal/router"
	"github.com/fresadolab/cnc-training-api/internal/service"
	"github.com/fresadolab/cnc-training-api/pkg/cache"
	"github.com/fresadolab/cnc-training-api/pkg/config"
	"github.com/fresadolab/cnc-training-api/pkg/database"
	"github.com/fresadolab/cnc-training-api/pkg/jobs"
	"github.com/fresadolab/cnc-training-api/pkg/logger"
	"github.com/fresadolab/cnc-training-api/pkg/storage"
)

// @title CNC Training Platform API
// @version 1.0.0
// @description Role-scoped API for CNC milling classes, assignments and response review
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}

	bucket, err := storage.NewBucket(cfg.Uploads.StorageDir, cfg.Uploads.PublicBaseURL)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload bucket", "error", err)
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cacheRepo != nil)

	cleanupQueue := jobs.NewQueue("upload-cleanup",
		service.NewUploadCleanupHandler(bucket, metrics, logr),
		jobs.QueueConfig{
			Workers:    cfg.Cleanup.Workers,
			MaxRetries: cfg.Cleanup.MaxRetries,
			RetryDelay: cfg.Cleanup.RetryDelay,
			Logger:     logr,
		},
	)
	cleanupQueue.Start(context.Background())
	defer cleanupQueue.Stop()

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	responseRepo := repository.NewResponseRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, userRepo, cacheSvc, validate, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, classRepo, bucket, cleanupQueue, cacheSvc, metrics, validate, logr, service.AssignmentServiceConfig{
		MaxFileSize:  cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
	})
	responseSvc := service.NewResponseService(responseRepo, assignmentSvc, assignmentRepo, validate, logr)
	exportSvc := service.NewExportService()

	engine := router.New(router.Dependencies{
		Config:      cfg,
		Logger:      logr,
		Metrics:     metrics,
		AuthService: authSvc,
		UserRepo:    userRepo,

		Auth:        handler.NewAuthHandler(authSvc),
		Users:       handler.NewUserHandler(userSvc),
		Classes:     handler.NewClassHandler(classSvc),
		Assignments: handler.NewAssignmentHandler(assignmentSvc),
		Responses:   handler.NewResponseHandler(responseSvc, exportSvc),
		MetricsH:    handler.NewMetricsHandler(metrics),

		UploadsDir: bucket.Dir(),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logr.Sugar().Errorw("forced shutdown", "error", err)
	}
}
