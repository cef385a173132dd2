package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mochimo/config"
	"mochimo/internal/handler"
	"mochimo/internal/httpserver"
	"mochimo/internal/migrations"
	"mochimo/internal/repository"
	"mochimo/internal/service"
	"mochimo/pkg/db"
	"mochimo/pkg/logger"
	"mochimo/pkg/mq"
	"mochimo/pkg/objectstore"
	"mochimo/pkg/otel"
	"mochimo/pkg/outbox"
	redisclient "mochimo/pkg/redis"
	"mochimo/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Env, cfg.LogLevel)
	defer log.Sync()

	log.Info("Starting mochimo server...",
		zap.String("env", cfg.Env),
		zap.String("port", cfg.Server.Port),
	)

	shutdownOTel, err := otel.Init(otel.Config{
		ServiceName:    "mochimo-server",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Endpoint:       cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
		SampleRatio:    1.0,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(ctx); err != nil {
			log.Error("Failed to flush traces", zap.Error(err))
		}
	}()

	// DB
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer pool.Close()

	runner, err := migrations.NewRunner(pool, log)
	if err != nil {
		log.Fatal("Failed to load migrations", zap.Error(err))
	}
	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 5*time.Second)
	if err := runner.Check(checkCtx); err != nil {
		cancelCheck()
		log.Fatal("Database schema check failed", zap.Error(err))
	}
	cancelCheck()

	// Redis（token 黑名单）
	rdb, err := redisclient.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	// 对象存储
	storageCfg := objectstore.ConfigFrom(cfg.Storage)
	minioClient, err := objectstore.NewMinIOClient(storageCfg)
	if err != nil {
		log.Fatal("Failed to init object storage client", zap.Error(err))
	}
	bucketCtx, cancelBucket := context.WithTimeout(context.Background(), 10*time.Second)
	if err := objectstore.EnsureBucket(bucketCtx, minioClient, storageCfg); err != nil {
		cancelBucket()
		log.Fatal("Failed to ensure bucket", zap.Error(err), zap.String("bucket", storageCfg.Bucket))
	}
	cancelBucket()
	images := objectstore.NewMinioStore(minioClient, storageCfg, log)

	// MQ Publisher（outbox dispatcher 使用）
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories & services
	store := repository.NewPgStore(pool, log)
	outboxRepo := outbox.NewRepository(pool)

	lifecycle := service.NewLifecycle(store, log)
	authService := service.NewAuthService(store.Users(), util.NewTokenBlacklist(rdb), cfg.JWT.Secret, cfg.JWT.TTL, log)
	projectService := service.NewProjectService(store, lifecycle, log)
	requirementService := service.NewRequirementService(store, log)
	contractService := service.NewContractService(store, lifecycle, log)
	taskService := service.NewTaskService(store, images, log)
	paymentService := service.NewPaymentService(store, lifecycle, images, log)
	notificationService := service.NewNotificationService(store.Notifications(), log)
	replayService := outbox.NewReplayService(outboxRepo, publisher, log)

	// HTTP
	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	maxUpload := cfg.Uploads.MaxBytes
	router := httpserver.NewRouter(httpserver.Handlers{
		Auth:          handler.NewAuthHandler(authService, cfg.JWT, log),
		Projects:      handler.NewProjectHandler(projectService, log),
		Requirements:  handler.NewRequirementHandler(requirementService, log),
		Contracts:     handler.NewContractHandler(contractService, log),
		Tasks:         handler.NewTaskHandler(taskService, maxUpload, log),
		Payments:      handler.NewPaymentHandler(paymentService, maxUpload, log),
		Notifications: handler.NewNotificationHandler(notificationService, log),
		Admin:         handler.NewAdminHandler(replayService, log),
	}, httpserver.Options{
		Authenticator:  authService,
		CookieName:     cfg.JWT.CookieName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Ready:          []httpserver.Pinger{store, redisPinger{rdb: rdb}, publisher},
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Uploads.Timeout,
		WriteTimeout:      cfg.Uploads.Timeout,
	}

	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Start(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down mochimo server gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
	}
	log.Info("mochimo server shutdown complete")
}
