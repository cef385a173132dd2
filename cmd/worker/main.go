package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mochimo/config"
	mqcontracts "mochimo/contracts/mq"
	"mochimo/internal/mqhandler"
	"mochimo/internal/repository"
	"mochimo/internal/service"
	"mochimo/pkg/db"
	"mochimo/pkg/logger"
	"mochimo/pkg/mq"
	"mochimo/pkg/otel"
	redisclient "mochimo/pkg/redis"
	"mochimo/pkg/util"
)

const healthAddr = ":8081"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Env, cfg.LogLevel)
	defer log.Sync()

	log.Info("Starting mochimo worker...",
		zap.String("queue", cfg.MQ.Queue),
		zap.Int64("max_retries", cfg.Worker.MaxRetries),
	)

	shutdownOTel, err := otel.Init(otel.Config{
		ServiceName:    "mochimo-worker",
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

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redisclient.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to init Redis", zap.Error(err))
	}
	defer rdb.Close()

	// 死信发布
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	store := repository.NewPgStore(pool, log)
	notifications := service.NewNotificationService(store.Notifications(), log)
	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, log)
	notificationHandler := mqhandler.NewNotificationHandler(notifications, deduper, log)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.MQ.Queue, mqcontracts.RoutingKeys, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()

	consumer.SetHandler(notificationHandler.HandleProjectEvent)
	consumer.WithRetries(util.NewRetryCounter(rdb, cfg.Worker.RetryTTL), cfg.Worker.MaxRetries,
		func(ctx context.Context, routingKey string, body []byte, reason string) error {
			return publisher.PublishToDLQ(ctx, mq.DeadLetter{
				Queue:      cfg.MQ.Queue,
				RoutingKey: routingKey,
				Body:       body,
				Reason:     reason,
			})
		},
	)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Notification consumer failed", zap.Error(err))
		}
	}()

	// health / metrics
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		if !consumer.IsConnected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mq_disconnected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	srv := &http.Server{Addr: healthAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Health server failed", zap.Error(err))
		}
	}()

	log.Info("mochimo worker is running", zap.Strings("routing_keys", mqcontracts.RoutingKeys))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down mochimo worker gracefully...")
	consumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		log.Warn("Consumer did not stop in time")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Health server shutdown error", zap.Error(err))
	}

	log.Info("mochimo worker shutdown complete")
}
