package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/castline/castline/internal/adapter/httpserver"
	"github.com/castline/castline/internal/adapter/mongo"
	"github.com/castline/castline/internal/adapter/rabbit"
	"github.com/castline/castline/internal/adapter/redis"
	"github.com/castline/castline/internal/app"
	"github.com/castline/castline/internal/config"
	"github.com/castline/castline/internal/platform/logging"
)

const (
	queueConnected    = "live_stream.connected"
	queueDisconnected = "live_stream.disconnected"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupMongo(cfg *config.Config) *mongodriver.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, cfg.MongoURL)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}

	if err := mongo.EnsureIndexes(ctx, client.Database(cfg.MongoDatabase)); err != nil {
		slog.Error("Failed to ensure indexes", "error", err)
		os.Exit(1)
	}

	return client
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupConsumer(ctx context.Context, cfg *config.Config, lifecycle *app.LifecycleService, transcode *app.TranscodeHandler, clock clockwork.Clock) *rabbit.Consumer {
	policy := rabbit.ReconnectPolicy{
		InitialBackoff: cfg.ReconnectInitial,
		MaxBackoff:     cfg.ReconnectMax,
	}
	consumer := rabbit.NewConsumer(cfg.RabbitURL, clock, policy, cfg.ConsumerRetryMax, cfg.HandlerTimeout)

	registrations := map[string]rabbit.Handler{
		queueConnected:     lifecycle.HandleConnected,
		queueDisconnected:  lifecycle.HandleDisconnected,
		cfg.TranscodeQueue: transcode.Handle,
	}
	for queue, handler := range registrations {
		if err := consumer.Register(queue, handler); err != nil {
			slog.Error("Failed to register queue handler", "queue", queue, "error", err)
			os.Exit(1)
		}
	}

	if err := consumer.Start(ctx); err != nil {
		slog.Error("Failed to start consumer", "error", err)
		os.Exit(1)
	}

	return consumer
}

func runGracefulShutdown(cfg *config.Config, srv *httpserver.Server, consumer *rabbit.Consumer, publisher *rabbit.Publisher, mongoClient *mongodriver.Client, redisClient *goredis.Client, cancelConsume context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// The in-flight handler finishes before the broker connection
		// closes; nothing is acknowledged after that.
		cancelConsume()
		consumer.Stop(shutdownCtx)
		publisher.Close()

		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			slog.Error("MongoDB disconnect error", "error", err)
		}
		if err := redisClient.Close(); err != nil {
			slog.Error("Redis close error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	mongoClient := setupMongo(cfg)
	redisClient := setupRedis(cfg)

	db := mongoClient.Database(cfg.MongoDatabase)
	streamRepo := mongo.NewStreamRepo(db)
	txCoordinator := mongo.NewTxCoordinator(mongoClient)
	liveCache := redis.NewLiveListCache(redisClient, cfg.LiveCacheTTL)

	publisher := rabbit.NewPublisher(cfg.RabbitURL)
	notifier := app.NewPipelineNotifier(publisher)

	lifecycle := app.NewLifecycleService(streamRepo, txCoordinator, liveCache, clock)
	transcode := app.NewTranscodeHandler(notifier, cfg.BunnyLibraryID)
	streamSvc := app.NewStreamService(streamRepo, txCoordinator, liveCache, clock)

	consumeCtx, cancelConsume := context.WithCancel(context.Background())
	consumer := setupConsumer(consumeCtx, cfg, lifecycle, transcode, clock)

	srv := httpserver.NewServer(cfg.Port, streamSvc, mongoClient, redisClient)

	done := runGracefulShutdown(cfg, srv, consumer, publisher, mongoClient, redisClient, cancelConsume)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
