package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	taskhandler "github.com/imageq/image-resizer/internal/api/handlers/task"
	"github.com/imageq/image-resizer/internal/api/router"
	"github.com/imageq/image-resizer/internal/api/server"
	"github.com/imageq/image-resizer/internal/config"
	"github.com/imageq/image-resizer/internal/infra/kafka/consumer"
	"github.com/imageq/image-resizer/internal/infra/kafka/producer"
	taskmsg "github.com/imageq/image-resizer/internal/kafka/handlers/task"
	"github.com/imageq/image-resizer/internal/processor"
	taskrepo "github.com/imageq/image-resizer/internal/repository/task"
	tasksvc "github.com/imageq/image-resizer/internal/service/task"
	"github.com/imageq/image-resizer/internal/storage/file"
	"github.com/imageq/image-resizer/internal/storage/s3"
)

// artifactStorage is satisfied by both storage backends.
type artifactStorage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	Load(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	// Connect to Redis (task state store) and fail fast if it is down.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	cancel()

	// Retry strategy for Kafka and other external calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	// Select the artifact storage backend.
	var storage artifactStorage
	switch cfg.Storage.Backend {
	case "s3":
		st, err := s3.NewStorage(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.BucketName, cfg.Storage.UseSSL)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
		}
		storage = st
	default:
		storage = file.NewStorage(cfg.Storage.BaseDir)
	}

	// Initialize repository, producer, processor, and service layer.
	repo := taskrepo.NewRepository(rdb, cfg.Redis.TTL)
	p := producer.New(&cfg.Kafka, strategy)
	proc := processor.New(storage)
	service := tasksvc.NewService(storage, p, repo, proc, tasksvc.Limits{
		AllowedExtensions: cfg.Limits.AllowedExtensions,
		MaxDimension:      cfg.Limits.MaxDimension,
	})

	// Kafka message handler for queued tasks.
	createdHandler := taskmsg.NewCreatedHandler(service)

	// HTTP handler for task routes.
	h := taskhandler.NewHandler(service)

	// Worker pool: one Kafka consumer per worker, all in one group.
	var wg sync.WaitGroup
	consumers := make([]*consumer.Consumer, 0, cfg.Worker.Count)
	for i := 0; i < cfg.Worker.Count; i++ {
		c := consumer.New(&cfg.Kafka, strategy, createdHandler)
		consumers = append(consumers, c)

		wg.Add(1)
		go c.Consume(ctx, &wg)
	}

	// Start HTTP server in a separate goroutine.
	r := router.Setup(h)
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for consumer goroutines to finish.
	wg.Wait()

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Close Kafka clients and the Redis connection.
	if err := p.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
	}
	for _, c := range consumers {
		if err := c.Client.Close(); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
		}
	}
	if err := rdb.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close redis client")
	}
}
