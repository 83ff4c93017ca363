package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/grimoire-app/app-library/internal/blob"
	"github.com/grimoire-app/app-library/internal/config"
	"github.com/grimoire-app/app-library/internal/documents"
	"github.com/grimoire-app/app-library/internal/fingerprint"
	"github.com/grimoire-app/app-library/internal/joblog"
	"github.com/grimoire-app/app-library/internal/logging"
	"github.com/grimoire-app/app-library/internal/observability"
	"github.com/grimoire-app/app-library/internal/queue"
	"github.com/grimoire-app/app-library/internal/search"
	"github.com/grimoire-app/app-library/internal/worker"
)

// Standalone worker binary for scaling document processing independently of
// the API. It runs the same pipeline and promotes delayed retries itself, so
// it also functions without an API instance.
func main() {
	if err := logging.InitLogger(); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	if err := config.LoadConfig(); err != nil {
		logging.Logger.Fatal("failed to load config", zap.Error(err))
	}

	if config.AppConfig.TracingEnabled {
		observability.InitTracer("app-library-worker")
		defer observability.ShutdownTracer()
	}

	config.InitMongoDB()
	config.InitRedis()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs, err := documents.NewMongoStore(
		config.MongoDB,
		config.AppConfig.DocumentCollection,
		config.AppConfig.AnnotationCollection,
		config.AppConfig.EntityCollection,
		logging.Logger,
	)
	if err != nil {
		logging.Logger.Fatal("failed to initialize document store", zap.Error(err))
	}

	blobs, err := blob.NewMinioStore(
		ctx,
		config.AppConfig.MinioEndpoint,
		config.AppConfig.MinioAccessKey,
		config.AppConfig.MinioSecretKey,
		config.AppConfig.MinioBucket,
		config.AppConfig.MinioUseSSL,
		logging.Logger,
	)
	if err != nil {
		logging.Logger.Fatal("failed to initialize blob store", zap.Error(err))
	}

	jobQueue := queue.New(
		queue.NewRedisStore(config.Redis),
		config.AppConfig.JobMaxAttempts,
		config.AppConfig.JobBackoffBase,
		logging.Logger,
	)
	logSink := joblog.NewRedisSink(config.Redis, config.AppConfig.JobLogRetention)

	pipeline := worker.NewPipeline(
		docs,
		blobs,
		search.NewMemoryIndex(),
		fingerprint.NewResolver(docs, logging.Logger),
		logSink,
		worker.DefaultExtractors(),
		worker.PDFThumbnailer(),
		config.AppConfig.ImageBasedTextThreshold,
		logging.Logger,
	)
	pool := worker.NewPool(
		jobQueue,
		pipeline,
		config.AppConfig.WorkerCount,
		config.AppConfig.WorkerPollInterval,
		logging.Logger,
	)

	go promoteLoop(ctx, jobQueue)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := pool.Run(ctx); err != nil {
			logging.Logger.Error("worker pool exited", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Logger.Info("shutting down workers...")
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logging.Logger.Warn("workers did not drain in time")
	}
	logging.Logger.Info("workers exited")
}

func promoteLoop(ctx context.Context, q *queue.Queue) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.PromoteDue(ctx); err != nil {
				logging.Logger.Warn("failed to promote delayed jobs", zap.Error(err))
			}
		}
	}
}
