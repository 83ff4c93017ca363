package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/grimoire-app/app-library/internal/blob"
	"github.com/grimoire-app/app-library/internal/config"
	"github.com/grimoire-app/app-library/internal/documents"
	"github.com/grimoire-app/app-library/internal/fingerprint"
	"github.com/grimoire-app/app-library/internal/gateway"
	"github.com/grimoire-app/app-library/internal/handlers"
	"github.com/grimoire-app/app-library/internal/joblog"
	"github.com/grimoire-app/app-library/internal/logging"
	"github.com/grimoire-app/app-library/internal/middleware"
	"github.com/grimoire-app/app-library/internal/observability"
	"github.com/grimoire-app/app-library/internal/queue"
	"github.com/grimoire-app/app-library/internal/search"
	"github.com/grimoire-app/app-library/internal/session"
	"github.com/grimoire-app/app-library/internal/worker"
)

const promoteInterval = time.Second

func main() {
	// Initialize logger first
	if err := logging.InitLogger(); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logging.Logger.Fatal("failed to load config", zap.Error(err))
	}

	// Initialize observability
	if config.AppConfig.TracingEnabled {
		observability.InitTracer("app-library")
		defer observability.ShutdownTracer()
	}

	// Initialize backing services
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

	// The search backend is opaque to this service; the in-process index
	// satisfies its interface until a dedicated search service is deployed.
	index := search.NewMemoryIndex()

	jobQueue := queue.New(
		queue.NewRedisStore(config.Redis),
		config.AppConfig.JobMaxAttempts,
		config.AppConfig.JobBackoffBase,
		logging.Logger,
	)
	logSink := joblog.NewRedisSink(config.Redis, config.AppConfig.JobLogRetention)
	resolver := fingerprint.NewResolver(docs, logging.Logger)

	pipeline := worker.NewPipeline(
		docs,
		blobs,
		index,
		resolver,
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
	go func() {
		if err := pool.Run(ctx); err != nil {
			logging.Logger.Error("worker pool exited", zap.Error(err))
		}
	}()

	registry := session.NewRegistry(
		session.NewRedisStore(config.Redis, config.AppConfig.SessionTTL),
		logging.Logger,
	)
	gw := gateway.New(registry, docs, config.AppConfig.HeartbeatInterval, logging.Logger)

	go runMaintenance(ctx, jobQueue)

	// Set Gin mode
	if config.AppConfig.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router with middleware
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(),
		cors.Default(),
	)

	jobHandler := handlers.NewJobHandler(jobQueue, logSink, logging.Logger)
	sessionHandler := handlers.NewSessionHandler(registry, gw, logging.Logger)
	handlers.RegisterRoutes(router, jobHandler, sessionHandler, gw)

	// Create server with timeouts
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.AppConfig.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logging.Logger.Info("starting server",
			zap.Int("port", config.AppConfig.Port),
			zap.String("environment", config.AppConfig.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown: stop leasing new jobs, then drain HTTP
	logging.Logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logging.Logger.Info("server exited gracefully")
}

// runMaintenance promotes delayed retries and purges finished jobs past
// their retention windows.
func runMaintenance(ctx context.Context, q *queue.Queue) {
	promote := time.NewTicker(promoteInterval)
	clean := time.NewTicker(time.Hour)
	defer promote.Stop()
	defer clean.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-promote.C:
			if _, err := q.PromoteDue(ctx); err != nil {
				logging.Logger.Warn("failed to promote delayed jobs", zap.Error(err))
			}
		case <-clean.C:
			if _, err := q.Clean(ctx, "completed", config.AppConfig.CompletedRetention); err != nil {
				logging.Logger.Warn("failed to clean completed jobs", zap.Error(err))
			}
			if _, err := q.Clean(ctx, "failed", config.AppConfig.FailedRetention); err != nil {
				logging.Logger.Warn("failed to clean failed jobs", zap.Error(err))
			}
		}
	}
}
