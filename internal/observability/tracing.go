package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/grimoire-app/app-library/internal/config"
	"github.com/grimoire-app/app-library/internal/logging"
)

var tracerProvider *sdktrace.TracerProvider

// InitTracer wires the global OTLP tracer. Spans cover the HTTP surface and
// each pipeline run, so a slow stage shows up as a slow span rather than a
// mystery in the queue latency graph. Failure to reach the collector is
// logged and tracing stays off; processing never depends on it.
func InitTracer(serviceName string) {
	if !config.AppConfig.TracingEnabled {
		logging.Logger.Info("tracing is disabled")
		return
	}

	ctx := context.Background()

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(config.AppConfig.TracingEndpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	))
	if err != nil {
		logging.Logger.Error("failed to create OTLP exporter", zap.Error(err))
		return
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String("v1.0.0"),
	))
	if err != nil {
		logging.Logger.Error("failed to create tracing resource", zap.Error(err))
		return
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(512),
			sdktrace.WithBatchTimeout(10*time.Second),
			sdktrace.WithMaxQueueSize(2048),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logging.Logger.Info("tracer initialized",
		zap.String("service", serviceName),
		zap.String("endpoint", config.AppConfig.TracingEndpoint),
	)
}

// ShutdownTracer flushes pending spans. Called on graceful shutdown.
func ShutdownTracer() {
	if tracerProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logging.Logger.Error("failed to shutdown tracer provider", zap.Error(err))
	}
}
