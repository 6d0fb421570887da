package tracer

import (
	"context"
	"time"

	"github.com/Abdurahmanit/GroupProject/saved-service/internal/platform/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// InitTracer installs a global tracer provider exporting over OTLP gRPC.
// Without an endpoint, or if the exporter cannot be built, a provider without
// exporters is returned so spans are still cheap no-ops.
func InitTracer(serviceName, otlpEndpoint string, log logger.Logger) *sdktrace.TracerProvider {
	if otlpEndpoint == "" {
		log.Info("OpenTelemetry tracing is disabled: OTEL_EXPORTER_OTLP_ENDPOINT is not set.")
		return sdktrace.NewTracerProvider()
	}

	log.Infow("Initializing OpenTelemetry Tracer...", "service_name", serviceName, "otlp_endpoint", otlpEndpoint)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		log.Errorw("Failed to create OTLP trace exporter", "error", err)
		return sdktrace.NewTracerProvider()
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		log.Errorw("Failed to create OpenTelemetry resource", "error", err)
		_ = traceExporter.Shutdown(ctx)
		return sdktrace.NewTracerProvider()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Infow("OpenTelemetry Tracer initialized and set as global provider.", "service_name", serviceName)
	return tp
}
