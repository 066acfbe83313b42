package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string
	OTLPEnabled    bool
	OTLP           exporters.OTLPConfig
}

// NewProvider builds the global tracer provider and registers the package tracer.
// The returned shutdown func flushes pending spans.
func NewProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter = &exporters.DiscardExporter{}
	if cfg.OTLPEnabled {
		otlpExporter, err := exporters.NewOTLPExporter(ctx, cfg.OTLP)
		if err != nil {
			return nil, err
		}
		exporter = otlpExporter
	}

	resource := sdkresource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(resource),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	SetTracer(provider.Tracer(cfg.ServiceName))

	return provider.Shutdown, nil
}
