package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/Ramsey-B/iris/pkg/tracing/exporters"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type ProviderConfig struct {
	ServiceName string
	// Exporter is one of "none", "console" or "otlp".
	Exporter string
	OTLP     exporters.OTLPConfig
}

// NewProvider builds the global tracer provider and installs the tracer used by StartSpan.
// The returned shutdown func flushes pending spans.
func NewProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	if cfg.Exporter == "" || cfg.Exporter == "none" {
		return func(context.Context) error { return nil }, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "console":
		exporter, err = exporters.NewConsoleExporter()
	case "otlp":
		exporter, err = exporters.NewOTLPExporter(ctx, cfg.OTLP)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", cfg.Exporter, err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	SetTracer(tp.Tracer(cfg.ServiceName))

	return tp.Shutdown, nil
}
