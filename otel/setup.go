package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/strand-labs/toolflow"
)

// SetupConfig configures the OTLP trace pipeline.
type SetupConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint, host:port. Defaults to
	// the exporter's standard environment-driven resolution when empty.
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool

	// ServiceName identifies this process in traces. Defaults to "toolflow".
	ServiceName string
}

// Setup builds an OTLP/HTTP trace pipeline, installs it as the global tracer
// provider, and returns a TracingHandler wired to it. The returned shutdown
// function flushes and stops the pipeline.
func Setup(ctx context.Context, cfg SetupConfig) (*TracingHandler, func(context.Context) error, error) {
	var expOpts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		expOpts = append(expOpts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		expOpts = append(expOpts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, expOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("otel: create exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "toolflow"
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(toolflow.Version),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("otel: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return NewTracingHandler(Tracer(tp)), tp.Shutdown, nil
}

// Tracer returns the engine tracer from a provider.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	return tp.Tracer("github.com/strand-labs/toolflow")
}
