// Package telemetry configures the OpenTelemetry tracer provider that
// the pool and the interceptor chain report spans to.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls trace export.
type Config struct {
	// Enabled turns on OTLP/HTTP export. When false Setup is a no-op.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the full OTLP/HTTP traces URL,
	// e.g. http://localhost:4318/v1/traces.
	Endpoint string `yaml:"endpoint"`

	// Headers are sent with every export, typically an auth header.
	Headers map[string]string `yaml:"headers"`

	// ServiceName identifies this process. Default: inovy.
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of root traces recorded. Default: 1.
	SampleRatio float64 `yaml:"sample_ratio"`
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = "inovy"
	}
	if c.SampleRatio <= 0 || c.SampleRatio > 1 {
		c.SampleRatio = 1
	}
	return c
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Enabled && c.Endpoint == "" {
		return errors.New("telemetry: endpoint is required when enabled")
	}
	return nil
}

// ShutdownFunc flushes pending spans and stops the exporter.
type ShutdownFunc func(ctx context.Context) error

// Setup installs the global tracer provider. The returned function must
// be called on exit; it is safe to call when export is disabled.
func Setup(ctx context.Context, cfg Config, version string) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.Endpoint)}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
