// Package otelx configures tracing for the clinicbook services.
package otelx

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/md-rashed-zaman/clinicbook/libs/config"
)

type Config struct {
	Enabled      bool
	ServiceName  string
	Version      string
	Environment  string
	OTLPEndpoint string // host:port
	SampleRatio  float64
}

func ConfigFromEnv(serviceName string) Config {
	return Config{
		Enabled:      config.Bool("OTEL_ENABLED", false),
		ServiceName:  config.String("OTEL_SERVICE_NAME", serviceName),
		Version:      config.String("SERVICE_VERSION", "dev"),
		Environment:  config.String("DEPLOY_ENV", "local"),
		OTLPEndpoint: strings.TrimSpace(config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
		SampleRatio:  sampleRatio(config.String("OTEL_SAMPLING_RATIO", "1")),
	}
}

// sampleRatio falls back to sampling everything on a value outside [0, 1].
func sampleRatio(raw string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || f < 0 || f > 1 {
		return 1
	}
	return f
}

// Setup installs W3C propagation, which the outbox and the scheduled
// notification rows rely on even with export disabled. When enabled it also
// installs an OTLP tracer provider; the returned func flushes it.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(3*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
