// Package telemetry exports run and pipe spans over OTLP/HTTP.
package telemetry

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/blacktop/retrobuffer/internal/config"
)

const (
	serviceName = "retrobuffer"
	tracerName  = "github.com/blacktop/retrobuffer"
)

// Config describes the run being traced.
type Config struct {
	Enabled bool
	// Endpoint is either host:port, sent over plain HTTP, or a full
	// http(s) URL whose path replaces the default /v1/traces.
	Endpoint  string
	Version   string
	InputDir  string
	OutputDir string
	Jobs      int
	DryRun    bool
}

// FromConfig builds the telemetry settings of one run.
func FromConfig(cfg *config.Config, version string, dryRun bool) Config {
	return Config{
		Enabled:   cfg.Telemetry.Enabled,
		Endpoint:  cfg.Telemetry.Endpoint,
		Version:   version,
		InputDir:  cfg.InputDir,
		OutputDir: cfg.OutputDir,
		Jobs:      cfg.Jobs,
		DryRun:    dryRun,
	}
}

// Init installs a global tracer provider. The returned func flushes and
// shuts it down. A disabled config installs nothing and spans are no-ops.
func Init(ctx context.Context, c Config) (func(), error) {
	if !c.Enabled {
		return func() {}, nil
	}

	opts, err := endpointOptions(c.Endpoint)
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create OTLP exporter")
	}

	res, err := resource.New(ctx, resource.WithAttributes(attributes(c)...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to describe trace resource")
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}

func attributes(c Config) []attribute.KeyValue {
	version := c.Version
	if version == "" {
		version = "dev"
	}
	return []attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version),
		attribute.String("retrobuffer.input_dir", c.InputDir),
		attribute.String("retrobuffer.output_dir", c.OutputDir),
		attribute.Bool("retrobuffer.in_place", c.InputDir == c.OutputDir),
		attribute.Int("retrobuffer.jobs", c.Jobs),
		attribute.Bool("retrobuffer.dry_run", c.DryRun),
	}
}

func endpointOptions(endpoint string) ([]otlptracehttp.Option, error) {
	if !strings.Contains(endpoint, "://") {
		return []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		}, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid trace endpoint %q", endpoint)
	}
	if u.Host == "" {
		return nil, errors.Errorf("invalid trace endpoint %q: missing host", endpoint)
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(u.Host)}
	switch u.Scheme {
	case "http":
		opts = append(opts, otlptracehttp.WithInsecure())
	case "https":
	default:
		return nil, errors.Errorf("invalid trace endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Path != "" && u.Path != "/" {
		opts = append(opts, otlptracehttp.WithURLPath(u.Path))
	}
	return opts, nil
}

// GetTracer returns the retrobuffer tracer of the global provider.
func GetTracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}
