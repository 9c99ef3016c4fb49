package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blacktop/retrobuffer/internal/config"
)

func TestInitDisabled(t *testing.T) {
	cleanup, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	cleanup()
}

func TestInitUnreachableCollector(t *testing.T) {
	ctx := context.Background()
	cleanup, err := Init(ctx, Config{
		Enabled:  true,
		Endpoint: "127.0.0.1:37999",
		InputDir: "classes",
	})
	require.NoError(t, err)
	defer cleanup()

	tracer := GetTracer()
	require.NotNil(t, tracer)
	_, span := tracer.Start(ctx, "test-span")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitBadEndpoint(t *testing.T) {
	_, err := Init(context.Background(), Config{Enabled: true, Endpoint: "ftp://collector:21"})
	assert.ErrorContains(t, err, "scheme must be http or https")
}

func TestEndpointOptions(t *testing.T) {
	tests := []struct {
		endpoint string
		opts     int
		err      string
	}{
		{endpoint: "localhost:4318", opts: 2},
		{endpoint: "http://collector:4318", opts: 2},
		{endpoint: "https://collector/otlp/v1/traces", opts: 2},
		{endpoint: "http://collector:4318/custom", opts: 3},
		{endpoint: "http:///v1/traces", err: "missing host"},
		{endpoint: "grpc://collector:4317", err: "scheme must be http or https"},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			opts, err := endpointOptions(tt.endpoint)
			if tt.err != "" {
				assert.ErrorContains(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, opts, tt.opts)
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{InputDir: "build/classes", OutputDir: "build/classes", Jobs: 8}
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "localhost:4318"

	c := FromConfig(cfg, "1.2.3", true)
	assert.True(t, c.Enabled)
	assert.Equal(t, "localhost:4318", c.Endpoint)

	attrs := attribute.NewSet(attributes(c)...)
	for key, want := range map[attribute.Key]attribute.Value{
		"service.name":           attribute.StringValue("retrobuffer"),
		"service.version":        attribute.StringValue("1.2.3"),
		"retrobuffer.input_dir":  attribute.StringValue("build/classes"),
		"retrobuffer.output_dir": attribute.StringValue("build/classes"),
		"retrobuffer.in_place":   attribute.BoolValue(true),
		"retrobuffer.jobs":       attribute.IntValue(8),
		"retrobuffer.dry_run":    attribute.BoolValue(true),
	} {
		got, ok := attrs.Value(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
}

func TestAttributesDefaultVersion(t *testing.T) {
	set := attribute.NewSet(attributes(Config{})...)
	got, ok := set.Value("service.version")
	require.True(t, ok)
	assert.Equal(t, "dev", got.AsString())
}
