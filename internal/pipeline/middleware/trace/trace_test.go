package trace

import (
	stdctx "context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/blacktop/retrobuffer/internal/context"
)

type key struct{}

func TestSpanRestoresContext(t *testing.T) {
	ctx := context.Wrap(stdctx.WithValue(stdctx.Background(), key{}, "v"), nil)
	parent := ctx.Context

	err := Span("test", func(ctx *context.Context) error {
		assert.Equal(t, "v", ctx.Value(key{}))
		return errors.New("boom")
	})(ctx)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, parent, ctx.Context)
}

func TestSpanRecordsRun(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.New(nil)
	ctx.Version = "1.2.3"
	err := Span("rewriting", func(ctx *context.Context) error {
		ctx.Stats.Classes.Store(4)
		ctx.Stats.Sites.Store(2)
		return errors.New("boom")
	})(ctx)
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "rewriting", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	attrs := attribute.NewSet(spans[0].Attributes()...)
	version, ok := attrs.Value("version")
	require.True(t, ok)
	assert.Equal(t, "1.2.3", version.AsString())
	classes, _ := attrs.Value("classes")
	assert.EqualValues(t, 4, classes.AsInt64())
	sites, _ := attrs.Value("sites")
	assert.EqualValues(t, 2, sites.AsInt64())
}
