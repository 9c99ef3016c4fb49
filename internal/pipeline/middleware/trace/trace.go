// Package trace wraps pipes in OpenTelemetry spans.
package trace

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/blacktop/retrobuffer/internal/context"
	"github.com/blacktop/retrobuffer/internal/pipeline/middleware"
	"github.com/blacktop/retrobuffer/internal/telemetry"
)

// Span runs next inside a span named name. The span is a no-op unless
// telemetry was initialized.
func Span(name string, next middleware.Action) middleware.Action {
	return func(ctx *context.Context) error {
		parent := ctx.Context
		spanCtx, span := telemetry.GetTracer().Start(parent, name)
		defer span.End()

		ctx.Context = spanCtx
		defer func() { ctx.Context = parent }()

		err := next(ctx)
		span.SetAttributes(
			attribute.String("version", ctx.Version),
			attribute.Int64("classes", ctx.Stats.Classes.Load()),
			attribute.Int64("resources", ctx.Stats.Resources.Load()),
			attribute.Int64("sites", ctx.Stats.Sites.Load()),
			attribute.Int64("bytes_in", ctx.Stats.BytesIn.Load()),
			attribute.Int64("bytes_out", ctx.Stats.BytesOut.Load()),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}
