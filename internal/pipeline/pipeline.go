// Package pipeline lists the phases of a run.
package pipeline

import (
	"fmt"

	"github.com/blacktop/retrobuffer/internal/context"
	"github.com/blacktop/retrobuffer/internal/pipeline/middleware/errhandler"
	"github.com/blacktop/retrobuffer/internal/pipeline/middleware/logging"
	"github.com/blacktop/retrobuffer/internal/pipeline/middleware/skip"
	"github.com/blacktop/retrobuffer/internal/pipeline/middleware/trace"
	"github.com/blacktop/retrobuffer/internal/pipeline/pipe/resources"
	"github.com/blacktop/retrobuffer/internal/pipeline/pipe/rewrite"
	"github.com/blacktop/retrobuffer/internal/pipeline/pipe/scan"
)

// Job defines a pipe, which can be part of a pipeline (a series of pipes).
type Job interface {
	fmt.Stringer

	// Run the pipe
	Run(ctx *context.Context) error
}

// Pipeline contains all pipe implementations in order.
// Every class is registered before the first one is rewritten.
var Pipeline = []Job{
	scan.Pipe{},
	resources.Pipe{},
	rewrite.Pipe{},
}

// Run runs every job of the pipeline in order, stopping at the first error.
func Run(ctx *context.Context) error {
	for _, job := range Pipeline {
		if err := skip.Maybe(
			job,
			logging.Log(
				job.String(),
				trace.Span(job.String(), errhandler.Handle(job.Run)),
			),
		)(ctx); err != nil {
			return err
		}
	}
	return nil
}
