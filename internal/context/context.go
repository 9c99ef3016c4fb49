// Package context provides the retrobuffer context which is passed through
// the pipeline.
//
// The context extends the standard library context and adds the state one
// run accumulates, so pipes can use what previous pipes produced without
// knowing each other.
package context

import (
	stdctx "context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/blacktop/retrobuffer/internal/config"
	"github.com/blacktop/retrobuffer/internal/registry"
	"github.com/blacktop/retrobuffer/internal/rewrite"
	"github.com/blacktop/retrobuffer/internal/walk"
)

// Stats counts what a run processed. Fields are updated concurrently.
type Stats struct {
	Classes   atomic.Int64
	Resources atomic.Int64
	Rewritten atomic.Int64 // classes with at least one rewritten call
	Sites     atomic.Int64
	BytesIn   atomic.Int64
	BytesOut  atomic.Int64
}

// Context carries along some data through the pipes.
type Context struct {
	stdctx.Context
	Config      *config.Config
	Version     string
	Parallelism int
	// DryRun reports rewrites without writing anything.
	DryRun bool

	// Classes and Resources are the input entries, filled in by the scan pipe.
	Classes   []walk.Entry
	Resources []walk.Entry
	Registry  *registry.Registry
	Stats     Stats

	mu      sync.Mutex
	reports []*rewrite.Report
}

// New context.
func New(cfg *config.Config) *Context {
	return Wrap(stdctx.Background(), cfg)
}

// Wrap wraps an existing context.
func Wrap(ctx stdctx.Context, cfg *config.Config) *Context {
	parallelism := 1
	if cfg != nil && cfg.Jobs > 0 {
		parallelism = cfg.Jobs
	}
	return &Context{
		Context:     ctx,
		Config:      cfg,
		Parallelism: parallelism,
	}
}

// AddReport records the rewrites of one class.
func (ctx *Context) AddReport(r *rewrite.Report) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.reports = append(ctx.reports, r)
}

// Reports returns the recorded reports sorted by class name.
func (ctx *Context) Reports() []*rewrite.Report {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	out := append([]*rewrite.Report(nil), ctx.reports...)
	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}
