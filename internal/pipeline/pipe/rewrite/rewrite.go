// Package rewrite is the second phase of a run: it rewrites every registered
// class and writes it under its qualified name.
package rewrite

import (
	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/blacktop/retrobuffer/internal/classpath"
	"github.com/blacktop/retrobuffer/internal/context"
	"github.com/blacktop/retrobuffer/internal/output"
	"github.com/blacktop/retrobuffer/internal/pipe"
	"github.com/blacktop/retrobuffer/internal/registry"
	rw "github.com/blacktop/retrobuffer/internal/rewrite"
	"github.com/blacktop/retrobuffer/internal/utils"
	"github.com/blacktop/retrobuffer/pkg/classfile"
)

// Pipe for rewrite.
type Pipe struct{}

// String returns the description of the pipe.
func (Pipe) String() string { return "rewriting java.nio.Buffer invocations" }

// Run rewrites the registered classes, ctx.Parallelism at a time.
func (Pipe) Run(ctx *context.Context) error {
	if ctx.Registry == nil || ctx.Registry.Len() == 0 {
		return pipe.Skipf("no classes under %s", ctx.Config.InputDir)
	}
	cp, err := classpath.New(ctx.Registry, ctx.Config.Classpath)
	if err != nil {
		return err
	}
	defer cp.Close()

	rewriter := rw.New(cp, classfile.Options{MaxMajor: uint16(ctx.Config.MaxClassVersion)})
	out := output.New(ctx.Config.OutputDir)
	out.DryRun = ctx.DryRun

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ctx.Parallelism)
	for _, a := range ctx.Registry.Ordered() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return process(ctx, rewriter, out, a)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	hits, misses := cp.Stats()
	log.WithFields(log.Fields{
		"hits":   hits,
		"misses": misses,
	}).Debug("classpath lookups")
	for _, r := range ctx.Reports() {
		utils.Indent(log.WithField("sites", len(r.Sites)).Debug, 2)(r.Class)
	}
	log.Infof("rewrote %s call %s in %s %s (%s written)",
		humanize.Comma(ctx.Stats.Sites.Load()), utils.Plural(ctx.Stats.Sites.Load(), "site", "sites"),
		humanize.Comma(ctx.Stats.Rewritten.Load()), utils.Plural(ctx.Stats.Rewritten.Load(), "class", "classes"),
		humanize.Bytes(uint64(ctx.Stats.BytesOut.Load())))
	return nil
}

func process(ctx *context.Context, rewriter *rw.Rewriter, out *output.Dir, a *registry.Artifact) error {
	data, report, err := rewriter.Rewrite(a)
	if err != nil {
		return err
	}
	for _, s := range report.Sites {
		log.WithFields(log.Fields{
			"class":  a.Name,
			"method": s.Method,
			"owner":  s.From.Owner,
			"name":   s.From.Name,
			"desc":   s.From.Descriptor,
		}).Info("transforming java.nio.Buffer invocation")
	}
	if report.Changed() {
		ctx.AddReport(report)
		ctx.Stats.Rewritten.Add(1)
		ctx.Stats.Sites.Add(int64(len(report.Sites)))
	}
	if _, err := out.WriteClass(data); err != nil {
		return err
	}
	ctx.Stats.BytesOut.Add(int64(len(data)))
	return nil
}
