// Package scan is the first phase of a run: it enumerates the input root and
// registers every class.
package scan

import (
	"os"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/blacktop/retrobuffer/internal/context"
	"github.com/blacktop/retrobuffer/internal/errs"
	"github.com/blacktop/retrobuffer/internal/registry"
	"github.com/blacktop/retrobuffer/internal/walk"
	"github.com/blacktop/retrobuffer/pkg/classfile"
)

// Pipe for scan.
type Pipe struct{}

// String returns the description of the pipe.
func (Pipe) String() string { return "scanning input classes" }

// Run walks the input root.
func (Pipe) Run(ctx *context.Context) error {
	entries, err := walk.Enumerate(ctx.Config.InputDir)
	if err != nil {
		return err
	}
	ctx.Classes, ctx.Resources = walk.Split(entries)

	if ctx.Registry, err = register(ctx); err != nil {
		return err
	}
	ctx.Stats.Classes.Store(int64(ctx.Registry.Len()))
	ctx.Stats.Resources.Store(int64(len(ctx.Resources)))
	log.Infof("registered %s classes (%s interfaces, %s)",
		humanize.Comma(int64(ctx.Registry.Len())),
		humanize.Comma(int64(ctx.Registry.Interfaces())),
		humanize.Bytes(uint64(ctx.Stats.BytesIn.Load())))
	return nil
}

// register parses the classes in parallel and adds them in path order, so a
// duplicate is always reported against the same pair of files.
func register(ctx *context.Context) (*registry.Registry, error) {
	opts := classfile.Options{MaxMajor: uint16(ctx.Config.MaxClassVersion)}
	parsed := make([]*registry.Artifact, len(ctx.Classes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ctx.Parallelism)
	for i, e := range ctx.Classes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(e.Abs)
			if err != nil {
				return errs.IO("read", e.Rel, err)
			}
			a, err := registry.Parse(e.Rel, data, opts)
			if err != nil {
				return err
			}
			ctx.Stats.BytesIn.Add(int64(len(data)))
			parsed[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := registry.NewBuilder()
	for _, a := range parsed {
		log.WithFields(log.Fields{
			"class": a.Name,
			"path":  a.Path,
		}).Debug("registered")
		if err := b.Add(a); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
