// Package resources copies every file that is not a class to the output root.
package resources

import (
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"

	"github.com/blacktop/retrobuffer/internal/context"
	"github.com/blacktop/retrobuffer/internal/errs"
	"github.com/blacktop/retrobuffer/internal/output"
	"github.com/blacktop/retrobuffer/internal/pipe"
)

// Pipe for resources.
type Pipe struct{}

// String returns the description of the pipe.
func (Pipe) String() string { return "copying resources" }

// Skip skips the pipe when the input holds nothing but classes.
func (Pipe) Skip(ctx *context.Context) bool {
	return len(ctx.Resources) == 0
}

// Run copies the resources found by the scan pipe byte for byte.
func (Pipe) Run(ctx *context.Context) error {
	if samePath(ctx.Config.InputDir, ctx.Config.OutputDir) {
		return pipe.Skip("in-place run leaves resources in place")
	}
	out := output.New(ctx.Config.OutputDir)
	out.DryRun = ctx.DryRun

	var size int64
	for _, e := range ctx.Resources {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(e.Abs)
		if err != nil {
			return errs.IO("read", e.Rel, err)
		}
		if _, err := out.WriteResource(e.Rel, data); err != nil {
			return err
		}
		size += e.Size
	}
	log.Infof("copied %s resources (%s)", humanize.Comma(int64(len(ctx.Resources))), humanize.Bytes(uint64(size)))
	return nil
}

func samePath(a, b string) bool {
	aa, err := filepath.Abs(a)
	if err != nil {
		return false
	}
	bb, err := filepath.Abs(b)
	if err != nil {
		return false
	}
	return aa == bb
}
