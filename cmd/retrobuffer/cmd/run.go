/*
Copyright © 2024 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	stdctx "context"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/apex/log"
	"github.com/caarlos0/ctrlc"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/blacktop/retrobuffer/internal/config"
	"github.com/blacktop/retrobuffer/internal/context"
	"github.com/blacktop/retrobuffer/internal/pipeline"
	"github.com/blacktop/retrobuffer/internal/telemetry"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rewrite the input classes (default command)",
	Example: heredoc.Doc(`
		❯ retrobuffer run --input-dir build/classes --output-dir build/classes-java8 \
			--classpath "$JAVA8_HOME/jre/lib/rt.jar"`),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runE,
}

func runE(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx, err := execute(false)
	if err != nil {
		return err
	}
	log.WithField("took", time.Since(start).Round(time.Millisecond)).
		Infof("backported %d of %d classes", ctx.Stats.Rewritten.Load(), ctx.Stats.Classes.Load())
	return nil
}

// execute loads the configuration and runs the pipeline once.
func execute(dryRun bool) (*context.Context, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Init(stdctx.Background(), telemetry.FromConfig(cfg, AppVersion, dryRun))
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize tracing")
	}
	defer shutdown()

	parent, span := telemetry.GetTracer().Start(stdctx.Background(), "retrobuffer")
	defer span.End()

	var (
		inner  stdctx.Context
		cancel stdctx.CancelFunc
	)
	if cfg.Timeout > 0 {
		inner, cancel = stdctx.WithTimeout(parent, cfg.Timeout)
	} else {
		inner, cancel = stdctx.WithCancel(parent)
	}
	defer cancel()

	ctx := context.Wrap(inner, cfg)
	ctx.Version = AppVersion
	ctx.DryRun = dryRun

	if err := ctrlc.Default.Run(ctx, func() error {
		return pipeline.Run(ctx)
	}); err != nil {
		if errors.As(err, &ctrlc.ErrorCtrlC{}) {
			log.Warn("interrupted, the output directory is incomplete")
		}
		span.RecordError(err)
		return ctx, err
	}
	return ctx, nil
}
