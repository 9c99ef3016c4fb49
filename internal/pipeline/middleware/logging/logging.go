// Package logging announces each pipe and indents the log lines it emits.
package logging

import (
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/fatih/color"

	"github.com/blacktop/retrobuffer/internal/context"
	"github.com/blacktop/retrobuffer/internal/pipeline/middleware"
)

// DefaultPadding is the left padding of top level log lines.
var DefaultPadding = cli.Default.Padding

const extraPadding = 3

var bold = color.New(color.Bold).SprintFunc()

// Log logs title and runs next with the cli handler padded one level deeper.
func Log(title string, next middleware.Action) middleware.Action {
	return func(ctx *context.Context) error {
		defer func() {
			cli.Default.Padding = DefaultPadding
		}()
		cli.Default.Padding = DefaultPadding
		log.Info(bold(title))
		cli.Default.Padding = DefaultPadding + extraPadding
		return next(ctx)
	}
}
