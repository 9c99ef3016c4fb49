// Package errhandler turns skip errors into log lines.
package errhandler

import (
	"github.com/apex/log"

	"github.com/blacktop/retrobuffer/internal/context"
	"github.com/blacktop/retrobuffer/internal/pipe"
	"github.com/blacktop/retrobuffer/internal/pipeline/middleware"
)

// Handle handles an action error, ignoring and logging pipe skipped
// errors.
func Handle(action middleware.Action) middleware.Action {
	return func(ctx *context.Context) error {
		err := action(ctx)
		if err == nil {
			return nil
		}
		if pipe.IsSkip(err) {
			log.WithField("reason", err.Error()).Debug("pipe skipped")
			return nil
		}
		return err
	}
}
