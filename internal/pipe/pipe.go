// Package pipe holds the errors pipes use to stop without failing a run.
package pipe

import (
	"fmt"

	"github.com/pkg/errors"
)

// IsSkip returns true if the error is an ErrSkip.
func IsSkip(err error) bool {
	return errors.As(err, &ErrSkip{})
}

// ErrSkip occurs when a pipe is skipped for some reason.
type ErrSkip struct {
	reason string
}

// Error implements the error interface. returns the reason the pipe was skipped.
func (e ErrSkip) Error() string {
	return e.reason
}

// Skip skips this pipe with the given reason.
func Skip(reason string) ErrSkip {
	return ErrSkip{reason: reason}
}

// Skipf skips this pipe with a formatted reason.
func Skipf(format string, args ...any) ErrSkip {
	return ErrSkip{reason: fmt.Sprintf(format, args...)}
}
