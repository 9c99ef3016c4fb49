// Package errs defines the failures that abort a run.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// ParseHint is appended to every ParseError message.
const ParseHint = "classes compiled for a newer class file version than supported cannot be processed"

// ConfigError is a missing or invalid configuration value, including two
// inputs that define the same class.
type ConfigError struct {
	Key string
	Err error
}

// Configf creates a ConfigError for key.
func Configf(key, format string, args ...any) *ConfigError {
	return &ConfigError{Key: key, Err: errors.Errorf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config: %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ParseError is a class file that could not be decoded.
type ParseError struct {
	Path string // relative to the input root
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to analyze class '%s': %v (%s)", e.Path, e.Err, ParseHint)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IOError is a failed filesystem operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

// IO wraps err as an IOError, or returns nil when err is nil.
func IO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// TransformError is an internal failure while rewriting a class.
type TransformError struct {
	Class string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("failed to backport class %s: %v", e.Class, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Kind names the category of err for diagnostics.
func Kind(err error) string {
	var (
		cfg *ConfigError
		prs *ParseError
		ioe *IOError
		trn *TransformError
	)
	switch {
	case errors.As(err, &cfg):
		return "configuration"
	case errors.As(err, &prs):
		return "parse"
	case errors.As(err, &ioe):
		return "io"
	case errors.As(err, &trn):
		return "transform"
	}
	return "internal"
}
