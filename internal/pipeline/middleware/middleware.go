// Package middleware define middlewares for Jobs.
package middleware

import "github.com/blacktop/retrobuffer/internal/context"

// Action is a function that takes a context and returns an error.
// Every pipe's Run is an Action, wrapped by the middlewares in this tree.
type Action func(ctx *context.Context) error
