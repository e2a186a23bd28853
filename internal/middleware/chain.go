// Package middleware provides the HTTP middleware used by the watch daemon.
package middleware

import (
	"net/http"
	"slices"
)

// Middleware wraps an http.Handler.
type Middleware = func(http.Handler) http.Handler

// Chain is an immutable, ordered list of middleware. The first entry is the
// outermost wrapper.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a chain from middlewares.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: slices.Clone(middlewares)}
}

// Then wraps handler in the chain. A nil handler answers 404.
func (c *Chain) Then(handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	for _, mw := range slices.Backward(c.middlewares) {
		handler = mw(handler)
	}
	return handler
}

// ThenFunc is Then for a handler function.
func (c *Chain) ThenFunc(fn http.HandlerFunc) http.Handler {
	return c.Then(fn)
}

// Append returns a new chain with middlewares added innermost.
func (c *Chain) Append(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: slices.Concat(c.middlewares, middlewares)}
}

// Prepend returns a new chain with middlewares added outermost.
func (c *Chain) Prepend(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: slices.Concat(middlewares, c.middlewares)}
}

// ApplyFunc wraps fn in middlewares.
func ApplyFunc(fn http.HandlerFunc, middlewares ...Middleware) http.Handler {
	return NewChain(middlewares...).ThenFunc(fn)
}
