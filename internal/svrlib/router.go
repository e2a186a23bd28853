// Package svrlib provides common server routing utilities
package svrlib

import (
	"net/http"

	"github.com/jrschumacher/authsync/internal/config"
)

// Router wraps HTTP routing functionality with configuration
type Router struct {
	Config    *config.Config
	Mux       *http.ServeMux
	BaseRoute string
}

// NewRouter creates a new Router with the given mux, base route, and configuration
func NewRouter(mux *http.ServeMux, baseRoute string, cfg *config.Config) *Router {
	return &Router{cfg, mux, baseRoute}
}

// HandleFunc registers fn for GET requests on BaseRoute+path.
func (r *Router) HandleFunc(path string, fn http.HandlerFunc) {
	r.Mux.HandleFunc("GET "+r.BaseRoute+path, fn)
}

// Handle registers h for GET requests on BaseRoute+path.
func (r *Router) Handle(path string, h http.Handler) {
	r.Mux.Handle("GET "+r.BaseRoute+path, h)
}
