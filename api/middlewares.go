// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/mux"
)

// EnsureEvanAuth names the middleware that verifies the Authorization
// header without any identity check.
const EnsureEvanAuth = "ensureEvanAuth"

// Middlewares is a registry of named middlewares.
type Middlewares struct {
	mutex  sync.RWMutex
	named  map[string]mux.MiddlewareFunc
	logger *slog.Logger
}

func newMiddlewares(logger *slog.Logger) *Middlewares {
	return &Middlewares{named: make(map[string]mux.MiddlewareFunc), logger: logger}
}

// Register adds middleware under name. Names are unique.
func (m *Middlewares) Register(name string, middleware mux.MiddlewareFunc) error {
	if name == "" || middleware == nil {
		return fmt.Errorf("api: middleware needs a name and a function")
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.named[name]; exists {
		return fmt.Errorf("api: middleware %q is already registered", name)
	}
	m.named[name] = middleware
	m.logger.Debug("middleware registered", "middleware", name)
	return nil
}

// Names returns the registered names, sorted.
func (m *Middlewares) Names() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.named))
	for name := range m.named {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Middlewares) lookup(name string) (mux.MiddlewareFunc, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	middleware, ok := m.named[name]
	return middleware, ok
}

// Use returns a middleware that applies the one registered under name.
// The lookup happens per request; a name that is still unregistered
// fails the request with 500.
func (m *Middlewares) Use(name string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			middleware, ok := m.lookup(name)
			if !ok {
				m.logger.Error("route uses unregistered middleware", "middleware", name, "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError, errorResponse("server misconfigured"))
				return
			}
			middleware(next).ServeHTTP(w, r)
		})
	}
}
