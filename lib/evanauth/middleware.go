// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evanauth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

type contextKey struct{}

// WithComponents returns a context carrying authenticated components.
func WithComponents(ctx context.Context, components *Components) context.Context {
	return context.WithValue(ctx, contextKey{}, components)
}

// FromContext returns the components stored by Middleware, or nil.
func FromContext(ctx context.Context) *Components {
	components, _ := ctx.Value(contextKey{}).(*Components)
	return components
}

// Middleware authenticates every request with verifier, rejecting
// failures with WriteError and passing authenticated components to the
// next handler through the request context.
func Middleware(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			components, err := verifier.Authenticate(r.Header)
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithComponents(r.Context(), components)))
		})
	}
}

// StatusCode maps err to an HTTP status: 401 for authentication
// failures, 403 for authorization failures, 500 otherwise.
func StatusCode(err error) int {
	switch {
	case IsAuthenticationError(err):
		return http.StatusUnauthorized
	case IsAuthorizationError(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON error response.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "identity lookup failed"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": message})
}

type identityKey struct{}

// WithIdentity returns a context carrying the identity an authenticated
// account acts for.
func WithIdentity(ctx context.Context, identity common.Address) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (common.Address, bool) {
	identity, ok := ctx.Value(identityKey{}).(common.Address)
	return identity, ok
}
