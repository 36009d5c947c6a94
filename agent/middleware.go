// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/evannetwork/smartagent/lib/evanauth"
)

// MiddlewareRegistry holds named middlewares that routes opt into.
// *api.Middlewares implements it.
type MiddlewareRegistry interface {
	Register(name string, middleware mux.MiddlewareFunc) error
}

// RegisterAuthMiddleware registers the agent's auth middleware under
// name.
func (c *Context) RegisterAuthMiddleware(name string, registry MiddlewareRegistry) error {
	middleware, err := c.AuthMiddleware()
	if err != nil {
		return err
	}
	return registry.Register(name, middleware)
}

// AuthMiddleware authenticates the request's Authorization header and
// resolves the identity the caller acts for, requiring the agent's
// purpose when that identity is not the caller's own account. The
// components and the identity are passed on in the request context.
func (c *Context) AuthMiddleware() (mux.MiddlewareFunc, error) {
	verifier := c.dependencies.Verifier
	authorizer := c.dependencies.Authorizer
	if verifier == nil || authorizer == nil {
		return nil, errors.New("agent: auth middleware requires a verifier and an authorizer")
	}
	purpose := c.config.RequiredPurpose

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			components, err := verifier.Authenticate(r.Header)
			if err != nil {
				evanauth.WriteError(w, err)
				return
			}
			identity, err := authorizer.AuthorizeIdentity(r.Context(), components, purpose)
			if err != nil {
				if !evanauth.IsAuthenticationError(err) && !evanauth.IsAuthorizationError(err) {
					c.logger.Error("identity lookup failed", "account", components.Account.Hex(), "error", err)
				}
				evanauth.WriteError(w, err)
				return
			}
			ctx := evanauth.WithComponents(r.Context(), components)
			ctx = evanauth.WithIdentity(ctx, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}
