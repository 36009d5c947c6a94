// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the HTTP surface of the smart agent.
//
// Routes are served by a gorilla/mux router. Authentication is opt-in
// per route through named middlewares: "ensureEvanAuth" verifies the
// Authorization header only, and each agent registers its own
// middleware (for example "ensureSearchAuth") that also resolves and
// checks the identity the caller acts for. A route names the
// middlewares it needs; names are resolved when a request arrives, so
// routes may be declared before the agents that provide them start.
//
// Built-in routes:
//
//	GET /status         node health, version, transport state, agents
//	GET /authenticated  echoes the authenticated account (ensureEvanAuth)
//	GET /metrics        Prometheus exposition
package api
