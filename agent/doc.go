// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent holds the per-identity state of the smart agent and
// the registry of active agents.
//
// A [Context] is one agent: an account, its private key, the identity
// contract it acts for, its payment channel settings, and the log
// subscriptions it owns. Variation between agents is configuration,
// not code: the only behavioral hook is the [MailHandler] that
// receives mail events addressed to the agent's identity.
//
// Initialize validates the configuration (a misconfigured agent never
// starts), resolves the identity, and starts the agent's background
// work:
//
//   - a [Queue] worker that runs event handlers strictly one at a time
//     in arrival order and persists the watermark of the last handled
//     block;
//   - the mail event subscription, backfilled from the persisted
//     watermark so no event is lost across restarts or reconnects;
//   - the payment channel scheduler.
//
// The [Registry] implements [transport.OwnerSource] so the transport
// supervisor can restore every agent's subscriptions after a
// reconnect.
package agent
