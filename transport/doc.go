// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport keeps the agent's JSON-RPC connection to the chain
// alive and its event subscriptions flowing across connection drops.
//
// A [Supervisor] owns exactly one connection handle at a time. The
// handle is connecting while a dial is in flight, open while the socket
// is usable, and closed once the socket reports a failure or the handle
// is retired because [Supervisor.Connect] was called with a different
// URL. Handles are replaced, never reused.
//
// [Supervisor.Call] never drops a request. On an open handle it sends
// immediately. On a connecting handle it polls every 100 ms until the
// dial settles. On a closed handle it triggers a reconnect and parks
// the caller on a FIFO list that is released once the replacement
// handle is open and every subscription has been restored; the call is
// then replayed. A request that fails with [ErrConnectionLost] while in
// flight is replayed the same way. Parked callers are only released by
// a successful reconnect (or their own context, or Close); a dead
// endpoint is never reported to them as a permanent failure.
//
// Reconnects are single-flight. The reconnect loop waits a fixed delay
// (1 s by default), tears down the previous handle, dials a new one and
// retries forever on failure. Once the new handle is open it walks
// every [SubscriptionOwner] returned by the configured [OwnerSource]
// and reissues each [Subscription] against the new connection.
//
// A Subscription is one standing eth_subscribe("logs") registration
// for a contract event. Reissuing is idempotent: the record drops its
// routing entry on the old connection, clears its registration id,
// registers on the new connection and backfills with eth_getLogs from
// its watermark block. Each record remembers the position (block,
// index) of the last log it delivered and suppresses anything at or
// before it, so reissuing any number of times yields one registration
// and no duplicate deliveries. Logs are delivered from a per-record
// goroutine so that a slow consumer never stalls the socket reader.
//
// The wire implementation is [WebsocketDialer] (gorilla/websocket,
// JSON-RPC 2.0, periodic ping). Tests substitute an in-memory [Dialer].
package transport
