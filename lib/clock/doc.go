// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the agent
// runtime.
//
// Every component that waits (the transport reconnect delay and send
// polling, the websocket keepalive, the payment channel settle delay and
// schedule, the identity cache expiry, signature freshness checks)
// receives a Clock at construction time instead of calling the time
// package directly. Production wiring passes Real(); tests pass a
// FakeClock and drive it with Advance.
//
// A goroutine that calls Sleep, After, or NewTicker on a FakeClock
// registers a pending waiter. Tests call WaitForTimers before Advance
// so that the waiter is known to exist when time moves:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go supervisor.Run(ctx)
//	fake.WaitForTimers(1)
//	fake.Advance(time.Second)
package clock
