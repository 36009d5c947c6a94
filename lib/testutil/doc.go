// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireClosed] and [Eventually] are the only
// places in the test suite that wait on the wall clock: they bound how
// long a test waits for a goroutine to reach a state, and fail the
// test instead of hanging it. Time-dependent behavior under test is
// driven by the fake clock in lib/clock.
//
// All helpers call t.Fatalf on failure; test setup failures are not
// recoverable.
package testutil
