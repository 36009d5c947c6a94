// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"log/slog"
	"time"
)

// DefaultTimeout bounds every wait that does not name its own.
const DefaultTimeout = 5 * time.Second

// TB is the part of testing.TB the helpers use.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within DefaultTimeout, or
// fails the test.
//
//	err := testutil.RequireReceive(t, done, "check finished")
func RequireReceive[T any](t TB, ch <-chan T, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-time.After(DefaultTimeout):
		t.Fatalf("timed out after %v: %s", DefaultTimeout, formatMessage(msgAndArgs))
	}
	panic("unreachable")
}

// RequireClosed waits for ch to be closed within DefaultTimeout, or
// fails the test.
func RequireClosed(t TB, ch <-chan struct{}, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(DefaultTimeout):
		t.Fatalf("timed out after %v waiting for channel close: %s", DefaultTimeout, formatMessage(msgAndArgs))
	}
}

// Eventually polls condition until it holds, failing the test after
// DefaultTimeout.
func Eventually(t TB, condition func() bool, msgAndArgs ...any) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met after %v: %s", DefaultTimeout, formatMessage(msgAndArgs))
		}
		time.Sleep(time.Millisecond)
	}
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// formatMessage accepts a single value or a format string and args.
func formatMessage(msgAndArgs []any) string {
	switch {
	case len(msgAndArgs) == 0:
		return "(no message)"
	case len(msgAndArgs) == 1:
		return fmt.Sprint(msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}
