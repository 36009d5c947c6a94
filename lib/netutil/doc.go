// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small helpers shared by the HTTP and websocket
// clients: bounded response reading, error body extraction for log
// messages, and classification of connection teardown errors.
package netutil
