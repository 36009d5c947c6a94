// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors exported by the
// smart agent runtime. All methods on *Metrics are safe to call on a
// nil receiver, so components built without metrics need no guards.
package metrics
