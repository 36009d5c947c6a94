// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watermark

import "context"

// Store loads and saves per-agent watermarks.
type Store interface {
	// Load returns the saved block for agent. found is false when
	// nothing was ever saved.
	Load(ctx context.Context, agent string) (block uint64, found bool, err error)

	// Save records block for agent.
	Save(ctx context.Context, agent string, block uint64) error

	Close() error
}
