// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watermark persists the last block each agent has finished
// processing, so event subscriptions resume where they stopped after a
// restart. The Redis store shares keys with other evan.network agents
// (<prefix>:<agent>:lastBlockOnboarding); the file store keeps every
// agent's watermark in one CBOR file for deployments without Redis.
package watermark
