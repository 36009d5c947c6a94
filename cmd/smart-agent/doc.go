// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// smart-agent runs one or more blockchain agents in a single process.
//
// It keeps a websocket JSON-RPC connection to the chain alive, starts
// every configured agent (mail event processing and payment channel
// upkeep), and serves the HTTP API with per-agent authentication
// middlewares.
//
// Usage:
//
//	smart-agent [--config path] [--listen addr] [--log-level level]
//	smart-agent seal-accounts --recipient age1... [--output file] accounts.json
//	smart-agent --version
//
// Without --config the file named by SMART_AGENT_CONFIG is used.
package main
