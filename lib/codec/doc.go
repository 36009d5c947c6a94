// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR configuration for state the agent keeps on
// local disk.
//
// External interfaces (JSON-RPC, the confirmation service, HTTP routes)
// speak JSON. Local state files, currently the block watermark file
// used when Redis is disabled, are CBOR with Core Deterministic
// Encoding (RFC 8949 §4.2): the same logical state always produces the
// same bytes, so an unchanged state never rewrites a file with
// different content.
//
// [WriteFile] replaces a state file atomically (temporary file plus
// rename in the same directory); [ReadFile] reports a missing file as
// fs.ErrNotExist so callers can treat it as empty state.
package codec
