// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash computes BLAKE3 content digests of binaries.
//
// The agent reports the digest of its own executable at startup and on
// the status route so that operators can tell which build is running
// on a host independently of the version string, which is only as
// accurate as the ldflags used for the build.
package binhash
