// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret keeps account private keys out of the Go heap.
//
// [Buffer] allocates memory with mmap(MAP_ANONYMOUS), locks it into RAM
// with mlock and excludes it from core dumps with
// madvise(MADV_DONTDUMP). Close zeroes, unlocks and unmaps it. Private
// keys enter the process as hex strings (config file, ETH_ACCOUNTS,
// sealed accounts file); [NewFromHex] decodes them straight into a
// Buffer so the raw key bytes never live on the heap.
package secret
