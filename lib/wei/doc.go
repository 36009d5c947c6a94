// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wei parses and carries token amounts as arbitrary-precision
// integers.
//
// Amounts reach the agent in several notations: decimal strings from
// configuration ("100000000000000000"), exponent notation copied from
// JavaScript-era configs and emitted by JSON serializers for large
// numbers ("1e17", 1e+21), and 0x-prefixed hex from JSON-RPC. [Parse]
// accepts all three and rejects anything that is not an exact
// non-negative integer. Floating point is never used for comparison;
// exponent notation is expanded with big.Float only to recover the
// integer it denotes, and the conversion must be exact.
package wei
