// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity decides which on-chain identity an authenticated
// account is acting for, and whether it may.
//
// An account acts for itself unless the user registry maps it to an
// identity contract that has a registered profile. When the effective
// identity differs from the account, the identity's key holder must
// grant the account the required purpose. Registry, profile and
// permission answers are cached in bounded TTL caches driven by an
// injected clock.
package identity
