// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package evanauth implements the signed Authorization header used
// between agents and their clients:
//
//	Authorization: EvanAuth <account>,EvanMessage <millis>,EvanSignedMessage <signature>[,EvanIdentity <identity>]
//
// EvanMessage is the signing time in milliseconds since the Unix epoch,
// written in decimal. EvanSignedMessage is an Ethereum personal-message
// signature (EIP-191) of EvanMessage by the account's key. A header is
// accepted for five minutes after its signing time.
//
// [Verifier.Authenticate] proves that the caller holds the key for
// EvanAuth. It does not check that the caller may act for EvanIdentity;
// that is an authorization question answered by lib/identity. Failures
// of the two kinds are distinguished by [Error.Kind] so HTTP handlers
// can answer 401 for one and 403 for the other.
//
// [Signer] produces fresh headers for outbound requests made on behalf
// of an agent.
package evanauth
