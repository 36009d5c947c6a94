// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed reads and writes age-encrypted account files.
//
// An accounts file maps account addresses to hex private keys. Keeping
// it in plaintext on disk is discouraged; operators seal it to an age
// X25519 recipient (`smart-agent seal-accounts`) and point the
// configuration at the sealed file plus the identity file that can open
// it. Both ASCII-armored and binary age files are accepted.
//
// Identities and decrypted plaintext are returned as *secret.Buffer
// values so that neither the age private key nor the account keys are
// left on the Go heap.
package sealed
