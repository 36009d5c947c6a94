// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evanauth

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/evannetwork/smartagent/lib/clock"
	"github.com/evannetwork/smartagent/lib/secret"
)

// Signer builds Authorization headers for requests made by an agent.
type Signer struct {
	Account common.Address

	// Identity is included as EvanIdentity when non-zero.
	Identity common.Address

	// Key is the account's raw secp256k1 private key. It is borrowed,
	// not owned.
	Key *secret.Buffer

	Clock clock.Clock
}

// Header returns a freshly signed header value for the current time.
func (s *Signer) Header() (string, error) {
	if s.Key == nil || s.Key.Len() == 0 {
		return "", errors.New("evanauth: signer has no key")
	}
	key, err := crypto.ToECDSA(s.Key.Bytes())
	if err != nil {
		return "", fmt.Errorf("evanauth: loading signing key: %w", err)
	}

	now := clock.Real().Now()
	if s.Clock != nil {
		now = s.Clock.Now()
	}
	message := strconv.FormatInt(now.UnixMilli(), 10)
	signature, err := Sign(message, key)
	if err != nil {
		return "", fmt.Errorf("evanauth: signing: %w", err)
	}

	components := Components{
		Account:   s.Account,
		Message:   message,
		Signature: signature,
		Identity:  s.Identity,
	}
	return components.Format(), nil
}
