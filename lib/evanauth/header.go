// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evanauth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// HeaderName is the HTTP header carrying the credentials.
const HeaderName = "Authorization"

const (
	keyAccount   = "EvanAuth"
	keyMessage   = "EvanMessage"
	keySignature = "EvanSignedMessage"
	keyIdentity  = "EvanIdentity"
)

// Components are the parsed parts of an Authorization header. After
// Authenticate succeeds, Account is proven to have signed Message.
type Components struct {
	Account   common.Address
	Message   string
	Signature string

	// Identity is the claimed identity, or the zero address when the
	// header carried none.
	Identity common.Address
}

// HasIdentity reports whether the header claimed an identity.
func (c *Components) HasIdentity() bool { return c.Identity != (common.Address{}) }

// ParseHeader splits value into its components. Components are
// separated by commas; each is a key, one space, and a value.
func ParseHeader(value string) (Components, error) {
	if strings.TrimSpace(value) == "" {
		return Components{}, ErrMissingHeader
	}

	fields := make(map[string]string, 4)
	for _, part := range strings.Split(value, ",") {
		key, fieldValue, _ := strings.Cut(strings.TrimSpace(part), " ")
		fields[key] = strings.TrimSpace(fieldValue)
	}

	var components Components
	for _, key := range []string{keyAccount, keyMessage, keySignature} {
		if fields[key] == "" {
			return Components{}, fmt.Errorf("%w: missing %s", ErrMalformedHeader, key)
		}
	}
	if !common.IsHexAddress(fields[keyAccount]) {
		return Components{}, fmt.Errorf("%w: %s is not an address", ErrMalformedHeader, keyAccount)
	}
	components.Account = common.HexToAddress(fields[keyAccount])
	components.Message = fields[keyMessage]
	components.Signature = fields[keySignature]

	if identity := fields[keyIdentity]; identity != "" {
		if !common.IsHexAddress(identity) {
			return Components{}, fmt.Errorf("%w: %s is not an address", ErrMalformedHeader, keyIdentity)
		}
		components.Identity = common.HexToAddress(identity)
	}
	return components, nil
}

// Format renders c as an Authorization header value.
func (c Components) Format() string {
	parts := []string{
		keyAccount + " " + c.Account.Hex(),
		keyMessage + " " + c.Message,
		keySignature + " " + c.Signature,
	}
	if c.HasIdentity() {
		parts = append(parts, keyIdentity+" "+c.Identity.Hex())
	}
	return strings.Join(parts, ",")
}
