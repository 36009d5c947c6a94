// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// NewFromHex decodes a hex string (with or without 0x prefix) into a
// new Buffer. The decoded bytes are written directly into locked
// memory.
func NewFromHex(encoded string) (*Buffer, error) {
	encoded = strings.TrimPrefix(strings.TrimSpace(encoded), "0x")
	if encoded == "" {
		return nil, fmt.Errorf("secret: empty hex value")
	}
	if len(encoded)%2 != 0 {
		return nil, fmt.Errorf("secret: hex value has odd length %d", len(encoded))
	}
	buffer, err := New(len(encoded) / 2)
	if err != nil {
		return nil, err
	}
	if _, err := hex.Decode(buffer.data, []byte(encoded)); err != nil {
		buffer.Close()
		return nil, fmt.Errorf("secret: decoding hex value: %w", err)
	}
	return buffer, nil
}
