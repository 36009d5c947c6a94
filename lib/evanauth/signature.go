// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evanauth

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverFunc returns the address that produced signature over
// message.
type RecoverFunc func(message, signature string) (common.Address, error)

// Recover returns the signer of an EIP-191 personal-message signature.
// A message with a 0x prefix that decodes as hex is hashed as the
// decoded bytes, matching web3's accounts.recover; anything else is
// hashed as UTF-8 text. The recovery byte may be 0/1 or 27/28.
func Recover(message, signature string) (common.Address, error) {
	raw, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("decoding signature: %w", err)
	}
	if len(raw) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature is %d bytes, want %d", len(raw), crypto.SignatureLength)
	}
	if raw[crypto.RecoveryIDOffset] >= 27 {
		raw[crypto.RecoveryIDOffset] -= 27
	}
	if raw[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id %d", raw[crypto.RecoveryIDOffset])
	}

	publicKey, err := crypto.SigToPub(accounts.TextHash(messageBytes(message)), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering public key: %w", err)
	}
	return crypto.PubkeyToAddress(*publicKey), nil
}

// Sign produces an EIP-191 personal-message signature of message with
// the recovery byte in 27/28 form.
func Sign(message string, key *ecdsa.PrivateKey) (string, error) {
	signature, err := crypto.Sign(accounts.TextHash(messageBytes(message)), key)
	if err != nil {
		return "", err
	}
	signature[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(signature), nil
}

func messageBytes(message string) []byte {
	if strings.HasPrefix(message, "0x") || strings.HasPrefix(message, "0X") {
		if decoded, err := hexutil.Decode(message); err == nil {
			return decoded
		}
	}
	return []byte(message)
}
