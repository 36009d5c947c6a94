// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Registry reads the user registry, the profile index and identity key
// holders.
type Registry struct {
	Client       *Client
	UserRegistry common.Address
	ProfileIndex common.Address
}

// IdentityOf returns the identity registered for account, or the zero
// address.
func (r *Registry) IdentityOf(ctx context.Context, account common.Address) (common.Address, error) {
	var identity common.Address
	err := r.call(ctx, r.UserRegistry, userRegistryContract, "getIdentityForAccount", &identity, account)
	return identity, err
}

// ProfileOf returns the profile registered for identity, or the zero
// address.
func (r *Registry) ProfileOf(ctx context.Context, identity common.Address) (common.Address, error) {
	var profile common.Address
	err := r.call(ctx, r.ProfileIndex, profileIndexContract, "getProfile", &profile, identity)
	return profile, err
}

// KeyHasPurpose asks identity's key holder whether account's key
// (keccak256 of the address) carries purpose.
func (r *Registry) KeyHasPurpose(ctx context.Context, identity, account common.Address, purpose uint64) (bool, error) {
	var allowed bool
	key := KeyForAccount(account)
	err := r.call(ctx, identity, keyHolderContract, "keyHasPurpose", &allowed, key, new(big.Int).SetUint64(purpose))
	return allowed, err
}

// KeyForAccount is the key holder key of account.
func KeyForAccount(account common.Address) [32]byte {
	return crypto.Keccak256Hash(account.Bytes())
}

func (r *Registry) call(ctx context.Context, contract common.Address, definition abi.ABI, method string, out any, args ...any) error {
	bound := bind.NewBoundContract(contract, definition, r.Client, r.Client, r.Client)
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &[]any{out}, method, args...); err != nil {
		return fmt.Errorf("%s at %s: %w", method, contract.Hex(), err)
	}
	return nil
}
