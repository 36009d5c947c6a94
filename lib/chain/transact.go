// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/evannetwork/smartagent/lib/secret"
)

// ErrReverted is returned when a mined transaction has status 0.
var ErrReverted = errors.New("chain: transaction reverted")

// WaitMined polls TransactionReceipt on the client's clock until the
// receipt of hash is available or ctx ends.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	for {
		receipt, err := c.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clock.After(c.pollInterval):
		}
	}
}

// Transact signs and sends a call to `to` from the account owning key,
// then waits for it to be mined. A mined but reverted transaction
// returns its receipt together with ErrReverted.
func (c *Client) Transact(ctx context.Context, key *secret.Buffer, to common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	privateKey, err := crypto.ToECDSA(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("loading signing key: %w", err)
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("building transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = value

	// Hold the sender lock from nonce lookup until the node has the
	// transaction, so concurrent sends do not reuse a nonce.
	contract := bind.NewBoundContract(to, abi.ABI{}, c, c, c)
	mutex := c.senderMutex(opts.From)
	mutex.Lock()
	transaction, err := contract.RawTransact(opts, data)
	mutex.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sending transaction to %s: %w", to.Hex(), err)
	}

	hash := transaction.Hash()
	c.logger.Debug("transaction sent", "hash", hash.Hex(), "from", opts.From.Hex(), "to", to.Hex(), "nonce", transaction.Nonce())
	receipt, err := c.WaitMined(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s in block %d", ErrReverted, hash.Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}
