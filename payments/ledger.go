// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payments

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evannetwork/smartagent/lib/chain"
	"github.com/evannetwork/smartagent/lib/secret"
)

// Ledger is the on-chain side of a payment channel.
type Ledger interface {
	// TopUp adds amount to the deposit of an open channel.
	TopUp(ctx context.Context, channel Channel, amount *big.Int) error

	// Open creates a channel to receiver funded with deposit and
	// returns the block number it was opened in.
	Open(ctx context.Context, receiver common.Address, deposit *big.Int) (uint64, error)

	// SignBalanceProof signs a balance proof for the channel to
	// receiver opened at openBlock.
	SignBalanceProof(receiver common.Address, openBlock uint64, balance *big.Int) (string, error)
}

// ChainLedger implements Ledger with the channel manager contract.
// Channels are opened from the manager's Identity when it is set and
// from the agent's account otherwise. Balance proofs are always signed
// by the account key.
type ChainLedger struct {
	Channels *chain.ChannelManager

	// Key is the agent's private key. It is borrowed, not owned.
	Key *secret.Buffer
}

var errNoChannelManager = errors.New("payments: ledger has no channel manager")

func (l *ChainLedger) TopUp(ctx context.Context, channel Channel, amount *big.Int) error {
	if l.Channels == nil {
		return errNoChannelManager
	}
	return l.Channels.TopUp(ctx, l.Key, channel.Receiver, uint64(channel.OpenBlockNumber), amount)
}

func (l *ChainLedger) Open(ctx context.Context, receiver common.Address, deposit *big.Int) (uint64, error) {
	if l.Channels == nil {
		return 0, errNoChannelManager
	}
	return l.Channels.CreateChannel(ctx, l.Key, receiver, deposit)
}

func (l *ChainLedger) SignBalanceProof(receiver common.Address, openBlock uint64, balance *big.Int) (string, error) {
	if l.Channels == nil {
		return "", errNoChannelManager
	}
	return l.Channels.SignBalanceProof(l.Key, receiver, openBlock, balance)
}
