// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/evannetwork/smartagent/lib/secret"
)

// balanceProofTypeHash is keccak256 of the packed type strings of the
// typed balance message the channel manager verifies.
var balanceProofTypeHash = crypto.Keccak256(
	[]byte("string message_id"),
	[]byte("address receiver"),
	[]byte("uint32 block_created"),
	[]byte("uint192 balance"),
	[]byte("address contract"),
)

const balanceProofMessageID = "Sender balance proof signature"

var maxUint192 = new(big.Int).Sub(new(big.Int).Lsh(common.Big1, 192), common.Big1)

// ChannelManager drives a uni-directional payment channel contract
// funded in the chain's native currency.
type ChannelManager struct {
	Client  *Client
	Address common.Address

	// Identity, if set, is the identity contract channels are opened
	// and topped up from. Calls are wrapped in its execute function and
	// sent by the key's account, which must hold an action key on it.
	Identity common.Address
}

// CreateChannel opens a channel to receiver with deposit and returns
// the block the channel was opened in, which identifies it together
// with sender and receiver.
func (m *ChannelManager) CreateChannel(ctx context.Context, key *secret.Buffer, receiver common.Address, deposit *big.Int) (uint64, error) {
	data, err := channelManagerContract.Pack("createChannel", receiver)
	if err != nil {
		return 0, fmt.Errorf("packing createChannel: %w", err)
	}
	receipt, err := m.send(ctx, key, deposit, data)
	if err != nil {
		return 0, fmt.Errorf("createChannel: %w", err)
	}
	return receipt.BlockNumber.Uint64(), nil
}

// TopUp adds amount to the channel opened at openBlock.
func (m *ChannelManager) TopUp(ctx context.Context, key *secret.Buffer, receiver common.Address, openBlock uint64, amount *big.Int) error {
	if openBlock > math.MaxUint32 {
		return fmt.Errorf("open block %d does not fit uint32", openBlock)
	}
	data, err := channelManagerContract.Pack("topUp", receiver, uint32(openBlock))
	if err != nil {
		return fmt.Errorf("packing topUp: %w", err)
	}
	if _, err := m.send(ctx, key, amount, data); err != nil {
		return fmt.Errorf("topUp: %w", err)
	}
	return nil
}

func (m *ChannelManager) send(ctx context.Context, key *secret.Buffer, value *big.Int, data []byte) (*types.Receipt, error) {
	if m.Identity == (common.Address{}) {
		return m.Client.Transact(ctx, key, m.Address, value, data)
	}
	if value == nil {
		value = new(big.Int)
	}
	wrapped, err := keyHolderContract.Pack("execute", m.Address, value, data)
	if err != nil {
		return nil, fmt.Errorf("packing execute: %w", err)
	}
	return m.Client.Transact(ctx, key, m.Identity, value, wrapped)
}

// BalanceProofHash is the digest signed by a balance proof.
func (m *ChannelManager) BalanceProofHash(receiver common.Address, openBlock uint64, balance *big.Int) ([]byte, error) {
	if openBlock > math.MaxUint32 {
		return nil, fmt.Errorf("open block %d does not fit uint32", openBlock)
	}
	if balance.Sign() < 0 || balance.Cmp(maxUint192) > 0 {
		return nil, fmt.Errorf("balance %s does not fit uint192", balance)
	}
	block := []byte{byte(openBlock >> 24), byte(openBlock >> 16), byte(openBlock >> 8), byte(openBlock)}
	valueHash := crypto.Keccak256(
		[]byte(balanceProofMessageID),
		receiver.Bytes(),
		block,
		common.LeftPadBytes(balance.Bytes(), 24),
		m.Address.Bytes(),
	)
	return crypto.Keccak256(balanceProofTypeHash, valueHash), nil
}

// SignBalanceProof signs the statement that receiver may claim balance
// from the channel opened at openBlock.
func (m *ChannelManager) SignBalanceProof(key *secret.Buffer, receiver common.Address, openBlock uint64, balance *big.Int) (string, error) {
	hash, err := m.BalanceProofHash(receiver, openBlock, balance)
	if err != nil {
		return "", err
	}
	privateKey, err := crypto.ToECDSA(key.Bytes())
	if err != nil {
		return "", fmt.Errorf("loading signing key: %w", err)
	}
	signature, err := crypto.Sign(hash, privateKey)
	if err != nil {
		return "", fmt.Errorf("signing balance proof: %w", err)
	}
	signature[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(signature), nil
}
