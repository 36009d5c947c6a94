// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	_ bind.ContractBackend = (*Client)(nil)
	_ bind.DeployBackend   = (*Client)(nil)
)

// ErrNoLogSubscriptions is returned by SubscribeFilterLogs. Live logs
// are delivered by transport.Subscription, which survives reconnects.
var ErrNoLogSubscriptions = errors.New("chain: log subscriptions are served by the transport supervisor")

// CodeAt returns the code of account at block, or the latest block
// when block is nil.
func (c *Client) CodeAt(ctx context.Context, account common.Address, block *big.Int) ([]byte, error) {
	var code hexutil.Bytes
	if err := c.caller.Call(ctx, "eth_getCode", []any{account, blockArg(block)}, &code); err != nil {
		return nil, fmt.Errorf("eth_getCode %s: %w", account.Hex(), err)
	}
	return code, nil
}

// PendingCodeAt returns the code of account in the pending state.
func (c *Client) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	var code hexutil.Bytes
	if err := c.caller.Call(ctx, "eth_getCode", []any{account, "pending"}, &code); err != nil {
		return nil, fmt.Errorf("eth_getCode %s: %w", account.Hex(), err)
	}
	return code, nil
}

// CallContract runs a read-only call at block, or the latest block when
// block is nil.
func (c *Client) CallContract(ctx context.Context, message ethereum.CallMsg, block *big.Int) ([]byte, error) {
	var result hexutil.Bytes
	if err := c.caller.Call(ctx, "eth_call", []any{callArg(message), blockArg(block)}, &result); err != nil {
		return nil, fmt.Errorf("eth_call: %w", err)
	}
	return result, nil
}

// HeaderByNumber returns the header of block, or the latest header when
// block is nil.
func (c *Client) HeaderByNumber(ctx context.Context, block *big.Int) (*types.Header, error) {
	var header *types.Header
	if err := c.caller.Call(ctx, "eth_getBlockByNumber", []any{blockArg(block), false}, &header); err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber: %w", err)
	}
	if header == nil {
		return nil, ethereum.NotFound
	}
	return header, nil
}

// PendingNonceAt returns the next nonce for account, counting pending
// transactions.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce hexutil.Uint64
	if err := c.caller.Call(ctx, "eth_getTransactionCount", []any{account, "pending"}, &nonce); err != nil {
		return 0, fmt.Errorf("eth_getTransactionCount: %w", err)
	}
	return uint64(nonce), nil
}

// SuggestGasPrice returns the node's suggested legacy gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := c.caller.Call(ctx, "eth_gasPrice", nil, &price); err != nil {
		return nil, fmt.Errorf("eth_gasPrice: %w", err)
	}
	return (*big.Int)(&price), nil
}

// SuggestGasTipCap returns the node's suggested priority fee.
func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var tip hexutil.Big
	if err := c.caller.Call(ctx, "eth_maxPriorityFeePerGas", nil, &tip); err != nil {
		return nil, fmt.Errorf("eth_maxPriorityFeePerGas: %w", err)
	}
	return (*big.Int)(&tip), nil
}

// EstimateGas estimates the gas for message and adds the configured
// margin.
func (c *Client) EstimateGas(ctx context.Context, message ethereum.CallMsg) (uint64, error) {
	var gas hexutil.Uint64
	if err := c.caller.Call(ctx, "eth_estimateGas", []any{callArg(message)}, &gas); err != nil {
		return 0, fmt.Errorf("eth_estimateGas: %w", err)
	}
	return uint64(gas) + uint64(gas)*c.gasMargin/100, nil
}

// SendTransaction submits a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, transaction *types.Transaction) error {
	raw, err := transaction.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding transaction: %w", err)
	}
	if err := c.caller.Call(ctx, "eth_sendRawTransaction", []any{hexutil.Bytes(raw)}, nil); err != nil {
		return fmt.Errorf("eth_sendRawTransaction: %w", err)
	}
	return nil
}

// TransactionReceipt returns the receipt of hash, or ethereum.NotFound
// while it is pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	if err := c.caller.Call(ctx, "eth_getTransactionReceipt", []any{hash}, &receipt); err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt %s: %w", hash.Hex(), err)
	}
	if receipt == nil {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// FilterLogs runs a one-shot eth_getLogs query.
func (c *Client) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	arg := map[string]any{
		"address": query.Addresses,
		"topics":  query.Topics,
	}
	if query.BlockHash != nil {
		arg["blockHash"] = *query.BlockHash
	} else {
		arg["fromBlock"] = blockArg(query.FromBlock)
		arg["toBlock"] = blockArg(query.ToBlock)
	}
	var logs []types.Log
	if err := c.caller.Call(ctx, "eth_getLogs", []any{arg}, &logs); err != nil {
		return nil, fmt.Errorf("eth_getLogs: %w", err)
	}
	return logs, nil
}

func (c *Client) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, ErrNoLogSubscriptions
}

func blockArg(block *big.Int) string {
	if block == nil {
		return "latest"
	}
	return hexutil.EncodeBig(block)
}

func callArg(message ethereum.CallMsg) map[string]any {
	arg := map[string]any{
		"from": message.From,
		"to":   message.To,
	}
	if len(message.Data) > 0 {
		arg["input"] = hexutil.Bytes(message.Data)
	}
	if message.Value != nil {
		arg["value"] = (*hexutil.Big)(message.Value)
	}
	if message.Gas != 0 {
		arg["gas"] = hexutil.Uint64(message.Gas)
	}
	if message.GasPrice != nil {
		arg["gasPrice"] = (*hexutil.Big)(message.GasPrice)
	}
	if message.GasFeeCap != nil {
		arg["maxFeePerGas"] = (*hexutil.Big)(message.GasFeeCap)
	}
	if message.GasTipCap != nil {
		arg["maxPriorityFeePerGas"] = (*hexutil.Big)(message.GasTipCap)
	}
	return arg
}
