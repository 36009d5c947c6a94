// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/evannetwork/smartagent/lib/clock"
)

// Caller issues a JSON-RPC request.
type Caller interface {
	Call(ctx context.Context, method string, params []any, result any) error
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Caller Caller

	// ChainID, if set, is used instead of asking the node.
	ChainID *big.Int

	// ReceiptPollInterval is how often WaitMined polls. Zero means one
	// second.
	ReceiptPollInterval time.Duration

	// GasMargin is the percentage added to gas estimates. Zero means
	// 20.
	GasMargin uint64

	Clock  clock.Clock
	Logger *slog.Logger
}

// Client is a typed view over a Caller. It implements the
// bind.ContractBackend and bind.DeployBackend interfaces, so bound
// contracts and receipt waits run over the supervised connection.
type Client struct {
	caller       Caller
	pollInterval time.Duration
	gasMargin    uint64
	clock        clock.Clock
	logger       *slog.Logger

	chainIDMutex sync.Mutex
	chainID      *big.Int

	// senderMutexes serializes nonce assignment per sending account.
	senderMutexes sync.Map
}

func NewClient(config ClientConfig) (*Client, error) {
	if config.Caller == nil {
		return nil, errors.New("chain: Caller is required")
	}
	client := &Client{
		caller:       config.Caller,
		pollInterval: config.ReceiptPollInterval,
		gasMargin:    config.GasMargin,
		clock:        config.Clock,
		logger:       config.Logger,
	}
	if config.ChainID != nil {
		client.chainID = new(big.Int).Set(config.ChainID)
	}
	if client.pollInterval <= 0 {
		client.pollInterval = time.Second
	}
	if client.gasMargin == 0 {
		client.gasMargin = 20
	}
	if client.clock == nil {
		client.clock = clock.Real()
	}
	if client.logger == nil {
		client.logger = slog.Default()
	}
	return client, nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var number hexutil.Uint64
	if err := c.caller.Call(ctx, "eth_blockNumber", nil, &number); err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return uint64(number), nil
}

// ChainID returns the chain id, asking the node once.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.chainIDMutex.Lock()
	defer c.chainIDMutex.Unlock()
	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	var id hexutil.Big
	if err := c.caller.Call(ctx, "eth_chainId", nil, &id); err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	c.chainID = (*big.Int)(&id)
	return new(big.Int).Set(c.chainID), nil
}

func (c *Client) senderMutex(account common.Address) *sync.Mutex {
	mutex, _ := c.senderMutexes.LoadOrStore(account, &sync.Mutex{})
	return mutex.(*sync.Mutex)
}
