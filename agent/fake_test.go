// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/evannetwork/smartagent/lib/chain"
	"github.com/evannetwork/smartagent/lib/secret"
	"github.com/evannetwork/smartagent/lib/testutil"
	"github.com/evannetwork/smartagent/transport"
)

var (
	testEventHub = common.HexToAddress("0x00000000000000000000000000000000000e7e47")
	testMailbox  = common.HexToAddress("0x000000000000000000000000000000000000ba11")
)

type fakeKeys map[common.Address]*secret.Buffer

func (k fakeKeys) Key(account common.Address) (*secret.Buffer, bool) {
	key, ok := k[account]
	return key, ok
}

// newAccount generates a key pair and registers it in keys.
func newAccount(t *testing.T, keys fakeKeys) (common.Address, *ecdsa.PrivateKey) {
	t.Helper()
	private, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	buffer, err := secret.NewFromBytes(crypto.FromECDSA(private))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	account := crypto.PubkeyToAddress(private.PublicKey)
	keys[account] = buffer
	return account, private
}

type fakeSubscriber struct {
	mutex         sync.Mutex
	err           error
	subscriptions []*transport.Subscription
}

func (s *fakeSubscriber) Subscribe(ctx context.Context, subscription *transport.Subscription) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.err != nil {
		return s.err
	}
	s.subscriptions = append(s.subscriptions, subscription)
	return nil
}

func (s *fakeSubscriber) only(t *testing.T) *transport.Subscription {
	t.Helper()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.subscriptions) != 1 {
		t.Fatalf("subscriptions = %d, want 1", len(s.subscriptions))
	}
	return s.subscriptions[0]
}

type fakeBlocks uint64

func (b fakeBlocks) BlockNumber(ctx context.Context) (uint64, error) { return uint64(b), nil }

type fakeResolver map[common.Address]common.Address

func (r fakeResolver) IdentityOf(ctx context.Context, account common.Address) (common.Address, error) {
	return r[account], nil
}

func discardLogger() *slog.Logger { return testutil.DiscardLogger() }

func mailLog(t *testing.T, sender, recipient common.Address, mailID int64, block uint64) types.Log {
	t.Helper()
	data, err := chain.EncodeMailEvent(sender, recipient, big.NewInt(mailID))
	if err != nil {
		t.Fatalf("EncodeMailEvent: %v", err)
	}
	return types.Log{
		Address:     testEventHub,
		Topics:      []common.Hash{chain.MailEventID},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))),
	}
}

// waitFor polls condition until it holds or the deadline passes.
func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	testutil.Eventually(t, condition, "waiting for %s", description)
}
