// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func newTestSubscription(t *testing.T, fromBlock uint64) (*Subscription, chan types.Log) {
	t.Helper()
	delivered := make(chan types.Log, 16)
	subscription := &Subscription{
		Contract:  testContract,
		Event:     "MailEvent",
		Topics:    [][]common.Hash{{testTopic}},
		FromBlock: func() uint64 { return fromBlock },
		Deliver:   func(entry types.Log) { delivered <- entry },
		Logger:    slog.New(slog.DiscardHandler),
	}
	t.Cleanup(subscription.Close)
	return subscription, delivered
}

// expectDelivered reads want positions from delivered, in order.
func expectDelivered(t *testing.T, delivered <-chan types.Log, want ...logPosition) {
	t.Helper()
	for _, position := range want {
		select {
		case entry := <-delivered:
			if got := positionOf(entry); got != position {
				t.Fatalf("delivered (%d,%d), want (%d,%d)", got.block, got.index, position.block, position.index)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for (%d,%d)", position.block, position.index)
		}
	}
}

func backfillHandler(logs ...types.Log) rpcHandler {
	return func(method string, params []any) (any, error) {
		if method == "eth_getLogs" {
			return logs, nil
		}
		return nil, nil
	}
}

func TestReissueIsIdempotent(t *testing.T) {
	subscription, _ := newTestSubscription(t, 0)
	conn := newFakeConn("ws://node", nil)
	ctx := context.Background()

	for range 3 {
		if err := subscription.Reissue(ctx, conn); err != nil {
			t.Fatalf("Reissue: %v", err)
		}
	}
	if got := conn.count("eth_subscribe"); got != 1 {
		t.Errorf("eth_subscribe count = %d, want 1", got)
	}
	if subscription.ID() == "" {
		t.Error("subscription has no registration id")
	}
}

func TestReissueMovesBetweenConnections(t *testing.T) {
	subscription, _ := newTestSubscription(t, 0)
	first := newFakeConn("ws://node", nil)
	second := newFakeConn("ws://node", nil)
	ctx := context.Background()

	if err := subscription.Reissue(ctx, first); err != nil {
		t.Fatalf("Reissue first: %v", err)
	}
	firstID := subscription.ID()
	first.Drop()
	if err := subscription.Reissue(ctx, second); err != nil {
		t.Fatalf("Reissue second: %v", err)
	}

	if first.subscriptionCount() != 0 {
		t.Error("routing entry left on the dead connection")
	}
	if second.subscriptionCount() != 1 {
		t.Errorf("routing entries on new connection = %d, want 1", second.subscriptionCount())
	}
	if subscription.ID() == "" || second.count("eth_subscribe") != 1 {
		t.Errorf("not registered on new connection (id %q, previous %q)", subscription.ID(), firstID)
	}
}

func TestBackfillPrecedesLiveAndSuppressesDuplicates(t *testing.T) {
	subscription, delivered := newTestSubscription(t, 5)
	var getLogsParams []any
	conn := newFakeConn("ws://node", nil)
	conn.handler = func(method string, params []any) (any, error) {
		if method != "eth_getLogs" {
			return nil, nil
		}
		getLogsParams = params
		// A live log arriving mid-backfill must wait for the backfill.
		conn.notifyAll(t, makeLog(8, 0))
		return []types.Log{makeLog(5, 0), makeLog(6, 1)}, nil
	}

	if err := subscription.Reissue(context.Background(), conn); err != nil {
		t.Fatalf("Reissue: %v", err)
	}
	query := getLogsParams[0].(map[string]any)
	if query["fromBlock"] != "0x5" || query["toBlock"] != "latest" {
		t.Errorf("eth_getLogs range = %v..%v, want 0x5..latest", query["fromBlock"], query["toBlock"])
	}

	conn.notifyAll(t, makeLog(6, 1))
	conn.notifyAll(t, makeLog(9, 2))

	expectDelivered(t, delivered,
		logPosition{5, 0}, logPosition{6, 1}, logPosition{8, 0}, logPosition{9, 2})
	if extra := len(delivered); extra != 0 {
		t.Errorf("%d unexpected deliveries", extra)
	}
}

func TestReissueDoesNotRedeliver(t *testing.T) {
	subscription, delivered := newTestSubscription(t, 5)
	backfill := backfillHandler(makeLog(5, 0), makeLog(6, 0))
	first := newFakeConn("ws://node", backfill)
	second := newFakeConn("ws://node", backfill)
	ctx := context.Background()

	if err := subscription.Reissue(ctx, first); err != nil {
		t.Fatalf("Reissue first: %v", err)
	}
	expectDelivered(t, delivered, logPosition{5, 0}, logPosition{6, 0})

	first.Drop()
	if err := subscription.Reissue(ctx, second); err != nil {
		t.Fatalf("Reissue second: %v", err)
	}
	second.notifyAll(t, makeLog(7, 0))
	expectDelivered(t, delivered, logPosition{7, 0})
	if extra := len(delivered); extra != 0 {
		t.Errorf("%d logs redelivered after reissue", extra)
	}
}

func TestRemovedLogsAreSkipped(t *testing.T) {
	subscription, delivered := newTestSubscription(t, 0)
	conn := newFakeConn("ws://node", nil)
	if err := subscription.Reissue(context.Background(), conn); err != nil {
		t.Fatalf("Reissue: %v", err)
	}

	removed := makeLog(3, 0)
	removed.Removed = true
	conn.notifyAll(t, removed)
	conn.notifyAll(t, makeLog(4, 0))

	expectDelivered(t, delivered, logPosition{4, 0})
}

func TestStaleConnectionNotificationsIgnored(t *testing.T) {
	subscription, delivered := newTestSubscription(t, 0)
	first := newFakeConn("ws://node", nil)
	second := newFakeConn("ws://node", nil)
	ctx := context.Background()

	if err := subscription.Reissue(ctx, first); err != nil {
		t.Fatalf("Reissue first: %v", err)
	}
	staleRoute := subscription.receiver(first)
	if err := subscription.Reissue(ctx, second); err != nil {
		t.Fatalf("Reissue second: %v", err)
	}

	payload := []byte(`{"address":"0x0000000000000000000000000000000000000abc","topics":[],"data":"0x","blockNumber":"0x63","transactionHash":"0x0000000000000000000000000000000000000000000000000000000000000001","logIndex":"0x0"}`)
	staleRoute(payload)
	second.notifyAll(t, makeLog(100, 0))

	expectDelivered(t, delivered, logPosition{100, 0})
}

func TestReissueAfterClose(t *testing.T) {
	subscription, _ := newTestSubscription(t, 0)
	subscription.Close()
	err := subscription.Reissue(context.Background(), newFakeConn("ws://node", nil))
	if !errors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("Reissue after Close = %v, want ErrSubscriptionClosed", err)
	}
}

func TestSubscribeFailureAllowsRetry(t *testing.T) {
	subscription, _ := newTestSubscription(t, 0)
	failing := true
	conn := newFakeConn("ws://node", nil)
	conn.handler = func(method string, params []any) (any, error) {
		if method == "eth_subscribe" && failing {
			return nil, &RPCError{Code: -32000, Message: "too many subscriptions"}
		}
		return nil, nil
	}
	ctx := context.Background()

	if err := subscription.Reissue(ctx, conn); !IsRPCError(err) {
		t.Fatalf("Reissue = %v, want *RPCError", err)
	}
	failing = false
	if err := subscription.Reissue(ctx, conn); err != nil {
		t.Fatalf("retry Reissue: %v", err)
	}
	if subscription.ID() == "" {
		t.Error("subscription not registered after retry")
	}
}

func TestBackfillFailureIsRetried(t *testing.T) {
	subscription, delivered := newTestSubscription(t, 5)
	conn := newFakeConn("ws://node", nil)
	failing := true
	conn.handler = func(method string, params []any) (any, error) {
		if method != "eth_getLogs" {
			return nil, nil
		}
		if failing {
			// A live log arrives while the failing backfill runs.
			conn.notifyAll(t, makeLog(9, 0))
			return nil, &RPCError{Code: -32005, Message: "query returned more than 10000 results"}
		}
		return []types.Log{makeLog(6, 0)}, nil
	}
	ctx := context.Background()

	if err := subscription.Reissue(ctx, conn); !IsRPCError(err) {
		t.Fatalf("Reissue = %v, want *RPCError", err)
	}
	if subscription.ID() != "" {
		t.Errorf("subscription registered as %q after a failed backfill", subscription.ID())
	}
	if got := conn.subscriptionCount(); got != 0 {
		t.Errorf("routing entries after failed backfill = %d, want 0", got)
	}

	failing = false
	if err := subscription.Reissue(ctx, conn); err != nil {
		t.Fatalf("retry Reissue: %v", err)
	}
	if got := conn.count("eth_getLogs"); got != 2 {
		t.Errorf("eth_getLogs calls = %d, want 2", got)
	}
	conn.notifyAll(t, makeLog(9, 0))

	expectDelivered(t, delivered, logPosition{6, 0}, logPosition{9, 0})
	if extra := len(delivered); extra != 0 {
		t.Errorf("%d unexpected deliveries", extra)
	}
}
