// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/evannetwork/smartagent/lib/clock"
	"github.com/evannetwork/smartagent/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func (s *Supervisor) parkedCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.pending)
}

func newTestSupervisor(t *testing.T, dialer Dialer, owners OwnerSource) (*Supervisor, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	supervisor, err := New(Config{
		Dialer: dialer,
		Owners: owners,
		Clock:  fake,
		Logger: slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { supervisor.Close() })
	return supervisor, fake
}

// advanceReconnect lets the reconnect loop's delay elapse once.
func advanceReconnect(fake *clock.FakeClock) {
	fake.WaitForTimers(1)
	fake.Advance(DefaultReconnectDelay)
}

func blockNumberHandler(method string, params []any) (any, error) {
	switch method {
	case "eth_blockNumber":
		return "0x10", nil
	case "eth_getLogs":
		return []types.Log{}, nil
	}
	return nil, nil
}

func dropAndWait(t *testing.T, supervisor *Supervisor, conn *fakeConn) {
	t.Helper()
	conn.Drop()
	waitFor(t, "handle to close", func() bool { return supervisor.State() == StateClosed })
}

func TestNewRequiresDialer(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New without a Dialer succeeded")
	}
}

func TestCallBeforeConnect(t *testing.T) {
	supervisor, _ := newTestSupervisor(t, &fakeDialer{}, nil)
	err := supervisor.Call(context.Background(), "eth_blockNumber", nil, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Call before Connect = %v, want ErrNotConnected", err)
	}
}

func TestCallOnOpenHandle(t *testing.T) {
	dialer := &fakeDialer{handler: blockNumberHandler}
	supervisor, _ := newTestSupervisor(t, dialer, nil)
	ctx := context.Background()

	if err := supervisor.Connect(ctx, "ws://node"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if state := supervisor.State(); state != StateOpen {
		t.Fatalf("State = %s, want open", state)
	}

	var blockNumber hexutil.Uint64
	if err := supervisor.Call(ctx, "eth_blockNumber", nil, &blockNumber); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if blockNumber != 16 {
		t.Errorf("block number = %d, want 16", blockNumber)
	}
}

func TestConnectSameURLIsNoop(t *testing.T) {
	dialer := &fakeDialer{handler: blockNumberHandler}
	supervisor, _ := newTestSupervisor(t, dialer, nil)
	ctx := context.Background()

	for range 3 {
		if err := supervisor.Connect(ctx, "ws://node"); err != nil {
			t.Fatalf("Connect: %v", err)
		}
	}
	if attempts := dialer.attemptCount(); attempts != 1 {
		t.Errorf("dial attempts = %d, want 1", attempts)
	}
}

func TestServerErrorIsNotRetried(t *testing.T) {
	dialer := &fakeDialer{handler: func(method string, params []any) (any, error) {
		return nil, &RPCError{Code: 3, Message: "execution reverted"}
	}}
	supervisor, _ := newTestSupervisor(t, dialer, nil)
	ctx := context.Background()
	if err := supervisor.Connect(ctx, "ws://node"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	err := supervisor.Call(ctx, "eth_call", nil, nil)
	if !IsRPCError(err) {
		t.Fatalf("Call = %v, want *RPCError", err)
	}
	if supervisor.State() != StateOpen {
		t.Errorf("State = %s after server error, want open", supervisor.State())
	}
	if attempts := dialer.attemptCount(); attempts != 1 {
		t.Errorf("dial attempts = %d, want 1", attempts)
	}
}

func TestParkedCallsReplayAfterReconnect(t *testing.T) {
	var order []int
	var orderMutex sync.Mutex
	dialer := &fakeDialer{handler: func(method string, params []any) (any, error) {
		if method == "eth_getBalance" {
			orderMutex.Lock()
			order = append(order, params[0].(int))
			orderMutex.Unlock()
			return "0x1", nil
		}
		return nil, nil
	}}
	supervisor, fake := newTestSupervisor(t, dialer, nil)
	ctx := context.Background()
	if err := supervisor.Connect(ctx, "ws://node"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dropAndWait(t, supervisor, dialer.conn(t, 0))

	const callers = 4
	results := make(chan error, callers)
	for index := range callers {
		go func() {
			results <- supervisor.Call(ctx, "eth_getBalance", []any{index}, nil)
		}()
		waitFor(t, "caller to park", func() bool { return supervisor.parkedCount() == index+1 })
	}

	advanceReconnect(fake)

	for range callers {
		if err := <-results; err != nil {
			t.Errorf("parked call failed: %v", err)
		}
	}
	if got := dialer.conn(t, 1).count("eth_getBalance"); got != callers {
		t.Errorf("replayed calls = %d, want %d", got, callers)
	}
	orderMutex.Lock()
	defer orderMutex.Unlock()
	for index, value := range order {
		if value != index {
			t.Fatalf("replay order = %v, want parked order", order)
		}
	}
}

func TestReconnectIsSingleFlight(t *testing.T) {
	dialer := &fakeDialer{handler: blockNumberHandler}
	supervisor, fake := newTestSupervisor(t, dialer, nil)
	ctx := context.Background()
	if err := supervisor.Connect(ctx, "ws://node"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dropAndWait(t, supervisor, dialer.conn(t, 0))

	const callers = 8
	results := make(chan error, callers)
	for range callers {
		go func() { results <- supervisor.Call(ctx, "eth_blockNumber", nil, nil) }()
	}
	waitFor(t, "callers to park", func() bool { return supervisor.parkedCount() == callers })

	fake.WaitForTimers(1)
	if pending := fake.PendingCount(); pending != 1 {
		t.Fatalf("pending timers = %d, want a single reconnect timer", pending)
	}
	fake.Advance(DefaultReconnectDelay)

	for range callers {
		if err := <-results; err != nil {
			t.Errorf("parked call failed: %v", err)
		}
	}
	if attempts := dialer.attemptCount(); attempts != 2 {
		t.Errorf("dial attempts = %d, want 2", attempts)
	}
}

func TestReconnectRetriesUntilDialSucceeds(t *testing.T) {
	dialer := &fakeDialer{handler: blockNumberHandler}
	supervisor, fake := newTestSupervisor(t, dialer, nil)
	ctx := context.Background()
	if err := supervisor.Connect(ctx, "ws://node"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dialer.setFailures(3)
	dropAndWait(t, supervisor, dialer.conn(t, 0))

	result := make(chan error, 1)
	go func() { result <- supervisor.Call(ctx, "eth_blockNumber", nil, nil) }()
	waitFor(t, "caller to park", func() bool { return supervisor.parkedCount() == 1 })

	for attempt := 1; attempt <= 3; attempt++ {
		advanceReconnect(fake)
		waitFor(t, "failed dial", func() bool { return dialer.attemptCount() == 1+attempt })
		select {
		case err := <-result:
			t.Fatalf("parked call returned %v during outage", err)
		default:
		}
	}
	advanceReconnect(fake)

	if err := <-result; err != nil {
		t.Fatalf("Call after recovery: %v", err)
	}
	if attempts := dialer.attemptCount(); attempts != 5 {
		t.Errorf("dial attempts = %d, want 5", attempts)
	}
}

func TestInFlightConnectionLossIsReplayed(t *testing.T) {
	var calls atomic.Int32
	dialer := &fakeDialer{handler: func(method string, params []any) (any, error) {
		if method != "eth_chainId" {
			return nil, nil
		}
		if calls.Add(1) == 1 {
			return nil, fmt.Errorf("eth_chainId: %w", ErrConnectionLost)
		}
		return "0xc3", nil
	}}
	supervisor, fake := newTestSupervisor(t, dialer, nil)
	ctx := context.Background()
	if err := supervisor.Connect(ctx, "ws://node"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	result := make(chan error, 1)
	var chainID hexutil.Uint64
	go func() { result <- supervisor.Call(ctx, "eth_chainId", nil, &chainID) }()
	waitFor(t, "caller to park", func() bool { return supervisor.parkedCount() == 1 })
	advanceReconnect(fake)

	if err := <-result; err != nil {
		t.Fatalf("Call: %v", err)
	}
	if chainID != 0xc3 {
		t.Errorf("chain id = %#x, want 0xc3", uint64(chainID))
	}
	if !dialer.conn(t, 0).isClosed() {
		t.Error("previous connection was not torn down")
	}
}

func TestConnectingHandlePolls(t *testing.T) {
	gate := make(chan struct{})
	dialer := &fakeDialer{handler: blockNumberHandler, gate: gate}
	supervisor, fake := newTestSupervisor(t, dialer, nil)
	ctx := context.Background()

	connected := make(chan error, 1)
	go func() { connected <- supervisor.Connect(ctx, "ws://node") }()
	waitFor(t, "connecting state", func() bool { return supervisor.State() == StateConnecting })

	result := make(chan error, 1)
	go func() { result <- supervisor.Call(ctx, "eth_blockNumber", nil, nil) }()
	fake.WaitForTimers(1)

	close(gate)
	if err := <-connected; err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fake.Advance(DefaultPollInterval)

	if err := <-result; err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestConnectNewURLRetiresHandle(t *testing.T) {
	dialer := &fakeDialer{handler: blockNumberHandler}
	supervisor, _ := newTestSupervisor(t, dialer, nil)
	ctx := context.Background()

	if err := supervisor.Connect(ctx, "ws://first"); err != nil {
		t.Fatalf("Connect first: %v", err)
	}
	if err := supervisor.Connect(ctx, "ws://second"); err != nil {
		t.Fatalf("Connect second: %v", err)
	}
	if !dialer.conn(t, 0).isClosed() {
		t.Error("first connection still open after URL change")
	}
	if err := supervisor.Call(ctx, "eth_blockNumber", nil, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	second := dialer.conn(t, 1)
	if second.url != "ws://second" || second.count("eth_blockNumber") != 1 {
		t.Errorf("call went to %s (%d calls), want ws://second", second.url, second.count("eth_blockNumber"))
	}
}

func TestInitialConnectFailureStartsReconnect(t *testing.T) {
	dialer := &fakeDialer{handler: blockNumberHandler, failures: 1}
	supervisor, fake := newTestSupervisor(t, dialer, nil)
	ctx := context.Background()

	if err := supervisor.Connect(ctx, "ws://node"); err == nil {
		t.Fatal("Connect succeeded against a refusing endpoint")
	}

	result := make(chan error, 1)
	go func() { result <- supervisor.Call(ctx, "eth_blockNumber", nil, nil) }()
	waitFor(t, "caller to park", func() bool { return supervisor.parkedCount() == 1 })
	advanceReconnect(fake)

	if err := <-result; err != nil {
		t.Fatalf("Call: %v", err)
	}
}

func TestReconnectRestoresSubscriptions(t *testing.T) {
	delivered := make(chan types.Log, 8)
	subscription := &Subscription{
		Contract: testContract,
		Event:    "MailEvent",
		Topics:   [][]common.Hash{{testTopic}},
		Deliver:  func(entry types.Log) { delivered <- entry },
		Logger:   slog.New(slog.DiscardHandler),
	}
	t.Cleanup(subscription.Close)
	owners := &staticOwners{name: "mailer", subscriptions: []*Subscription{subscription}}

	dialer := &fakeDialer{handler: blockNumberHandler}
	supervisor, fake := newTestSupervisor(t, dialer, owners)
	ctx := context.Background()

	var reconnects atomic.Int32
	supervisor.OnReconnect(func(context.Context) { reconnects.Add(1) })

	if err := supervisor.Connect(ctx, "ws://node"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := supervisor.Subscribe(ctx, subscription); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	first := dialer.conn(t, 0)
	if got := first.count("eth_subscribe"); got != 1 {
		t.Fatalf("eth_subscribe on first connection = %d, want 1", got)
	}

	dropAndWait(t, supervisor, first)
	advanceReconnect(fake)
	waitFor(t, "reconnect callbacks", func() bool { return reconnects.Load() == 1 })

	second := dialer.conn(t, 1)
	if got := second.count("eth_subscribe"); got != 1 {
		t.Fatalf("eth_subscribe on second connection = %d, want 1", got)
	}
	if first.subscriptionCount() != 0 {
		t.Error("subscription still routed on the dead connection")
	}

	second.notifyAll(t, makeLog(42, 0))
	entry := testutil.RequireReceive(t, delivered, "log from the new connection was not delivered")
	if entry.BlockNumber != 42 {
		t.Errorf("delivered block %d, want 42", entry.BlockNumber)
	}
}

func TestFailedRestoreIsRetriedWhileOpen(t *testing.T) {
	subscription := &Subscription{
		Contract: testContract,
		Event:    "MailEvent",
		Topics:   [][]common.Hash{{testTopic}},
		Logger:   slog.New(slog.DiscardHandler),
	}
	t.Cleanup(subscription.Close)
	owners := &staticOwners{name: "mailer", subscriptions: []*Subscription{subscription}}

	var subscribes atomic.Int32
	dialer := &fakeDialer{handler: func(method string, params []any) (any, error) {
		if method == "eth_subscribe" && subscribes.Add(1) == 2 {
			return nil, &RPCError{Code: -32000, Message: "too many subscriptions"}
		}
		return blockNumberHandler(method, params)
	}}
	supervisor, fake := newTestSupervisor(t, dialer, owners)
	ctx := context.Background()

	var reconnects atomic.Int32
	supervisor.OnReconnect(func(context.Context) { reconnects.Add(1) })

	if err := supervisor.Connect(ctx, "ws://node"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := supervisor.Subscribe(ctx, subscription); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	dropAndWait(t, supervisor, dialer.conn(t, 0))
	advanceReconnect(fake)
	waitFor(t, "reconnect callbacks", func() bool { return reconnects.Load() == 1 })
	if id := subscription.ID(); id != "" {
		t.Fatalf("subscription registered as %q despite the rejected eth_subscribe", id)
	}

	fake.WaitForTimers(1)
	fake.Advance(DefaultReconnectDelay)
	second := dialer.conn(t, 1)
	waitFor(t, "subscription to be restored", func() bool { return subscription.ID() != "" })
	if got := second.count("eth_subscribe"); got != 2 {
		t.Errorf("eth_subscribe on second connection = %d, want 2", got)
	}
	if got := supervisor.State(); got != StateOpen {
		t.Errorf("state = %v, want open", got)
	}
}

func TestCloseReleasesParkedCalls(t *testing.T) {
	dialer := &fakeDialer{handler: blockNumberHandler}
	supervisor, _ := newTestSupervisor(t, dialer, nil)
	ctx := context.Background()
	if err := supervisor.Connect(ctx, "ws://node"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dropAndWait(t, supervisor, dialer.conn(t, 0))

	result := make(chan error, 1)
	go func() { result <- supervisor.Call(ctx, "eth_blockNumber", nil, nil) }()
	waitFor(t, "caller to park", func() bool { return supervisor.parkedCount() == 1 })

	supervisor.Close()
	if err := <-result; !errors.Is(err, ErrClosed) {
		t.Fatalf("parked call after Close = %v, want ErrClosed", err)
	}
	if err := supervisor.Call(ctx, "eth_blockNumber", nil, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Call after Close = %v, want ErrClosed", err)
	}
}

func TestParkedCallHonorsContext(t *testing.T) {
	dialer := &fakeDialer{handler: blockNumberHandler}
	supervisor, _ := newTestSupervisor(t, dialer, nil)
	if err := supervisor.Connect(context.Background(), "ws://node"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	dropAndWait(t, supervisor, dialer.conn(t, 0))

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- supervisor.Call(ctx, "eth_blockNumber", nil, nil) }()
	waitFor(t, "caller to park", func() bool { return supervisor.parkedCount() == 1 })

	cancel()
	if err := <-result; !errors.Is(err, context.Canceled) {
		t.Fatalf("Call = %v, want context.Canceled", err)
	}
	if parked := supervisor.parkedCount(); parked != 0 {
		t.Errorf("parked callers = %d after cancellation, want 0", parked)
	}
}
