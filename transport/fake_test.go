// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/evannetwork/smartagent/lib/testutil"
)

// rpcHandler answers one request on a fake connection.
type rpcHandler func(method string, params []any) (any, error)

// fakeConn is an in-memory Conn. Requests are answered synchronously
// by the handler; Drop simulates a socket failure.
type fakeConn struct {
	url     string
	handler rpcHandler

	mutex         sync.Mutex
	methods       []string
	subscriptions map[string]func(json.RawMessage)
	nextID        int
	closed        bool
	err           error
	done          chan struct{}
}

func newFakeConn(url string, handler rpcHandler) *fakeConn {
	return &fakeConn{
		url:           url,
		handler:       handler,
		subscriptions: make(map[string]func(json.RawMessage)),
		done:          make(chan struct{}),
	}
}

func (c *fakeConn) Call(ctx context.Context, method string, params []any, result any) error {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return fmt.Errorf("%s: %w", method, ErrConnectionLost)
	}
	c.methods = append(c.methods, method)
	c.mutex.Unlock()

	var value any
	var err error
	if c.handler != nil {
		value, err = c.handler(method, params)
	}
	if err != nil {
		return err
	}
	if result == nil || value == nil {
		return nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, result)
}

func (c *fakeConn) Subscribe(ctx context.Context, params []any, notify func(json.RawMessage)) (string, error) {
	if err := c.Call(ctx, "eth_subscribe", params, nil); err != nil {
		return "", err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.nextID++
	id := fmt.Sprintf("0x%x", c.nextID)
	c.subscriptions[id] = notify
	return id, nil
}

func (c *fakeConn) Unsubscribe(id string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.subscriptions, id)
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Err() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.err
}

func (c *fakeConn) Close() error {
	c.fail(ErrClosed)
	return nil
}

// Drop simulates the peer going away.
func (c *fakeConn) Drop() { c.fail(errors.New("connection reset by peer")) }

func (c *fakeConn) fail(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = err
	close(c.done)
}

func (c *fakeConn) isClosed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.closed
}

// count returns how many requests for method the connection has seen.
func (c *fakeConn) count(method string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	total := 0
	for _, seen := range c.methods {
		if seen == method {
			total++
		}
	}
	return total
}

func (c *fakeConn) subscriptionCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.subscriptions)
}

// notifyAll pushes entry to every live subscription.
func (c *fakeConn) notifyAll(t *testing.T, entry types.Log) {
	t.Helper()
	payload, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal log: %v", err)
	}
	c.mutex.Lock()
	routes := make([]func(json.RawMessage), 0, len(c.subscriptions))
	for _, notify := range c.subscriptions {
		routes = append(routes, notify)
	}
	c.mutex.Unlock()
	for _, notify := range routes {
		notify(payload)
	}
}

// fakeDialer hands out fakeConns. The first failures dials fail.
type fakeDialer struct {
	handler rpcHandler

	mutex    sync.Mutex
	failures int
	gate     chan struct{}
	conns    []*fakeConn
	attempts int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mutex.Lock()
	d.attempts++
	gate := d.gate
	if d.failures > 0 {
		d.failures--
		d.mutex.Unlock()
		return nil, errors.New("connection refused")
	}
	d.mutex.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	conn := newFakeConn(url, d.handler)
	d.mutex.Lock()
	d.conns = append(d.conns, conn)
	d.mutex.Unlock()
	return conn, nil
}

func (d *fakeDialer) setFailures(n int) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.failures = n
}

func (d *fakeDialer) attemptCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.attempts
}

func (d *fakeDialer) connCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) conn(t *testing.T, index int) *fakeConn {
	t.Helper()
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if index >= len(d.conns) {
		t.Fatalf("dialer has %d connections, want index %d", len(d.conns), index)
	}
	return d.conns[index]
}

// waitFor polls condition until it holds or the test times out.
func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	testutil.Eventually(t, condition, "waiting for %s", description)
}

var testContract = common.HexToAddress("0x0000000000000000000000000000000000000abc")

var testTopic = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")

func makeLog(block uint64, index uint) types.Log {
	return types.Log{
		Address:     testContract,
		Topics:      []common.Hash{testTopic},
		Data:        []byte{},
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(common.Big1),
	}
}

// staticOwners is an OwnerSource over a fixed set of subscriptions.
type staticOwners struct {
	name          string
	subscriptions []*Subscription
}

func (o *staticOwners) Name() string { return o.name }

func (o *staticOwners) Subscriptions() map[common.Address]map[string]*Subscription {
	result := make(map[common.Address]map[string]*Subscription)
	for _, subscription := range o.subscriptions {
		if result[subscription.Contract] == nil {
			result[subscription.Contract] = make(map[string]*Subscription)
		}
		result[subscription.Contract][subscription.Event] = subscription
	}
	return result
}

func (o *staticOwners) SubscriptionOwners() []SubscriptionOwner {
	return []SubscriptionOwner{o}
}
