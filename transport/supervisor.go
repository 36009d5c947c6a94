// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evannetwork/smartagent/lib/clock"
	"github.com/evannetwork/smartagent/lib/metrics"
)

const (
	DefaultReconnectDelay = time.Second
	DefaultPollInterval   = 100 * time.Millisecond
)

// Config configures a Supervisor.
type Config struct {
	// Dialer opens connections. Required.
	Dialer Dialer

	// Owners supplies the subscriptions to restore after a reconnect.
	// Nil means there is nothing to restore.
	Owners OwnerSource

	// ReconnectDelay is the pause before every dial attempt made by
	// the reconnect loop. Zero means DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// PollInterval is how often a call waiting on a connecting handle
	// re-checks its state. Zero means DefaultPollInterval.
	PollInterval time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// handle is one connection attempt. It moves connecting → open →
// closed (or connecting → closed) and is never reused.
type handle struct {
	url   string
	state State
	conn  Conn
}

// parked is a caller waiting for a reconnect.
type parked struct {
	release chan struct{}
	taken   chan struct{}
	once    sync.Once
}

// take acknowledges the release so the next parked caller can go.
func (p *parked) take() { p.once.Do(func() { close(p.taken) }) }

// Supervisor owns the connection handle and its reconnect loop.
type Supervisor struct {
	dialer         Dialer
	owners         OwnerSource
	reconnectDelay time.Duration
	pollInterval   time.Duration
	clock          clock.Clock
	logger         *slog.Logger
	metrics        *metrics.Metrics

	// ctx bounds the reconnect loop and handle watchers; cancelled by
	// Close.
	ctx    context.Context
	cancel context.CancelFunc

	mutex        sync.Mutex
	url          string
	current      *handle
	reconnecting bool
	pending      []*parked
	callbacks    []func(context.Context)
	closed       bool

	waitGroup sync.WaitGroup
}

// New creates a Supervisor. No connection is made until Connect.
func New(config Config) (*Supervisor, error) {
	if config.Dialer == nil {
		return nil, errors.New("transport: Dialer is required")
	}
	supervisor := &Supervisor{
		dialer:         config.Dialer,
		owners:         config.Owners,
		reconnectDelay: config.ReconnectDelay,
		pollInterval:   config.PollInterval,
		clock:          config.Clock,
		logger:         config.Logger,
		metrics:        config.Metrics,
	}
	if supervisor.reconnectDelay <= 0 {
		supervisor.reconnectDelay = DefaultReconnectDelay
	}
	if supervisor.pollInterval <= 0 {
		supervisor.pollInterval = DefaultPollInterval
	}
	if supervisor.clock == nil {
		supervisor.clock = clock.Real()
	}
	if supervisor.logger == nil {
		supervisor.logger = slog.Default()
	}
	supervisor.ctx, supervisor.cancel = context.WithCancel(context.Background())
	return supervisor, nil
}

// Connect points the supervisor at url. If the current handle already
// targets url this is a no-op. Otherwise the current handle is retired
// (its in-flight calls fail over to the new one) and url is dialed. A
// failed dial is returned to the caller and also starts the reconnect
// loop, so later calls park instead of failing.
func (s *Supervisor) Connect(ctx context.Context, url string) error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return ErrClosed
	}
	if s.current != nil && s.current.url == url {
		s.mutex.Unlock()
		return nil
	}
	previous := s.current
	current := &handle{url: url, state: StateConnecting}
	s.url = url
	s.current = current
	s.mutex.Unlock()

	if previous != nil {
		s.retire(previous)
	}

	conn, err := s.dialer.Dial(ctx, url)

	s.mutex.Lock()
	if s.current != current {
		s.mutex.Unlock()
		if conn != nil {
			conn.Close()
		}
		return nil
	}
	if err != nil {
		current.state = StateClosed
		s.startReconnectLocked()
		s.mutex.Unlock()
		return fmt.Errorf("connecting to %s: %w", url, err)
	}
	s.mutex.Unlock()

	s.logger.Info("connected", "url", url)
	s.opened(current, conn, previous != nil)
	return nil
}

// Call sends a JSON-RPC request, waiting out reconnects as needed. It
// only returns a transport-level error when ctx ends or the supervisor
// is closed; server errors are returned as *RPCError.
func (s *Supervisor) Call(ctx context.Context, method string, params []any, result any) error {
	err := s.do(ctx, func(conn Conn) error {
		return conn.Call(ctx, method, params, result)
	})
	s.metrics.RPCCall(method, err)
	return err
}

// Subscribe registers subscription on the current connection (waiting
// out reconnects like Call). The caller must also expose subscription
// through an OwnerSource so it is restored after later reconnects.
func (s *Supervisor) Subscribe(ctx context.Context, subscription *Subscription) error {
	return s.do(ctx, func(conn Conn) error {
		return subscription.Reissue(ctx, conn)
	})
}

// OnReconnect registers a callback run after every successful
// reconnect, once subscriptions are restored and parked calls are
// released.
func (s *Supervisor) OnReconnect(callback func(context.Context)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

// State reports the current handle's state. Before Connect and after
// Close it is StateClosed.
func (s *Supervisor) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.current == nil || s.closed {
		return StateClosed
	}
	return s.current.state
}

// Close tears down the connection and stops the reconnect loop.
// Parked and polling callers return ErrClosed.
func (s *Supervisor) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	current := s.current
	s.pending = nil
	s.mutex.Unlock()

	s.cancel()
	if current != nil && current.conn != nil {
		current.conn.Close()
	}
	s.metrics.SetConnectionOpen(false)
	s.metrics.SetParkedCalls(0)
	s.waitGroup.Wait()
	return nil
}

// do runs operation against an open connection. A caller released
// from the parked list holds the handoff until its operation has
// completed, so parked calls replay one at a time in the order they
// parked.
func (s *Supervisor) do(ctx context.Context, operation func(Conn) error) error {
	var released *parked
	handOff := func() {
		if released != nil {
			released.take()
			released = nil
		}
	}
	defer handOff()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mutex.Lock()
		if s.closed {
			s.mutex.Unlock()
			return ErrClosed
		}
		current := s.current
		if current == nil {
			s.mutex.Unlock()
			return ErrNotConnected
		}

		switch current.state {
		case StateOpen:
			conn := current.conn
			s.mutex.Unlock()
			err := operation(conn)
			handOff()
			if !errors.Is(err, ErrConnectionLost) {
				return err
			}
			s.connectionLost(current, conn.Err())

		case StateConnecting:
			s.mutex.Unlock()
			handOff()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.ctx.Done():
				return ErrClosed
			case <-s.clock.After(s.pollInterval):
			}

		case StateClosed:
			waiter := &parked{release: make(chan struct{}), taken: make(chan struct{})}
			s.pending = append(s.pending, waiter)
			s.metrics.SetParkedCalls(len(s.pending))
			s.startReconnectLocked()
			s.mutex.Unlock()
			handOff()
			if err := s.waitParked(ctx, waiter); err != nil {
				return err
			}
			released = waiter
		}
	}
}

// waitParked blocks until waiter is released. On any other outcome the
// waiter is acknowledged so the handoff chain never stalls on it.
func (s *Supervisor) waitParked(ctx context.Context, waiter *parked) error {
	select {
	case <-waiter.release:
		return nil
	case <-ctx.Done():
		s.mutex.Lock()
		for index, candidate := range s.pending {
			if candidate == waiter {
				s.pending = append(s.pending[:index], s.pending[index+1:]...)
				break
			}
		}
		s.metrics.SetParkedCalls(len(s.pending))
		s.mutex.Unlock()
		waiter.take()
		return ctx.Err()
	case <-s.ctx.Done():
		waiter.take()
		return ErrClosed
	}
}

// connectionLost marks current closed (if it still is the open handle)
// and starts a reconnect.
func (s *Supervisor) connectionLost(current *handle, cause error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed || s.current != current || current.state != StateOpen {
		return
	}
	current.state = StateClosed
	s.metrics.SetConnectionOpen(false)
	s.logger.Warn("connection lost", "url", current.url, "error", cause)
	s.startReconnectLocked()
}

func (s *Supervisor) retire(previous *handle) {
	s.mutex.Lock()
	previous.state = StateClosed
	conn := previous.conn
	s.mutex.Unlock()
	if conn != nil {
		s.logger.Info("retiring connection", "url", previous.url)
		conn.Close()
	}
}

func (s *Supervisor) startReconnectLocked() {
	if s.reconnecting || s.closed {
		return
	}
	s.reconnecting = true
	s.waitGroup.Add(1)
	go s.reconnectLoop()
}

func (s *Supervisor) reconnectLoop() {
	defer s.waitGroup.Done()
	for attempt := 1; ; attempt++ {
		select {
		case <-s.ctx.Done():
			s.stopReconnecting()
			return
		case <-s.clock.After(s.reconnectDelay):
		}

		s.mutex.Lock()
		if s.closed {
			s.reconnecting = false
			s.mutex.Unlock()
			return
		}
		if s.current != nil && s.current.state == StateOpen {
			// Connect got there first.
			s.reconnecting = false
			s.releasePendingLocked()
			s.mutex.Unlock()
			return
		}
		previous := s.current
		current := &handle{url: s.url, state: StateConnecting}
		s.current = current
		s.mutex.Unlock()

		if previous != nil && previous.conn != nil {
			previous.conn.Close()
		}

		s.metrics.ReconnectAttempt()
		conn, err := s.dialer.Dial(s.ctx, current.url)

		s.mutex.Lock()
		if s.current != current {
			s.mutex.Unlock()
			if conn != nil {
				conn.Close()
			}
			continue
		}
		if err != nil {
			current.state = StateClosed
			s.mutex.Unlock()
			s.logger.Warn("reconnect failed, retrying",
				"url", current.url,
				"attempt", attempt,
				"retry_in", s.reconnectDelay,
				"error", err)
			continue
		}
		s.mutex.Unlock()

		s.logger.Info("reconnected", "url", current.url, "attempt", attempt)
		if s.opened(current, conn, true) {
			return
		}
	}
}

func (s *Supervisor) stopReconnecting() {
	s.mutex.Lock()
	s.reconnecting = false
	s.mutex.Unlock()
}

// opened moves current to open, restores subscriptions, releases
// parked callers and (for reconnects) runs the callbacks. It returns
// false if the connection was lost before the restore finished, in
// which case the reconnect loop keeps going.
func (s *Supervisor) opened(current *handle, conn Conn, reconnect bool) bool {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		conn.Close()
		return true
	}
	current.conn = conn
	current.state = StateOpen
	s.metrics.SetConnectionOpen(true)
	s.waitGroup.Add(1)
	go s.watch(current)
	s.mutex.Unlock()

	failed := s.restoreSubscriptions(conn, s.ownedSubscriptions(), 1)

	s.mutex.Lock()
	if s.current != current || current.state != StateOpen {
		s.mutex.Unlock()
		return false
	}
	if reconnect {
		s.reconnecting = false
	}
	s.releasePendingLocked()
	if len(failed) > 0 {
		s.waitGroup.Add(1)
		go s.retryRestore(current, failed)
	}
	callbacks := slices.Clone(s.callbacks)
	s.mutex.Unlock()

	if reconnect {
		for _, callback := range callbacks {
			callback(s.ctx)
		}
	}
	return true
}

// releasePendingLocked hands the parked callers off in the order they
// parked, each one acknowledging before the next is released. The
// handoff runs on its own goroutine so the lock is not held while
// waiting.
func (s *Supervisor) releasePendingLocked() {
	waiters := s.pending
	s.pending = nil
	s.metrics.SetParkedCalls(0)
	if len(waiters) == 0 {
		return
	}
	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()
		for _, waiter := range waiters {
			close(waiter.release)
			select {
			case <-waiter.taken:
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

func (s *Supervisor) watch(current *handle) {
	defer s.waitGroup.Done()
	select {
	case <-current.conn.Done():
	case <-s.ctx.Done():
		return
	}
	s.connectionLost(current, current.conn.Err())
}

// ownedSubscription is one subscription to restore, with the names
// used to report on it.
type ownedSubscription struct {
	owner        string
	contract     common.Address
	event        string
	subscription *Subscription
}

func (s *Supervisor) ownedSubscriptions() []ownedSubscription {
	if s.owners == nil {
		return nil
	}
	var result []ownedSubscription
	for _, owner := range s.owners.SubscriptionOwners() {
		for contract, events := range owner.Subscriptions() {
			for event, subscription := range events {
				result = append(result, ownedSubscription{
					owner:        owner.Name(),
					contract:     contract,
					event:        event,
					subscription: subscription,
				})
			}
		}
	}
	return result
}

// restoreSubscriptions reissues each subscription on conn and returns
// the ones that failed for a reason other than being closed.
func (s *Supervisor) restoreSubscriptions(conn Conn, subscriptions []ownedSubscription, attempt int) []ownedSubscription {
	var failed []ownedSubscription
	for _, owned := range subscriptions {
		err := owned.subscription.Reissue(s.ctx, conn)
		if err == nil || errors.Is(err, ErrSubscriptionClosed) {
			continue
		}
		s.logger.Warn("restoring subscription failed",
			"agent", owned.owner,
			"contract", owned.contract.Hex(),
			"event", owned.event,
			"attempt", attempt,
			"retry_in", s.reconnectDelay,
			"error", err)
		failed = append(failed, owned)
	}
	return failed
}

// retryRestore reissues failed subscriptions every reconnect delay for
// as long as current stays the open handle. A new handle restores
// every subscription itself.
func (s *Supervisor) retryRestore(current *handle, failed []ownedSubscription) {
	defer s.waitGroup.Done()
	for attempt := 2; len(failed) > 0; attempt++ {
		select {
		case <-s.ctx.Done():
			return
		case <-s.clock.After(s.reconnectDelay):
		}

		s.mutex.Lock()
		live := s.current == current && current.state == StateOpen
		s.mutex.Unlock()
		if !live {
			return
		}
		failed = s.restoreSubscriptions(current.conn, failed, attempt)
	}
}
