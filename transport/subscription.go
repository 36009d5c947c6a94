// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrSubscriptionClosed is returned by Reissue after Close.
var ErrSubscriptionClosed = errors.New("transport: subscription closed")

// SubscriptionOwner is anything that holds subscriptions which must
// survive a reconnect. Subscriptions returns a snapshot keyed by
// contract address and then event name.
type SubscriptionOwner interface {
	Name() string
	Subscriptions() map[common.Address]map[string]*Subscription
}

// OwnerSource enumerates the subscription owners to restore after a
// reconnect.
type OwnerSource interface {
	SubscriptionOwners() []SubscriptionOwner
}

// Subscription is one standing log subscription for a contract event.
// The exported fields are set once before the first Reissue.
type Subscription struct {
	Contract common.Address

	// Event names the event for logs and diagnostics.
	Event string

	// Topics is the topic filter. Topics[0] is the event ID; a nil
	// inner slice matches any value in that position.
	Topics [][]common.Hash

	// FromBlock returns the first block to backfill from after a
	// (re)registration. Nil or a zero result skips the backfill.
	FromBlock func() uint64

	// Deliver receives each log once, in chain order. It runs on the
	// subscription's own goroutine and may block.
	Deliver func(types.Log)

	Logger *slog.Logger

	// reissueMutex serializes whole Reissue calls so two concurrent
	// restores cannot both register on the same connection.
	reissueMutex sync.Mutex
	startOnce    sync.Once

	mutex       sync.Mutex
	wake        *sync.Cond
	conn        Conn
	id          string
	backfilling bool
	held        []types.Log
	inbox       []types.Log
	last        logPosition
	delivered   bool
	closed      bool
	pumpDone    chan struct{}
}

type logPosition struct {
	block uint64
	index uint
}

func positionOf(entry types.Log) logPosition {
	return logPosition{block: entry.BlockNumber, index: entry.Index}
}

func (p logPosition) after(other logPosition) bool {
	if p.block != other.block {
		return p.block > other.block
	}
	return p.index > other.index
}

// ID returns the registration id on the current connection, or "" if
// the subscription is not registered.
func (s *Subscription) ID() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.id
}

// Reissue binds the subscription to conn. If it is already registered
// on conn this is a no-op. Otherwise the routing entry on the previous
// connection is dropped, a fresh eth_subscribe is issued on conn and
// the gap since FromBlock is backfilled with eth_getLogs. If either
// step fails the subscription is left unregistered, so a later Reissue
// on the same conn tries both again.
func (s *Subscription) Reissue(ctx context.Context, conn Conn) error {
	s.reissueMutex.Lock()
	defer s.reissueMutex.Unlock()
	s.startOnce.Do(s.start)

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return ErrSubscriptionClosed
	}
	if s.conn == conn && s.id != "" {
		s.mutex.Unlock()
		return nil
	}
	previous, previousID := s.conn, s.id
	s.conn, s.id = conn, ""
	s.backfilling = true
	s.held = nil
	s.mutex.Unlock()

	if previous != nil && previousID != "" {
		previous.Unsubscribe(previousID)
	}

	filter := map[string]any{"address": s.Contract, "topics": s.Topics}
	id, err := conn.Subscribe(ctx, []any{"logs", filter}, s.receiver(conn))
	if err != nil {
		s.mutex.Lock()
		s.conn = nil
		s.finishBackfillLocked(nil)
		s.mutex.Unlock()
		return fmt.Errorf("subscribing to %s on %s: %w", s.Event, s.Contract.Hex(), err)
	}

	var backfill []types.Log
	if s.FromBlock != nil {
		if from := s.FromBlock(); from > 0 {
			query := map[string]any{
				"fromBlock": hexutil.EncodeUint64(from),
				"toBlock":   "latest",
				"address":   s.Contract,
				"topics":    s.Topics,
			}
			if err := conn.Call(ctx, "eth_getLogs", []any{query}, &backfill); err != nil {
				// Live logs held during the backfill would move the
				// consumer past the gap, so they are dropped with the
				// registration and the next Reissue starts over.
				conn.Unsubscribe(id)
				s.mutex.Lock()
				s.conn = nil
				s.held = nil
				s.finishBackfillLocked(nil)
				s.mutex.Unlock()
				return fmt.Errorf("backfilling %s from block %d: %w", s.Event, from, err)
			}
		}
	}

	s.mutex.Lock()
	s.id = id
	s.finishBackfillLocked(backfill)
	s.mutex.Unlock()
	return nil
}

// Close stops delivery and drops the registration. Logs still queued
// are discarded.
func (s *Subscription) Close() {
	s.startOnce.Do(s.start)

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		<-s.pumpDone
		return
	}
	s.closed = true
	conn, id := s.conn, s.id
	s.conn, s.id = nil, ""
	s.wake.Broadcast()
	s.mutex.Unlock()

	if conn != nil && id != "" {
		conn.Unsubscribe(id)
	}
	<-s.pumpDone
}

func (s *Subscription) start() {
	s.wake = sync.NewCond(&s.mutex)
	s.pumpDone = make(chan struct{})
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	go s.pump()
}

// finishBackfillLocked queues the backfilled logs ahead of any live
// notifications that arrived while the backfill was running.
func (s *Subscription) finishBackfillLocked(backfill []types.Log) {
	s.inbox = append(s.inbox, backfill...)
	s.inbox = append(s.inbox, s.held...)
	s.held = nil
	s.backfilling = false
	s.wake.Broadcast()
}

func (s *Subscription) receiver(conn Conn) func(json.RawMessage) {
	return func(payload json.RawMessage) {
		var entry types.Log
		if err := json.Unmarshal(payload, &entry); err != nil {
			s.Logger.Warn("discarding undecodable log notification",
				"event", s.Event, "contract", s.Contract.Hex(), "error", err)
			return
		}
		s.mutex.Lock()
		defer s.mutex.Unlock()
		if s.closed || s.conn != conn {
			return
		}
		if s.backfilling {
			s.held = append(s.held, entry)
			return
		}
		s.inbox = append(s.inbox, entry)
		s.wake.Broadcast()
	}
}

func (s *Subscription) pump() {
	defer close(s.pumpDone)
	for {
		s.mutex.Lock()
		for len(s.inbox) == 0 && !s.closed {
			s.wake.Wait()
		}
		if s.closed {
			s.inbox = nil
			s.mutex.Unlock()
			return
		}
		entry := s.inbox[0]
		s.inbox = s.inbox[1:]
		position := positionOf(entry)
		if entry.Removed || (s.delivered && !position.after(s.last)) {
			s.mutex.Unlock()
			continue
		}
		s.last = position
		s.delivered = true
		s.mutex.Unlock()

		if s.Deliver != nil {
			s.Deliver(entry)
		}
	}
}
