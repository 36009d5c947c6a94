// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/evannetwork/smartagent/lib/metrics"
	"github.com/evannetwork/smartagent/lib/watermark"
)

// DefaultQueueSize bounds an agent's event queue when the
// configuration leaves it unset.
const DefaultQueueSize = 64

// Event is one unit of work for an agent's queue.
type Event struct {
	// Block is the chain block the event came from. After the event
	// is handled the agent's watermark moves to Block.
	Block uint64

	// Name describes the event in logs.
	Name string

	// Handle processes the event. A nil Handle only moves the
	// watermark, for events the agent observed but does not act on.
	Handle func(ctx context.Context) error
}

// QueueConfig configures a Queue.
type QueueConfig struct {
	Agent string

	// Size bounds the number of events waiting for the worker.
	// Enqueue blocks while the queue is full.
	Size int

	// Watermarks persists the last handled block. Nil keeps the
	// watermark in memory only.
	Watermarks watermark.Store

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Queue runs an agent's event handlers one at a time, in the order
// they were enqueued. A handler's failure is logged and never holds up
// the events behind it.
type Queue struct {
	agent      string
	events     chan Event
	stopped    chan struct{}
	watermarks watermark.Store
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// watermark is the block of the most recently handled event, or
	// the starting block before any event was handled.
	watermark atomic.Uint64
}

// NewQueue returns a Queue. Run must be called to start the worker.
func NewQueue(config QueueConfig) *Queue {
	size := config.Size
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		agent:      config.Agent,
		events:     make(chan Event, size),
		stopped:    make(chan struct{}),
		watermarks: config.Watermarks,
		logger:     logger,
		metrics:    config.Metrics,
	}
}

// Enqueue adds event behind every event already queued, blocking while
// the queue is full.
func (q *Queue) Enqueue(ctx context.Context, event Event) error {
	select {
	case <-q.stopped:
		return ErrQueueStopped
	default:
	}
	select {
	case q.events <- event:
		q.metrics.SetQueueDepth(q.agent, len(q.events))
		return nil
	case <-q.stopped:
		return ErrQueueStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of events waiting for the worker.
func (q *Queue) Len() int { return len(q.events) }

// Watermark returns the block of the last handled event.
func (q *Queue) Watermark() uint64 { return q.watermark.Load() }

// SetWatermark sets the starting watermark before the first event is
// handled. It does not persist the value.
func (q *Queue) SetWatermark(block uint64) { q.watermark.Store(block) }

// Run handles events until ctx is cancelled. Events still queued at
// that point are dropped; they are redelivered from the persisted
// watermark on the next start.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-q.events:
			q.metrics.SetQueueDepth(q.agent, len(q.events))
			q.handle(ctx, event)
		}
	}
}

func (q *Queue) handle(ctx context.Context, event Event) {
	if event.Handle != nil {
		err := q.invoke(ctx, event)
		q.metrics.EventHandled(q.agent, err)
		if err != nil {
			q.logger.Warn("error occurred while handling event",
				"event", event.Name, "block", event.Block, "error", err)
		}
	}

	if event.Block <= q.watermark.Load() {
		return
	}
	q.watermark.Store(event.Block)
	if q.watermarks == nil {
		return
	}
	if err := q.watermarks.Save(ctx, q.agent, event.Block); err != nil {
		q.logger.Warn("saving watermark failed", "block", event.Block, "error", err)
	}
}

func (q *Queue) invoke(ctx context.Context, event Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panicked: %v", recovered)
		}
	}()
	return event.Handle(ctx)
}
