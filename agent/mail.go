// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/evannetwork/smartagent/lib/chain"
	"github.com/evannetwork/smartagent/transport"
)

// MailEventName keys the mail subscription in Subscriptions.
const MailEventName = "MailEvent"

// MailHandler handles one mail event addressed to the agent's
// identity. Handlers run on the agent's queue, one at a time.
type MailHandler func(ctx context.Context, agent *Context, event chain.MailEvent) error

// LogMail is the default MailHandler. It records the event and does
// nothing else.
func LogMail(ctx context.Context, agent *Context, event chain.MailEvent) error {
	agent.logger.Info("received mail",
		"mail_id", event.MailID.String(),
		"sender", event.Sender.Hex(),
		"block", event.BlockNumber,
		"tx", event.TxHash.Hex())
	return nil
}

// ListenToMail subscribes to the event hub's mail events for the
// agent's identity. Delivery starts at the persisted watermark, or at
// the current block when the agent never handled an event. Matching
// events are handed to the MailHandler through the agent's queue.
func (c *Context) ListenToMail(ctx context.Context) error {
	lifetime, initialized := c.running()
	if !initialized {
		return ErrNotInitialized
	}
	if c.dependencies.Transport == nil {
		return errors.New("agent: no transport to subscribe with")
	}
	if c.dependencies.EventHub == (common.Address{}) {
		return errors.New("agent: event hub address is not configured")
	}

	start, err := c.startBlock(ctx)
	if err != nil {
		return err
	}
	c.queue.SetWatermark(start)

	subscription := &transport.Subscription{
		Contract:  c.dependencies.EventHub,
		Event:     MailEventName,
		Topics:    [][]common.Hash{{chain.MailEventID}},
		FromBlock: c.queue.Watermark,
		Deliver: func(entry types.Log) {
			c.deliverMail(lifetime, entry)
		},
		Logger: c.logger,
	}
	if err := c.dependencies.Transport.Subscribe(ctx, subscription); err != nil {
		subscription.Close()
		return fmt.Errorf("agent: subscribing to mail events: %w", err)
	}
	c.addSubscription(subscription)
	c.logger.Info("listening to mail events",
		"event_hub", c.dependencies.EventHub.Hex(), "from_block", start)
	return nil
}

func (c *Context) startBlock(ctx context.Context) (uint64, error) {
	if c.dependencies.Watermarks != nil {
		block, found, err := c.dependencies.Watermarks.Load(ctx, c.config.Name)
		if err != nil {
			return 0, fmt.Errorf("agent: loading watermark: %w", err)
		}
		if found {
			return block, nil
		}
	}
	if c.dependencies.Blocks == nil {
		return 0, nil
	}
	block, err := c.dependencies.Blocks.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("agent: reading current block: %w", err)
	}
	return block, nil
}

// deliverMail filters a raw log and enqueues it. It runs on the
// subscription's goroutine, so a full queue holds back further
// deliveries.
func (c *Context) deliverMail(ctx context.Context, entry types.Log) {
	// Every observed event moves the watermark, including the ones
	// this agent ignores.
	queued := Event{Block: entry.BlockNumber, Name: MailEventName}
	event, err := chain.DecodeMailEvent(entry)
	switch {
	case err != nil:
		c.logger.Warn("ignoring undecodable mail event", "block", entry.BlockNumber, "error", err)
	case event.Sender == c.dependencies.Mailbox && event.Recipient == c.Identity():
		handler := c.config.MailHandler
		queued.Handle = func(ctx context.Context) error {
			return handler(ctx, c, event)
		}
	}

	if err := c.queue.Enqueue(ctx, queued); err != nil {
		c.logger.Debug("mail event not queued", "block", entry.BlockNumber, "error", err)
	}
}
