// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evannetwork/smartagent/payments"
)

// StartPaymentScheduler starts the payment channel scheduler with the
// agent's effective payment settings. The first check runs right away.
// An agent runs at most one scheduler; later calls return
// ErrSchedulerRunning.
func (c *Context) StartPaymentScheduler() error {
	lifetime, initialized := c.running()
	if !initialized {
		return ErrNotInitialized
	}
	settings := c.config.Payments
	if settings == nil {
		return errors.New("agent: payments are not configured")
	}
	if c.dependencies.Ledgers == nil {
		return errors.New("agent: no payment ledger available")
	}
	if !common.IsHexAddress(settings.ChannelManager) {
		return fmt.Errorf("%w: channel manager %q", ErrInvalidAddress, settings.ChannelManager)
	}

	resolved, err := payments.SettingsFrom(*settings)
	if err != nil {
		return err
	}
	httpClient := c.dependencies.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: settings.RequestTimeout}
	}
	client, err := payments.NewClient(payments.ClientConfig{
		BaseURL:     settings.EdgeServerURL,
		CheckPath:   settings.CheckPath,
		ConfirmPath: settings.ConfirmPath,
		HTTPClient:  httpClient,
		Header:      c.Signer(),
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	manager, err := payments.NewManager(payments.ManagerConfig{
		Agent:    c.config.Name,
		Settings: resolved,
		Service:  client,
		Ledger:   c.dependencies.Ledgers(common.HexToAddress(settings.ChannelManager), c.channelSender(), c.key),
		Clock:    c.clock,
		Logger:   c.dependencies.Logger,
		Metrics:  c.dependencies.Metrics,
	})
	if err != nil {
		return err
	}
	scheduler, err := payments.NewScheduler(payments.SchedulerConfig{
		Agent:    c.config.Name,
		Schedule: settings.Schedule,
		Manager:  manager,
		Clock:    c.clock,
		Logger:   c.dependencies.Logger,
	})
	if err != nil {
		return err
	}

	c.mutex.Lock()
	if c.paymentsRunning {
		c.mutex.Unlock()
		return ErrSchedulerRunning
	}
	c.paymentsRunning = true
	c.mutex.Unlock()

	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		scheduler.Run(lifetime)
	}()
	c.logger.Info("payment channel scheduler started", "schedule", settings.Schedule)
	return nil
}

// channelSender is the identity channels are opened from, or the zero
// address when the agent acts as its own account.
func (c *Context) channelSender() common.Address {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.identity == c.account {
		return common.Address{}
	}
	return c.identity
}
