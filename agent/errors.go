// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import "errors"

// Configuration errors returned by Initialize. Each is fatal for the
// agent.
var (
	ErrNoAccount      = errors.New("agent: no account has been configured")
	ErrInvalidAddress = errors.New("agent: invalid address")
	ErrZeroAccount    = errors.New("agent: account is the zero address")
	ErrNoPrivateKey   = errors.New("agent: no private key for account")
	ErrKeyMismatch    = errors.New("agent: private key does not belong to account")
	ErrZeroIdentity   = errors.New("agent: identity is the zero address")
)

var (
	// ErrNotInitialized is returned by operations that need the
	// resolved identity or the running queue.
	ErrNotInitialized = errors.New("agent: not initialized")

	// ErrDuplicateAgent is returned when registering a second agent
	// with the same name.
	ErrDuplicateAgent = errors.New("agent: duplicate agent name")

	// ErrQueueStopped is returned by Enqueue after the worker exited.
	ErrQueueStopped = errors.New("agent: event queue stopped")

	// ErrSchedulerRunning is returned by StartPaymentScheduler when the
	// agent's scheduler is already running.
	ErrSchedulerRunning = errors.New("agent: payment scheduler already running")
)
