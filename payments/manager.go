// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/evannetwork/smartagent/lib/clock"
	"github.com/evannetwork/smartagent/lib/config"
	"github.com/evannetwork/smartagent/lib/metrics"
)

// Settings are one agent's resolved payment parameters.
type Settings struct {
	PaymentAgent   common.Address
	LowWaterMark   *big.Int
	Step           *big.Int
	InitialDeposit *big.Int

	// ChannelDelay is how long a check waits after opening a channel
	// before confirming it.
	ChannelDelay time.Duration
}

// SettingsFrom resolves the payment section of the configuration. An
// unset initial deposit defaults to one step.
func SettingsFrom(payments config.PaymentsConfig) (Settings, error) {
	if !common.IsHexAddress(payments.PaymentAgent) {
		return Settings{}, fmt.Errorf("payments: invalid payment agent address %q", payments.PaymentAgent)
	}
	settings := Settings{
		PaymentAgent:   common.HexToAddress(payments.PaymentAgent),
		LowWaterMark:   payments.LowWaterMark.Int(),
		Step:           payments.Step.Int(),
		InitialDeposit: payments.Step.Int(),
		ChannelDelay:   payments.ChannelDelay,
	}
	if payments.InitialDeposit.IsSet() {
		settings.InitialDeposit = payments.InitialDeposit.Int()
	}
	if settings.Step.Sign() <= 0 {
		return Settings{}, errors.New("payments: step must be positive")
	}
	if settings.LowWaterMark.Sign() < 0 {
		return Settings{}, errors.New("payments: low-water mark must not be negative")
	}
	if settings.InitialDeposit.Sign() <= 0 {
		return Settings{}, errors.New("payments: initial deposit must be positive")
	}
	return settings, nil
}

// ChannelService is the confirmation service as seen by a Manager.
// *Client implements it.
type ChannelService interface {
	Channels(ctx context.Context) ([]Channel, error)
	Confirm(ctx context.Context, openBlockNumber uint64, proof string) error
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Agent names the owning agent in logs and metrics.
	Agent    string
	Settings Settings
	Service  ChannelService
	Ledger   Ledger
	Clock    clock.Clock
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Manager performs channel checks for one agent.
type Manager struct {
	agent    string
	settings Settings
	service  ChannelService
	ledger   Ledger
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewManager validates the configuration and returns a Manager.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Service == nil {
		return nil, errors.New("payments: manager requires a channel service")
	}
	if config.Ledger == nil {
		return nil, errors.New("payments: manager requires a ledger")
	}
	if config.Settings.Step == nil || config.Settings.LowWaterMark == nil || config.Settings.InitialDeposit == nil {
		return nil, errors.New("payments: manager requires resolved settings")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		agent:    config.Agent,
		settings: config.Settings,
		service:  config.Service,
		ledger:   config.Ledger,
		clock:    clk,
		logger:   logger.With("agent", config.Agent),
		metrics:  config.Metrics,
	}, nil
}

// CheckChannels runs one check. Errors from any step abort the check
// and are returned; nothing is retried here.
func (m *Manager) CheckChannels(ctx context.Context) (err error) {
	logger := m.logger.With("check_id", uuid.NewString())
	defer func() { m.metrics.PaymentCheck(m.agent, err) }()

	logger.Debug("checking payment channels")
	channels, err := m.service.Channels(ctx)
	if err != nil {
		return fmt.Errorf("fetching channels: %w", err)
	}

	var (
		openBlock uint64
		proof     string
	)
	if channel, found := firstInState(channels, StateOpen); found {
		deposit := channel.Deposit.Int()
		available := new(big.Int).Sub(deposit, channel.Balance.Int())
		if available.Cmp(m.settings.LowWaterMark) >= 0 {
			logger.Debug("payment channel has enough funds",
				"channel", channel.OpenBlockNumber, "available", available.String())
			return nil
		}

		logger.Info("topping up payment channel",
			"channel", channel.OpenBlockNumber, "available", available.String(), "step", m.settings.Step.String())
		if err := m.ledger.TopUp(ctx, channel, m.settings.Step); err != nil {
			return fmt.Errorf("topping up channel %d: %w", channel.OpenBlockNumber, err)
		}
		m.metrics.ChannelOperation(m.agent, "top_up")
		deposit.Add(deposit, m.settings.Step)

		openBlock = uint64(channel.OpenBlockNumber)
		proof, err = m.ledger.SignBalanceProof(channel.Receiver, openBlock, deposit)
		if err != nil {
			return fmt.Errorf("signing balance proof: %w", err)
		}
	} else if channel, found := firstInState(channels, StateUnconfirmed); found {
		logger.Info("confirming unconfirmed payment channel", "channel", channel.OpenBlockNumber)
		openBlock = uint64(channel.OpenBlockNumber)
		proof, err = m.ledger.SignBalanceProof(channel.Receiver, openBlock, channel.Deposit.Int())
		if err != nil {
			return fmt.Errorf("signing balance proof: %w", err)
		}
	} else {
		logger.Info("opening payment channel",
			"receiver", m.settings.PaymentAgent, "deposit", m.settings.InitialDeposit.String())
		openBlock, err = m.ledger.Open(ctx, m.settings.PaymentAgent, m.settings.InitialDeposit)
		if err != nil {
			return fmt.Errorf("opening channel: %w", err)
		}
		m.metrics.ChannelOperation(m.agent, "open")
		proof, err = m.ledger.SignBalanceProof(m.settings.PaymentAgent, openBlock, m.settings.InitialDeposit)
		if err != nil {
			return fmt.Errorf("signing balance proof: %w", err)
		}

		if m.settings.ChannelDelay > 0 {
			logger.Debug("waiting for channel to settle", "channel", openBlock, "delay", m.settings.ChannelDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.clock.After(m.settings.ChannelDelay):
			}
		}
	}

	if err := m.service.Confirm(ctx, openBlock, proof); err != nil {
		return fmt.Errorf("confirming channel %d: %w", openBlock, err)
	}
	m.metrics.ChannelOperation(m.agent, "confirm")
	logger.Info("payment channel confirmed", "channel", openBlock)
	return nil
}

func firstInState(channels []Channel, state string) (Channel, bool) {
	for _, channel := range channels {
		if channel.State == state {
			return channel, true
		}
	}
	return Channel{}, false
}
