// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evannetwork/smartagent/lib/cron"
)

// agentNamePattern keeps names usable in Redis keys and log output.
var agentNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	endpoint, err := url.Parse(c.Ethereum.WSAddress)
	switch {
	case c.Ethereum.WSAddress == "":
		errs = append(errs, errors.New("ethereum.ws_address is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("ethereum.ws_address: %w", err))
	case endpoint.Scheme != "ws" && endpoint.Scheme != "wss":
		errs = append(errs, fmt.Errorf("ethereum.ws_address must use ws or wss, got %q", endpoint.Scheme))
	}
	if c.Ethereum.Keepalive <= 0 {
		errs = append(errs, errors.New("ethereum.keepalive must be positive"))
	}
	if c.Ethereum.ReconnectDelay <= 0 {
		errs = append(errs, errors.New("ethereum.reconnect_delay must be positive"))
	}
	errs = appendAddressErrors(errs, "ethereum.contracts.user_registry", c.Ethereum.Contracts.UserRegistry, false)
	errs = appendAddressErrors(errs, "ethereum.contracts.profile_index", c.Ethereum.Contracts.ProfileIndex, false)
	errs = appendAddressErrors(errs, "ethereum.contracts.event_hub", c.Ethereum.Contracts.EventHub, false)
	errs = appendAddressErrors(errs, "ethereum.contracts.mailbox", c.Ethereum.Contracts.Mailbox, false)

	if c.Environment == Production && len(c.Accounts.Keys) > 0 {
		errs = append(errs, errors.New("accounts.keys is not allowed in production; use accounts.sealed_file"))
	}
	if (c.Accounts.SealedFile == "") != (c.Accounts.IdentityFile == "") {
		errs = append(errs, errors.New("accounts.sealed_file and accounts.identity_file must be set together"))
	}

	if c.Redis.Disabled && c.Redis.StateFile == "" {
		errs = append(errs, errors.New("redis.state_file is required when redis is disabled"))
	}
	if !c.Redis.Disabled && c.Redis.URL == "" && c.Redis.Host == "" {
		errs = append(errs, errors.New("redis.url or redis.host is required"))
	}

	if c.HTTP.Listen == "" {
		errs = append(errs, errors.New("http.listen is required"))
	}
	if c.IdentityCache.TTL <= 0 {
		errs = append(errs, errors.New("identity_cache.ttl must be positive"))
	}
	if c.IdentityCache.MaxEntries <= 0 {
		errs = append(errs, errors.New("identity_cache.max_entries must be positive"))
	}

	if len(c.Agents) == 0 {
		errs = append(errs, errors.New("at least one agent is required"))
	}
	seen := make(map[string]bool, len(c.Agents))
	for index, agent := range c.Agents {
		prefix := fmt.Sprintf("agents[%d]", index)
		if !agentNamePattern.MatchString(agent.Name) {
			errs = append(errs, fmt.Errorf("%s.name %q must match %s", prefix, agent.Name, agentNamePattern))
		} else if seen[agent.Name] {
			errs = append(errs, fmt.Errorf("%s.name %q is used by another agent", prefix, agent.Name))
		}
		seen[agent.Name] = true

		// Missing and zero agent addresses are reported by the agent
		// itself when it initializes; only the format is checked here.
		for _, field := range [][2]string{{"account", agent.Account}, {"identity", agent.Identity}} {
			if field[1] != "" && !common.IsHexAddress(field[1]) {
				errs = append(errs, fmt.Errorf("%s.%s %q is not a hex address", prefix, field[0], field[1]))
			}
		}
		if agent.QueueSize < 0 {
			errs = append(errs, fmt.Errorf("%s.queue_size must not be negative", prefix))
		}
		if agent.ListenMail && (c.Ethereum.Contracts.EventHub == "" || c.Ethereum.Contracts.Mailbox == "") {
			errs = append(errs, fmt.Errorf("%s.listen_mail requires ethereum.contracts.event_hub and mailbox", prefix))
		}
		if agent.PaymentsEnabled {
			for _, paymentErr := range validatePayments(c.PaymentsFor(agent)) {
				errs = append(errs, fmt.Errorf("%s.payments: %w", prefix, paymentErr))
			}
		}
	}

	return errors.Join(errs...)
}

func validatePayments(payments PaymentsConfig) []error {
	var errs []error
	edge, err := url.Parse(payments.EdgeServerURL)
	if payments.EdgeServerURL == "" || err != nil || edge.Host == "" {
		errs = append(errs, fmt.Errorf("edge_server_url %q is not an absolute URL", payments.EdgeServerURL))
	}
	if payments.CheckPath == "" || payments.ConfirmPath == "" {
		errs = append(errs, errors.New("check_path and confirm_path are required"))
	}
	errs = appendAddressErrors(errs, "channel_manager", payments.ChannelManager, true)
	errs = appendAddressErrors(errs, "payment_agent", payments.PaymentAgent, true)
	if payments.Step.Int().Sign() <= 0 {
		errs = append(errs, errors.New("step must be positive"))
	}
	if payments.InitialDeposit.Int().Sign() <= 0 {
		errs = append(errs, errors.New("initial_deposit must be positive"))
	}
	if payments.ChannelDelay < 0 {
		errs = append(errs, errors.New("channel_delay must not be negative"))
	}
	if _, err := cron.Parse(payments.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}
	return errs
}

// appendAddressErrors validates an optional (or required) hex address.
// The zero address is rejected wherever an address is given.
func appendAddressErrors(errs []error, field, value string, required bool) []error {
	if value == "" {
		if required {
			return append(errs, fmt.Errorf("%s is required", field))
		}
		return errs
	}
	if !common.IsHexAddress(value) {
		return append(errs, fmt.Errorf("%s %q is not a hex address", field, value))
	}
	if common.HexToAddress(value) == (common.Address{}) {
		return append(errs, fmt.Errorf("%s must not be the zero address", field))
	}
	return errs
}
