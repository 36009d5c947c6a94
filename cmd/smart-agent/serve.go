// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"
	"unicode"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evannetwork/smartagent/agent"
	"github.com/evannetwork/smartagent/api"
	"github.com/evannetwork/smartagent/lib/chain"
	"github.com/evannetwork/smartagent/lib/clock"
	"github.com/evannetwork/smartagent/lib/config"
	"github.com/evannetwork/smartagent/lib/evanauth"
	"github.com/evannetwork/smartagent/lib/identity"
	"github.com/evannetwork/smartagent/lib/metrics"
	"github.com/evannetwork/smartagent/lib/version"
	"github.com/evannetwork/smartagent/lib/watermark"
	"github.com/evannetwork/smartagent/transport"
)

// serve wires the runtime together and blocks until ctx is cancelled.
func serve(ctx context.Context, configuration *config.Config, logger *slog.Logger) error {
	clk := clock.Real()
	collectors := metrics.New()

	keys, err := configuration.LoadKeyRing()
	if err != nil {
		return fmt.Errorf("loading account keys: %w", err)
	}
	defer keys.Close()
	logger.Info("account keys loaded", "accounts", keys.Len())

	registry := agent.NewRegistry()
	supervisor, err := transport.New(transport.Config{
		Dialer: &transport.WebsocketDialer{
			Keepalive: configuration.Ethereum.Keepalive,
			Clock:     clk,
			Logger:    logger,
		},
		Owners:         registry,
		ReconnectDelay: configuration.Ethereum.ReconnectDelay,
		Clock:          clk,
		Logger:         logger,
		Metrics:        collectors,
	})
	if err != nil {
		return err
	}
	defer supervisor.Close()
	supervisor.OnReconnect(func(context.Context) {
		logger.Info("RPC connection restored", "url", configuration.Ethereum.WSAddress)
	})
	if err := supervisor.Connect(ctx, configuration.Ethereum.WSAddress); err != nil {
		// The supervisor keeps reconnecting; calls park until it succeeds.
		logger.Warn("initial RPC connection failed", "url", configuration.Ethereum.WSAddress, "error", err)
	}

	var chainID *big.Int
	if configuration.Ethereum.ChainID != 0 {
		chainID = new(big.Int).SetUint64(configuration.Ethereum.ChainID)
	}
	client, err := chain.NewClient(chain.ClientConfig{
		Caller:  supervisor,
		ChainID: chainID,
		Clock:   clk,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	contracts := configuration.Ethereum.Contracts
	chainRegistry := &chain.Registry{
		Client:       client,
		UserRegistry: common.HexToAddress(contracts.UserRegistry),
		ProfileIndex: common.HexToAddress(contracts.ProfileIndex),
	}

	authorizer, err := identity.NewAuthorizer(identity.AuthorizerConfig{
		Chain: chainRegistry,
		Cache: identity.CacheConfig{
			TTL:        configuration.IdentityCache.TTL,
			MaxEntries: configuration.IdentityCache.MaxEntries,
			Clock:      clk,
		},
		Logger:  logger,
		Metrics: collectors,
	})
	if err != nil {
		return err
	}
	verifier := &evanauth.Verifier{Clock: clk, Metrics: collectors}

	watermarks, err := openWatermarks(ctx, configuration.Redis)
	if err != nil {
		return err
	}
	defer watermarks.Close()

	server, err := api.NewServer(api.ServerConfig{
		Name:      "smart-agent",
		Version:   version.Short(),
		Agents:    registry,
		Transport: supervisor,
		Verifier:  verifier,
		Metrics:   collectors,
		Clock:     clk,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	dependencies := agent.Dependencies{
		Keys:       keys,
		Transport:  supervisor,
		Blocks:     client,
		Identities: chainRegistry,
		Verifier:   verifier,
		Authorizer: authorizer,
		Watermarks: watermarks,
		Ledgers:    agent.ChainLedgers(client),
		EventHub:   common.HexToAddress(contracts.EventHub),
		Mailbox:    common.HexToAddress(contracts.Mailbox),
		Clock:      clk,
		Logger:     logger,
		Metrics:    collectors,
	}
	defer registry.Close()
	for _, agentConfig := range configuration.Agents {
		running, err := agent.New(agent.ConfigFrom(configuration, agentConfig), dependencies)
		if err != nil {
			return err
		}
		if err := registry.Register(running); err != nil {
			return err
		}
		if err := running.Initialize(ctx); err != nil {
			return fmt.Errorf("starting agent %q: %w", agentConfig.Name, err)
		}
		middleware := agentConfig.AuthMiddleware
		if middleware == "" {
			middleware = defaultMiddlewareName(agentConfig.Name)
		}
		if err := running.RegisterAuthMiddleware(middleware, server.Middlewares); err != nil {
			return fmt.Errorf("agent %q: %w", agentConfig.Name, err)
		}
	}

	listener, err := api.NewListener(api.ListenerConfig{
		Address: configuration.HTTP.Listen,
		Handler: server,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	go sweepIdentityCache(ctx, clk, authorizer, configuration.IdentityCache.TTL, logger)
	return listener.Serve(ctx)
}

func openWatermarks(ctx context.Context, redisConfig config.RedisConfig) (watermark.Store, error) {
	if redisConfig.Disabled {
		store, err := watermark.OpenFile(redisConfig.StateFile)
		if err != nil {
			return nil, fmt.Errorf("opening watermark file: %w", err)
		}
		return store, nil
	}
	store, err := watermark.OpenRedis(ctx, watermark.RedisOptions{
		URL:       redisConfig.URL,
		Address:   redisConfig.Address(),
		Password:  redisConfig.Password,
		DB:        redisConfig.DB,
		KeyPrefix: redisConfig.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return store, nil
}

// sweepIdentityCache drops expired identity cache entries once per TTL.
func sweepIdentityCache(ctx context.Context, clk clock.Clock, authorizer *identity.Authorizer, ttl time.Duration, logger *slog.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := clk.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := authorizer.Cleanup(); removed > 0 {
				logger.Debug("identity cache swept", "removed", removed, "remaining", authorizer.CacheSize())
			}
		}
	}
}

// defaultMiddlewareName turns "key-exchange" into "ensureKeyExchangeAuth".
func defaultMiddlewareName(agentName string) string {
	var builder strings.Builder
	builder.WriteString("ensure")
	upper := true
	for _, r := range agentName {
		if r == '-' || r == '_' || r == ' ' || r == '.' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		builder.WriteRune(r)
	}
	builder.WriteString("Auth")
	return builder.String()
}
