// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evannetwork/smartagent/lib/evanauth"
	"github.com/evannetwork/smartagent/lib/metrics"
)

// Chain answers the registry questions the Authorizer asks.
type Chain interface {
	// IdentityOf returns the identity registered for account, or the
	// zero address.
	IdentityOf(ctx context.Context, account common.Address) (common.Address, error)

	// ProfileOf returns the profile registered for identity, or the
	// zero address.
	ProfileOf(ctx context.Context, identity common.Address) (common.Address, error)

	// KeyHasPurpose reports whether identity's key holder grants
	// account the given purpose.
	KeyHasPurpose(ctx context.Context, identity, account common.Address, purpose uint64) (bool, error)
}

// AuthorizerConfig configures an Authorizer.
type AuthorizerConfig struct {
	Chain Chain

	// Cache bounds the three caches (identities, profiles,
	// permissions) individually.
	Cache CacheConfig

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type permissionKey struct {
	identity common.Address
	account  common.Address
	purpose  uint64
}

// Authorizer resolves and checks the identity an account acts for.
type Authorizer struct {
	chain   Chain
	logger  *slog.Logger
	metrics *metrics.Metrics

	identities  *Cache[common.Address, common.Address]
	profiles    *Cache[common.Address, common.Address]
	permissions *Cache[permissionKey, bool]
}

func NewAuthorizer(config AuthorizerConfig) (*Authorizer, error) {
	if config.Chain == nil {
		return nil, errors.New("identity: Chain is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{
		chain:       config.Chain,
		logger:      logger,
		metrics:     config.Metrics,
		identities:  NewCache[common.Address, common.Address](config.Cache),
		profiles:    NewCache[common.Address, common.Address](config.Cache),
		permissions: NewCache[permissionKey, bool](config.Cache),
	}, nil
}

// AuthorizeIdentity returns the identity components.Account acts for.
// With no claimed identity, the registry's identity for the account is
// used; a missing registry entry or a missing profile means the account
// acts for itself. When the identity differs from the account, the
// account must hold purpose on the identity's key holder, otherwise an
// evanauth authorization error wrapping evanauth.ErrNoPermission is
// returned. Chain failures are returned unclassified.
func (a *Authorizer) AuthorizeIdentity(ctx context.Context, components *evanauth.Components, purpose uint64) (common.Address, error) {
	account := components.Account

	identity := components.Identity
	if !components.HasIdentity() {
		resolved, err := a.identityOf(ctx, account)
		if err != nil {
			return common.Address{}, err
		}
		if resolved == (common.Address{}) {
			return account, nil
		}
		identity = resolved
	}

	profile, err := a.profileOf(ctx, identity)
	if err != nil {
		return common.Address{}, err
	}
	if profile == (common.Address{}) {
		return account, nil
	}

	if identity == account {
		return identity, nil
	}

	allowed, err := a.keyHasPurpose(ctx, identity, account, purpose)
	if err != nil {
		return common.Address{}, err
	}
	if !allowed {
		a.metrics.AuthFailure(evanauth.KindAuthorization.String())
		a.logger.Debug("identity permission denied",
			"account", account.Hex(), "identity", identity.Hex(), "purpose", purpose)
		return common.Address{}, evanauth.Authorization(fmt.Errorf("%w: %s on %s (purpose %d)",
			evanauth.ErrNoPermission, account.Hex(), identity.Hex(), purpose))
	}
	return identity, nil
}

func (a *Authorizer) identityOf(ctx context.Context, account common.Address) (common.Address, error) {
	if identity, ok := a.identities.Lookup(account); ok {
		return identity, nil
	}
	identity, err := a.chain.IdentityOf(ctx, account)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolving identity of %s: %w", account.Hex(), err)
	}
	a.identities.Store(account, identity)
	return identity, nil
}

func (a *Authorizer) profileOf(ctx context.Context, identity common.Address) (common.Address, error) {
	if profile, ok := a.profiles.Lookup(identity); ok {
		return profile, nil
	}
	profile, err := a.chain.ProfileOf(ctx, identity)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolving profile of %s: %w", identity.Hex(), err)
	}
	a.profiles.Store(identity, profile)
	return profile, nil
}

func (a *Authorizer) keyHasPurpose(ctx context.Context, identity, account common.Address, purpose uint64) (bool, error) {
	key := permissionKey{identity: identity, account: account, purpose: purpose}
	if allowed, ok := a.permissions.Lookup(key); ok {
		return allowed, nil
	}
	allowed, err := a.chain.KeyHasPurpose(ctx, identity, account, purpose)
	if err != nil {
		return false, fmt.Errorf("checking purpose %d of %s on %s: %w", purpose, account.Hex(), identity.Hex(), err)
	}
	a.permissions.Store(key, allowed)
	return allowed, nil
}

// Cleanup drops expired entries from every cache.
func (a *Authorizer) Cleanup() int {
	return a.identities.Cleanup() + a.profiles.Cleanup() + a.permissions.Cleanup()
}

// CacheSize is the total entry count across the caches.
func (a *Authorizer) CacheSize() int {
	return a.identities.Len() + a.profiles.Len() + a.permissions.Len()
}
