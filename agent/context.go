// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/evannetwork/smartagent/lib/chain"
	"github.com/evannetwork/smartagent/lib/clock"
	"github.com/evannetwork/smartagent/lib/config"
	"github.com/evannetwork/smartagent/lib/evanauth"
	"github.com/evannetwork/smartagent/lib/identity"
	"github.com/evannetwork/smartagent/lib/metrics"
	"github.com/evannetwork/smartagent/lib/secret"
	"github.com/evannetwork/smartagent/lib/watermark"
	"github.com/evannetwork/smartagent/payments"
	"github.com/evannetwork/smartagent/transport"
)

// Config is one agent's configuration. Addresses are hex strings so
// that Initialize can report exactly what is wrong with them.
type Config struct {
	Name string

	Account string

	// Identity is the identity contract the agent acts for. Empty
	// means resolve it from the user registry.
	Identity string

	// RequiredPurpose is the key purpose callers need on a different
	// identity to pass the agent's auth middleware.
	RequiredPurpose uint64

	// ListenMail subscribes to mail events for the identity.
	ListenMail bool

	// QueueSize bounds the serial event queue.
	QueueSize int

	// Payments enables the payment channel scheduler with these
	// effective settings. Nil disables it.
	Payments *config.PaymentsConfig

	// MailHandler receives mail events addressed to the identity.
	// Nil logs each event.
	MailHandler MailHandler
}

// ConfigFrom builds an agent Config from the agent's section of the
// process configuration.
func ConfigFrom(global *config.Config, agent config.AgentConfig) Config {
	result := Config{
		Name:            agent.Name,
		Account:         agent.Account,
		Identity:        agent.Identity,
		RequiredPurpose: agent.RequiredPurpose,
		ListenMail:      agent.ListenMail,
		QueueSize:       agent.QueueSize,
	}
	if agent.PaymentsEnabled {
		effective := global.PaymentsFor(agent)
		result.Payments = &effective
	}
	return result
}

// KeySource looks up account private keys.
// *config.KeyRing implements it.
type KeySource interface {
	Key(account common.Address) (*secret.Buffer, bool)
}

// Subscriber registers log subscriptions. *transport.Supervisor
// implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, subscription *transport.Subscription) error
}

// BlockSource reports the current chain head. *chain.Client
// implements it.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// IdentityResolver maps an account to its identity contract.
// *chain.Registry implements it.
type IdentityResolver interface {
	IdentityOf(ctx context.Context, account common.Address) (common.Address, error)
}

// LedgerFactory builds the on-chain side of an agent's payment channel
// for the channel manager contract at address. identity is the
// contract channels are opened from, or the zero address when the
// agent acts as its own account.
type LedgerFactory func(channelManager, identity common.Address, key *secret.Buffer) payments.Ledger

// ChainLedgers returns a LedgerFactory that transacts through client.
func ChainLedgers(client *chain.Client) LedgerFactory {
	return func(channelManager, identity common.Address, key *secret.Buffer) payments.Ledger {
		return &payments.ChainLedger{
			Channels: &chain.ChannelManager{Client: client, Address: channelManager, Identity: identity},
			Key:      key,
		}
	}
}

// Dependencies are the process-wide services an agent uses.
type Dependencies struct {
	Keys       KeySource
	Transport  Subscriber
	Blocks     BlockSource
	Identities IdentityResolver

	// Verifier and Authorizer back the agent's auth middleware.
	Verifier   *evanauth.Verifier
	Authorizer *identity.Authorizer

	Watermarks watermark.Store
	Ledgers    LedgerFactory

	// EventHub emits mail events; Mailbox is their expected sender.
	EventHub common.Address
	Mailbox  common.Address

	// HTTPClient is used for the confirmation service. Nil means a
	// client with the payment request timeout.
	HTTPClient *http.Client

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Context is one running agent.
type Context struct {
	config       Config
	dependencies Dependencies
	clock        clock.Clock
	logger       *slog.Logger
	queue        *Queue

	// Resolved by Initialize.
	account  common.Address
	identity common.Address
	key      *secret.Buffer
	signer   *evanauth.Signer

	mutex         sync.Mutex
	initialized   bool
	lifetime      context.Context
	cancel        context.CancelFunc
	waitGroup     sync.WaitGroup
	subscriptions map[common.Address]map[string]*transport.Subscription

	paymentsRunning bool
}

// New returns an uninitialized agent.
func New(config Config, dependencies Dependencies) (*Context, error) {
	if config.Name == "" {
		return nil, errors.New("agent: name is required")
	}
	if dependencies.Keys == nil {
		return nil, errors.New("agent: key source is required")
	}
	clk := dependencies.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("agent", config.Name)
	if config.MailHandler == nil {
		config.MailHandler = LogMail
	}

	return &Context{
		config:       config,
		dependencies: dependencies,
		clock:        clk,
		logger:       logger,
		queue: NewQueue(QueueConfig{
			Agent:      config.Name,
			Size:       config.QueueSize,
			Watermarks: dependencies.Watermarks,
			Logger:     logger,
			Metrics:    dependencies.Metrics,
		}),
		subscriptions: make(map[common.Address]map[string]*transport.Subscription),
	}, nil
}

// Initialize validates the agent's configuration, resolves its
// identity, and starts its background work, which runs until ctx is
// cancelled or Close is called. Configuration problems are returned as
// one of the package's configuration errors and nothing is started.
//
// A failure to start the mail subscription is logged and does not fail
// initialization.
func (c *Context) Initialize(ctx context.Context) error {
	c.mutex.Lock()
	if c.initialized {
		c.mutex.Unlock()
		return errors.New("agent: already initialized")
	}
	c.mutex.Unlock()

	account, key, err := c.resolveAccount()
	if err != nil {
		return err
	}
	identity, err := c.resolveIdentity(ctx, account)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	c.account = account
	c.identity = identity
	c.key = key
	c.signer = &evanauth.Signer{Account: account, Identity: identity, Key: key, Clock: c.clock}
	c.lifetime, c.cancel = context.WithCancel(ctx)
	c.initialized = true
	lifetime := c.lifetime
	c.mutex.Unlock()

	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		c.queue.Run(lifetime)
	}()

	if c.config.ListenMail {
		if err := c.ListenToMail(ctx); err != nil {
			c.logger.Warn("could not start listening to mail events", "error", err)
		}
	}
	if c.config.Payments != nil {
		if err := c.StartPaymentScheduler(); err != nil {
			c.Close()
			return err
		}
	}

	c.logger.Info("agent started", "account", account.Hex(), "identity", identity.Hex())
	return nil
}

func (c *Context) resolveAccount() (common.Address, *secret.Buffer, error) {
	if c.config.Account == "" {
		return common.Address{}, nil, ErrNoAccount
	}
	if !common.IsHexAddress(c.config.Account) {
		return common.Address{}, nil, fmt.Errorf("%w: account %q", ErrInvalidAddress, c.config.Account)
	}
	account := common.HexToAddress(c.config.Account)
	if account == (common.Address{}) {
		return common.Address{}, nil, ErrZeroAccount
	}

	key, ok := c.dependencies.Keys.Key(account)
	if !ok || key == nil || key.Len() == 0 {
		return common.Address{}, nil, fmt.Errorf("%w %s", ErrNoPrivateKey, account.Hex())
	}
	private, err := crypto.ToECDSA(key.Bytes())
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}
	if derived := crypto.PubkeyToAddress(private.PublicKey); derived != account {
		return common.Address{}, nil, fmt.Errorf("%w: key is for %s, account is %s", ErrKeyMismatch, derived.Hex(), account.Hex())
	}
	return account, key, nil
}

func (c *Context) resolveIdentity(ctx context.Context, account common.Address) (common.Address, error) {
	if c.config.Identity != "" {
		if !common.IsHexAddress(c.config.Identity) {
			return common.Address{}, fmt.Errorf("%w: identity %q", ErrInvalidAddress, c.config.Identity)
		}
		identity := common.HexToAddress(c.config.Identity)
		if identity == (common.Address{}) {
			return common.Address{}, ErrZeroIdentity
		}
		return identity, nil
	}

	if c.dependencies.Identities == nil {
		return account, nil
	}
	identity, err := c.dependencies.Identities.IdentityOf(ctx, account)
	if err != nil {
		return common.Address{}, fmt.Errorf("agent: resolving identity of %s: %w", account.Hex(), err)
	}
	if identity == (common.Address{}) {
		c.logger.Info("account has no identity contract, acting as account", "account", account.Hex())
		return account, nil
	}
	return identity, nil
}

// Name returns the agent's configured name.
func (c *Context) Name() string { return c.config.Name }

// Account returns the agent's account. Zero before Initialize.
func (c *Context) Account() common.Address {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.account
}

// Identity returns the identity the agent acts for. Zero before
// Initialize.
func (c *Context) Identity() common.Address {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.identity
}

// Signer returns the agent's outbound header signer, or nil before
// Initialize.
func (c *Context) Signer() *evanauth.Signer {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.signer
}

// Queue returns the agent's serial event queue.
func (c *Context) Queue() *Queue { return c.queue }

// Subscriptions returns a snapshot of the agent's live subscriptions
// keyed by contract and event name.
func (c *Context) Subscriptions() map[common.Address]map[string]*transport.Subscription {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	snapshot := make(map[common.Address]map[string]*transport.Subscription, len(c.subscriptions))
	for contract, events := range c.subscriptions {
		copied := make(map[string]*transport.Subscription, len(events))
		for event, subscription := range events {
			copied[event] = subscription
		}
		snapshot[contract] = copied
	}
	return snapshot
}

// addSubscription records subscription, replacing any earlier one for
// the same contract and event. The replaced subscription is closed
// after the lock is released, since its delivery goroutine may be
// waiting on c.mutex.
func (c *Context) addSubscription(subscription *transport.Subscription) {
	c.mutex.Lock()
	events := c.subscriptions[subscription.Contract]
	if events == nil {
		events = make(map[string]*transport.Subscription)
		c.subscriptions[subscription.Contract] = events
	}
	previous := events[subscription.Event]
	events[subscription.Event] = subscription
	c.mutex.Unlock()

	if previous != nil && previous != subscription {
		previous.Close()
	}
}

// Close stops the agent's background work and subscriptions and waits
// for them to finish. The private key stays owned by the key source.
func (c *Context) Close() error {
	c.mutex.Lock()
	cancel := c.cancel
	subscriptions := c.subscriptions
	c.subscriptions = make(map[common.Address]map[string]*transport.Subscription)
	c.mutex.Unlock()

	for _, events := range subscriptions {
		for _, subscription := range events {
			subscription.Close()
		}
	}
	if cancel != nil {
		cancel()
	}
	c.waitGroup.Wait()
	return nil
}

func (c *Context) running() (context.Context, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.lifetime, c.initialized
}
