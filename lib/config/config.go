// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evannetwork/smartagent/lib/wei"
)

// Environment is the deployment type.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the complete agent configuration.
type Config struct {
	Environment   Environment         `yaml:"environment"`
	Ethereum      EthereumConfig      `yaml:"ethereum"`
	Accounts      AccountsConfig      `yaml:"accounts"`
	Redis         RedisConfig         `yaml:"redis"`
	HTTP          HTTPConfig          `yaml:"http"`
	IdentityCache IdentityCacheConfig `yaml:"identity_cache"`

	// Payments holds defaults shared by every agent.
	Payments PaymentsConfig `yaml:"payments"`

	Agents []AgentConfig `yaml:"agents"`
}

// EthereumConfig configures the RPC connection and well-known
// contracts.
type EthereumConfig struct {
	// WSAddress is the websocket JSON-RPC endpoint.
	WSAddress string `yaml:"ws_address"`

	// ChainID signs transactions. Zero means query eth_chainId.
	ChainID uint64 `yaml:"chain_id"`

	// Keepalive is the websocket ping interval.
	Keepalive time.Duration `yaml:"keepalive"`

	// ReconnectDelay is the fixed wait before each reconnect attempt.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	Contracts ContractsConfig `yaml:"contracts"`
}

// ContractsConfig holds contract addresses as hex strings.
type ContractsConfig struct {
	// UserRegistry maps accounts to identity contracts.
	UserRegistry string `yaml:"user_registry"`
	// ProfileIndex maps identities to profile contracts.
	ProfileIndex string `yaml:"profile_index"`
	// EventHub emits mail events.
	EventHub string `yaml:"event_hub"`
	// Mailbox is the expected sender of mail events.
	Mailbox string `yaml:"mailbox"`
}

// AccountsConfig names the sources of account private keys.
type AccountsConfig struct {
	// Keys maps account to hex private key. Development only.
	Keys map[string]string `yaml:"keys"`

	// File is a JSON (comments allowed) object of account -> key.
	File string `yaml:"file"`

	// SealedFile is File encrypted with age; IdentityFile opens it.
	SealedFile   string `yaml:"sealed_file"`
	IdentityFile string `yaml:"identity_file"`

	// fromEnvironment holds ETH_ACCOUNTS.
	fromEnvironment string
}

// RedisConfig configures the watermark store.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`

	// Disabled stores watermarks in StateFile instead of Redis.
	Disabled  bool   `yaml:"disabled"`
	StateFile string `yaml:"state_file"`

	// KeyPrefix namespaces watermark keys.
	KeyPrefix string `yaml:"key_prefix"`
}

// Address returns host:port.
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig configures the inbound API.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// IdentityCacheConfig bounds the identity cache.
type IdentityCacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// PaymentsConfig configures the payment channel manager. In an agent's
// section, zero values inherit the top-level defaults.
type PaymentsConfig struct {
	EdgeServerURL  string `yaml:"edge_server_url"`
	CheckPath      string `yaml:"check_path"`
	ConfirmPath    string `yaml:"confirm_path"`
	ChannelManager string `yaml:"channel_manager"`
	PaymentAgent   string `yaml:"payment_agent"`

	LowWaterMark   wei.Amount `yaml:"low_water_mark"`
	Step           wei.Amount `yaml:"step"`
	InitialDeposit wei.Amount `yaml:"initial_deposit"`

	// ChannelDelay is the settle wait after opening a channel.
	ChannelDelay time.Duration `yaml:"channel_delay"`

	// Schedule is a cron expression (UTC).
	Schedule string `yaml:"schedule"`

	// RequestTimeout bounds each confirmation-service request.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AgentConfig describes one agent.
type AgentConfig struct {
	Name string `yaml:"name"`

	// Account is the agent's key pair address.
	Account string `yaml:"account"`

	// Identity is the identity contract the agent acts for. Empty
	// means resolve it from the user registry at startup.
	Identity string `yaml:"identity"`

	// RequiredPurpose is the key purpose an inbound caller needs to
	// act for a different identity on routes guarded by this agent's
	// middleware.
	RequiredPurpose uint64 `yaml:"required_purpose"`

	// AuthMiddleware names the agent's auth middleware on the HTTP
	// router. Empty means "ensure<Name>Auth".
	AuthMiddleware string `yaml:"auth_middleware"`

	// ListenMail subscribes to key-exchange mail events.
	ListenMail bool `yaml:"listen_mail"`

	// QueueSize bounds the serial event queue.
	QueueSize int `yaml:"queue_size"`

	// PaymentsEnabled starts the payment channel scheduler.
	PaymentsEnabled bool            `yaml:"payments_enabled"`
	Payments        *PaymentsConfig `yaml:"payments,omitempty"`
}

// Default returns the configuration applied before the file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Ethereum: EthereumConfig{
			WSAddress:      "wss://testcore.evan.network/ws",
			Keepalive:      5 * time.Second,
			ReconnectDelay: time.Second,
		},
		Redis: RedisConfig{
			Host:      "127.0.0.1",
			Port:      6379,
			StateFile: "smart-agent-state.cbor",
			KeyPrefix: "evannetwork",
		},
		HTTP: HTTPConfig{Listen: ":8080"},
		IdentityCache: IdentityCacheConfig{
			TTL:        10 * time.Minute,
			MaxEntries: 10000,
		},
		Payments: PaymentsConfig{
			EdgeServerURL:  "https://payments.test.evan.network",
			CheckPath:      "/api/smart-agents/ipfs-payments/channel/get",
			ConfirmPath:    "/api/smart-agents/ipfs-payments/channel/confirm",
			ChannelManager: "0x0A0D9dddEba35Ca0D235A4086086AC704bbc8C2b",
			PaymentAgent:   "0xAF176885bD81D5f6C76eeD23fadb1eb0e5Fe1b1F",
			LowWaterMark:   wei.NewAmount(wei.MustParse("1e17")),
			Step:           wei.NewAmount(wei.MustParse("1e18")),
			InitialDeposit: wei.NewAmount(wei.MustParse("1e18")),
			ChannelDelay:   10 * time.Second,
			Schedule:       "0 0 * * *",
			RequestTimeout: 30 * time.Second,
		},
	}
}

// Load reads the file named by SMART_AGENT_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv("SMART_AGENT_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("SMART_AGENT_CONFIG environment variable not set; " +
			"set it to the path of the agent's YAML config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile reads, expands and parses path, then applies environment
// overrides. It does not validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse is LoadFile for in-memory content.
func Parse(data []byte) (*Config, error) {
	configuration := Default()
	expanded := expandVariables(string(data))
	if err := yaml.Unmarshal([]byte(expanded), configuration); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := configuration.applyEnvironment(); err != nil {
		return nil, err
	}
	return configuration, nil
}

// applyEnvironment applies the deployment variables listed in the
// package documentation.
func (c *Config) applyEnvironment() error {
	if value := os.Getenv("ETH_WS_ADDRESS"); value != "" {
		c.Ethereum.WSAddress = value
	}
	c.Accounts.fromEnvironment = os.Getenv("ETH_ACCOUNTS")

	if value := os.Getenv("REDIS_URL"); value != "" {
		c.Redis.URL = value
	}
	if value := os.Getenv("REDIS_HOST"); value != "" {
		c.Redis.Host = value
	}
	if value := os.Getenv("REDIS_PORT"); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("REDIS_PORT: %w", err)
		}
		c.Redis.Port = port
	}
	if value := os.Getenv("REDIS_DB"); value != "" {
		database, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Redis.DB = database
	}
	if value := os.Getenv("REDIS_PASSWORD"); value != "" {
		c.Redis.Password = value
	}
	if value := os.Getenv("REDIS_DISABLED"); value != "" {
		disabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("REDIS_DISABLED: %w", err)
		}
		c.Redis.Disabled = disabled
	}
	if value := os.Getenv("SMART_AGENT_LISTEN"); value != "" {
		c.HTTP.Listen = value
	}
	return nil
}

// PaymentsFor returns the agent's effective payment settings: the
// top-level defaults with every non-zero agent field applied on top.
func (c *Config) PaymentsFor(agent AgentConfig) PaymentsConfig {
	merged := c.Payments
	override := agent.Payments
	if override == nil {
		return merged
	}
	overrideString(&merged.EdgeServerURL, override.EdgeServerURL)
	overrideString(&merged.CheckPath, override.CheckPath)
	overrideString(&merged.ConfirmPath, override.ConfirmPath)
	overrideString(&merged.ChannelManager, override.ChannelManager)
	overrideString(&merged.PaymentAgent, override.PaymentAgent)
	overrideString(&merged.Schedule, override.Schedule)
	if override.LowWaterMark.IsSet() {
		merged.LowWaterMark = override.LowWaterMark
	}
	if override.Step.IsSet() {
		merged.Step = override.Step
	}
	if override.InitialDeposit.IsSet() {
		merged.InitialDeposit = override.InitialDeposit
	}
	if override.ChannelDelay != 0 {
		merged.ChannelDelay = override.ChannelDelay
	}
	if override.RequestTimeout != 0 {
		merged.RequestTimeout = override.RequestTimeout
	}
	return merged
}

// Agent returns the named agent's configuration.
func (c *Config) Agent(name string) (AgentConfig, bool) {
	for _, agent := range c.Agents {
		if agent.Name == name {
			return agent, true
		}
	}
	return AgentConfig{}, false
}

func overrideString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

var variablePattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVariables replaces ${VAR} and ${VAR:-default}. Unset or empty
// variables without a default expand to the empty string.
func expandVariables(text string) string {
	return variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := variablePattern.FindStringSubmatch(match)
		if value := os.Getenv(strings.TrimSpace(parts[1])); value != "" {
			return value
		}
		return parts[2]
	})
}
