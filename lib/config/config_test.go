// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/evannetwork/smartagent/lib/sealed"
	"github.com/evannetwork/smartagent/lib/wei"
)

const agentAccount = "0x001De828935e8c7e4cb56Fe610495cAe63fb2612"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smart-agent.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	configuration := Default()
	if configuration.Ethereum.WSAddress != "wss://testcore.evan.network/ws" {
		t.Errorf("ws_address = %q", configuration.Ethereum.WSAddress)
	}
	if configuration.Ethereum.ReconnectDelay != time.Second {
		t.Errorf("reconnect_delay = %v, want 1s", configuration.Ethereum.ReconnectDelay)
	}
	if configuration.Payments.LowWaterMark.String() != "100000000000000000" {
		t.Errorf("low_water_mark = %s", configuration.Payments.LowWaterMark)
	}
	if configuration.Payments.Schedule != "0 0 * * *" {
		t.Errorf("schedule = %q", configuration.Payments.Schedule)
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv("SMART_AGENT_CONFIG", "")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "SMART_AGENT_CONFIG") {
		t.Fatalf("Load() error = %v, want SMART_AGENT_CONFIG hint", err)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
ethereum:
  ws_address: ws://localhost:8546
  contracts:
    event_hub: 0x00000000000000000000000000000000000000e1
payments:
  low_water_mark: 5e17
agents:
  - name: onboarding
    account: `+agentAccount+`
    listen_mail: true
    payments_enabled: true
    payments:
      step: "2000000000000000000"
      schedule: "*/30 * * * *"
`)
	t.Setenv("SMART_AGENT_CONFIG", path)

	configuration, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if configuration.Ethereum.WSAddress != "ws://localhost:8546" {
		t.Errorf("ws_address = %q", configuration.Ethereum.WSAddress)
	}
	if configuration.Ethereum.Keepalive != 5*time.Second {
		t.Errorf("keepalive lost its default: %v", configuration.Ethereum.Keepalive)
	}

	agent, ok := configuration.Agent("onboarding")
	if !ok {
		t.Fatal("agent onboarding not found")
	}
	payments := configuration.PaymentsFor(agent)
	if payments.LowWaterMark.String() != "500000000000000000" {
		t.Errorf("low_water_mark = %s, want top-level override", payments.LowWaterMark)
	}
	if payments.Step.String() != "2000000000000000000" {
		t.Errorf("step = %s, want agent override", payments.Step)
	}
	if payments.Schedule != "*/30 * * * *" {
		t.Errorf("schedule = %q, want agent override", payments.Schedule)
	}
	if payments.CheckPath != "/api/smart-agents/ipfs-payments/channel/get" {
		t.Errorf("check_path = %q, want default", payments.CheckPath)
	}
	if configuration.Payments.Step.String() != "1000000000000000000" {
		t.Errorf("merging modified the top-level step: %s", configuration.Payments.Step)
	}
}

func TestVariableExpansion(t *testing.T) {
	t.Setenv("AGENT_RPC_HOST", "rpc.internal")
	t.Setenv("AGENT_UNSET", "")
	configuration, err := Parse([]byte(`
ethereum:
  ws_address: wss://${AGENT_RPC_HOST}/ws
http:
  listen: ${AGENT_UNSET:-127.0.0.1:9090}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if configuration.Ethereum.WSAddress != "wss://rpc.internal/ws" {
		t.Errorf("ws_address = %q", configuration.Ethereum.WSAddress)
	}
	if configuration.HTTP.Listen != "127.0.0.1:9090" {
		t.Errorf("listen = %q", configuration.HTTP.Listen)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ETH_WS_ADDRESS", "wss://core.evan.network/ws")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_DISABLED", "true")
	t.Setenv("SMART_AGENT_LISTEN", ":9000")

	configuration, err := Parse([]byte("ethereum:\n  ws_address: ws://ignored\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if configuration.Ethereum.WSAddress != "wss://core.evan.network/ws" {
		t.Errorf("ws_address = %q", configuration.Ethereum.WSAddress)
	}
	if configuration.Redis.Address() != "redis.internal:6380" || configuration.Redis.DB != 3 {
		t.Errorf("redis = %+v", configuration.Redis)
	}
	if !configuration.Redis.Disabled {
		t.Error("REDIS_DISABLED not applied")
	}
	if configuration.HTTP.Listen != ":9000" {
		t.Errorf("listen = %q", configuration.HTTP.Listen)
	}

	t.Setenv("REDIS_PORT", "not-a-port")
	if _, err := Parse(nil); err == nil {
		t.Error("Parse accepted a non-numeric REDIS_PORT")
	}
}

func validConfig() *Config {
	configuration := Default()
	configuration.Agents = []AgentConfig{{Name: "onboarding", Account: agentAccount, PaymentsEnabled: true}}
	return configuration
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"http_scheme", func(c *Config) { c.Ethereum.WSAddress = "https://core" }, "must use ws or wss"},
		{"no_agents", func(c *Config) { c.Agents = nil }, "at least one agent"},
		{"duplicate_agent", func(c *Config) { c.Agents = append(c.Agents, c.Agents[0]) }, "used by another agent"},
		{"bad_agent_name", func(c *Config) { c.Agents[0].Name = "has space" }, "must match"},
		{"bad_account_format", func(c *Config) { c.Agents[0].Account = "0x123" }, "not a hex address"},
		{"zero_contract", func(c *Config) {
			c.Ethereum.Contracts.UserRegistry = common.Address{}.Hex()
		}, "must not be the zero address"},
		{"mail_without_contracts", func(c *Config) { c.Agents[0].ListenMail = true }, "listen_mail requires"},
		{"bad_schedule", func(c *Config) { c.Payments.Schedule = "every day" }, "schedule"},
		{"unset_initial_deposit", func(c *Config) {
			c.Agents[0].Payments = &PaymentsConfig{}
			c.Payments.InitialDeposit = wei.Amount{}
		}, "initial_deposit must be positive"},
		{"production_inline_keys", func(c *Config) {
			c.Environment = Production
			c.Accounts.Keys = map[string]string{agentAccount: "00"}
		}, "not allowed in production"},
		{"half_sealed", func(c *Config) { c.Accounts.SealedFile = "accounts.age" }, "must be set together"},
		{"redis_disabled_without_file", func(c *Config) {
			c.Redis.Disabled = true
			c.Redis.StateFile = ""
		}, "redis.state_file"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			configuration := validConfig()
			test.mutate(configuration)
			err := configuration.Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	configuration := validConfig()
	configuration.Ethereum.WSAddress = ""
	configuration.HTTP.Listen = ""
	err := configuration.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	for _, want := range []string{"ws_address is required", "http.listen is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %v, missing %q", err, want)
		}
	}
}

func hexKey(t *testing.T) (common.Address, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), common.Bytes2Hex(crypto.FromECDSA(key))
}

func TestLoadKeyRingSources(t *testing.T) {
	inlineAccount, inlineKey := hexKey(t)
	environmentAccount, environmentKey := hexKey(t)
	fileAccount, fileKey := hexKey(t)
	sealedAccount, sealedKey := hexKey(t)
	directory := t.TempDir()

	accountsFile := filepath.Join(directory, "accounts.json")
	document := "{\n  // operator account\n  \"" + fileAccount.Hex() + "\": \"0x" + fileKey + "\",\n}\n"
	if err := os.WriteFile(accountsFile, []byte(document), 0o600); err != nil {
		t.Fatal(err)
	}

	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer keypair.Close()
	identityFile := filepath.Join(directory, "agent.key")
	if err := os.WriteFile(identityFile, append(append([]byte(nil), keypair.Identity.Bytes()...), '\n'), 0o600); err != nil {
		t.Fatal(err)
	}
	ciphertext, err := sealed.Encrypt([]byte(`{"`+sealedAccount.Hex()+`": "`+sealedKey+`"}`), []string{keypair.Recipient})
	if err != nil {
		t.Fatal(err)
	}
	sealedFile := filepath.Join(directory, "accounts.age")
	if err := os.WriteFile(sealedFile, ciphertext, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ETH_ACCOUNTS", `{"`+environmentAccount.Hex()+`": "`+environmentKey+`"}`)
	configuration, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	configuration.Accounts.Keys = map[string]string{inlineAccount.Hex(): inlineKey}
	configuration.Accounts.File = accountsFile
	configuration.Accounts.SealedFile = sealedFile
	configuration.Accounts.IdentityFile = identityFile

	ring, err := configuration.LoadKeyRing()
	if err != nil {
		t.Fatalf("LoadKeyRing: %v", err)
	}
	defer ring.Close()

	if ring.Len() != 4 {
		t.Fatalf("ring has %d keys, want 4", ring.Len())
	}
	for account, wantKey := range map[common.Address]string{
		inlineAccount:      inlineKey,
		environmentAccount: environmentKey,
		fileAccount:        fileKey,
		sealedAccount:      sealedKey,
	} {
		key, ok := ring.Key(account)
		if !ok {
			t.Errorf("no key for %s", account.Hex())
			continue
		}
		if common.Bytes2Hex(key.Bytes()) != wantKey {
			t.Errorf("wrong key for %s", account.Hex())
		}
	}
}

func TestLoadKeyRingConflict(t *testing.T) {
	account, key := hexKey(t)
	_, otherKey := hexKey(t)
	t.Setenv("ETH_ACCOUNTS", `{"`+account.Hex()+`": "`+otherKey+`"}`)

	configuration, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	configuration.Accounts.Keys = map[string]string{account.Hex(): key}
	if _, err := configuration.LoadKeyRing(); err == nil || !strings.Contains(err.Error(), "conflicting key") {
		t.Fatalf("LoadKeyRing error = %v, want conflicting key", err)
	}
}
