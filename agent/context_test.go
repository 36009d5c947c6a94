// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestInitializeValidation(t *testing.T) {
	keys := fakeKeys{}
	account, _ := newAccount(t, keys)
	other, _ := newAccount(t, fakeKeys{})
	mismatched, _ := newAccount(t, fakeKeys{})
	keys[mismatched] = keys[account]

	tests := []struct {
		name     string
		account  string
		identity string
		want     error
	}{
		{"no account", "", "", ErrNoAccount},
		{"invalid account", "0x1234", "", ErrInvalidAddress},
		{"zero account", common.Address{}.Hex(), "", ErrZeroAccount},
		{"no private key", other.Hex(), "", ErrNoPrivateKey},
		{"key for another account", mismatched.Hex(), "", ErrKeyMismatch},
		{"zero identity", account.Hex(), common.Address{}.Hex(), ErrZeroIdentity},
		{"invalid identity", account.Hex(), "identity", ErrInvalidAddress},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			agent, err := New(Config{Name: "test", Account: test.account, Identity: test.identity},
				Dependencies{Keys: keys, Logger: discardLogger()})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer agent.Close()
			err = agent.Initialize(context.Background())
			if !errors.Is(err, test.want) {
				t.Fatalf("Initialize error = %v, want %v", err, test.want)
			}
			if agent.Account() != (common.Address{}) {
				t.Error("a failed Initialize left the account set")
			}
		})
	}
}

func TestInitializeResolvesIdentity(t *testing.T) {
	keys := fakeKeys{}
	account, _ := newAccount(t, keys)
	registered := common.HexToAddress("0x00000000000000000000000000000000000001d0")

	tests := []struct {
		name     string
		identity string
		resolver fakeResolver
		want     common.Address
	}{
		{"configured", registered.Hex(), nil, registered},
		{"from registry", "", fakeResolver{account: registered}, registered},
		{"no registry entry", "", fakeResolver{}, account},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dependencies := Dependencies{Keys: keys, Logger: discardLogger()}
			if test.resolver != nil {
				dependencies.Identities = test.resolver
			}
			agent, err := New(Config{Name: "test", Account: account.Hex(), Identity: test.identity}, dependencies)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer agent.Close()
			if err := agent.Initialize(context.Background()); err != nil {
				t.Fatalf("Initialize: %v", err)
			}
			if agent.Identity() != test.want {
				t.Errorf("Identity = %s, want %s", agent.Identity().Hex(), test.want.Hex())
			}
			if signer := agent.Signer(); signer == nil || signer.Account != account {
				t.Errorf("Signer = %+v, want one for %s", signer, account.Hex())
			}
		})
	}
}

func TestInitializeTwice(t *testing.T) {
	keys := fakeKeys{}
	account, _ := newAccount(t, keys)
	agent, err := New(Config{Name: "test", Account: account.Hex()}, Dependencies{Keys: keys, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer agent.Close()
	if err := agent.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := agent.Initialize(context.Background()); err == nil {
		t.Fatal("second Initialize succeeded")
	}
}

func TestNewRequiresNameAndKeys(t *testing.T) {
	if _, err := New(Config{}, Dependencies{Keys: fakeKeys{}}); err == nil {
		t.Error("New accepted an empty name")
	}
	if _, err := New(Config{Name: "test"}, Dependencies{}); err == nil {
		t.Error("New accepted a missing key source")
	}
}

func TestOperationsRequireInitialize(t *testing.T) {
	agent, err := New(Config{Name: "test"}, Dependencies{Keys: fakeKeys{}, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := agent.ListenToMail(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ListenToMail = %v, want ErrNotInitialized", err)
	}
	if err := agent.StartPaymentScheduler(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("StartPaymentScheduler = %v, want ErrNotInitialized", err)
	}
}
