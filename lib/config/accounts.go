// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/jsonc"

	"github.com/evannetwork/smartagent/lib/sealed"
	"github.com/evannetwork/smartagent/lib/secret"
)

// KeyRing holds account private keys in locked memory.
type KeyRing struct {
	keys map[common.Address]*secret.Buffer
}

// Key returns the private key for account.
func (k *KeyRing) Key(account common.Address) (*secret.Buffer, bool) {
	key, ok := k.keys[account]
	return key, ok
}

// Accounts returns the accounts in the ring, sorted.
func (k *KeyRing) Accounts() []common.Address {
	accounts := make([]common.Address, 0, len(k.keys))
	for account := range k.keys {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return strings.Compare(accounts[i].Hex(), accounts[j].Hex()) < 0
	})
	return accounts
}

// Len returns the number of keys.
func (k *KeyRing) Len() int { return len(k.keys) }

// Close releases every key.
func (k *KeyRing) Close() error {
	var errs []error
	for account, key := range k.keys {
		errs = append(errs, key.Close())
		delete(k.keys, account)
	}
	return errors.Join(errs...)
}

func (k *KeyRing) add(source, account, hexKey string) error {
	if !common.IsHexAddress(account) {
		return fmt.Errorf("%s: %q is not an account address", source, account)
	}
	address := common.HexToAddress(account)
	key, err := secret.NewFromHex(hexKey)
	if err != nil {
		return fmt.Errorf("%s: key for %s: %w", source, address.Hex(), err)
	}
	if existing, ok := k.keys[address]; ok {
		same := string(existing.Bytes()) == string(key.Bytes())
		key.Close()
		if !same {
			return fmt.Errorf("%s: conflicting key for %s", source, address.Hex())
		}
		return nil
	}
	k.keys[address] = key
	return nil
}

// LoadKeyRing gathers keys from every configured source. A source that
// repeats an account with the same key is accepted; a different key
// is an error.
func (c *Config) LoadKeyRing() (*KeyRing, error) {
	ring := &KeyRing{keys: make(map[common.Address]*secret.Buffer)}
	fail := func(err error) (*KeyRing, error) {
		ring.Close()
		return nil, err
	}

	for account, key := range c.Accounts.Keys {
		if err := ring.add("accounts.keys", account, key); err != nil {
			return fail(err)
		}
	}

	if c.Accounts.fromEnvironment != "" {
		if err := ring.addDocument("ETH_ACCOUNTS", []byte(c.Accounts.fromEnvironment)); err != nil {
			return fail(err)
		}
	}

	if c.Accounts.File != "" {
		data, err := os.ReadFile(c.Accounts.File)
		if err != nil {
			return fail(fmt.Errorf("accounts.file: %w", err))
		}
		err = ring.addDocument(c.Accounts.File, data)
		secret.Zero(data)
		if err != nil {
			return fail(err)
		}
	}

	if c.Accounts.SealedFile != "" {
		plaintext, err := sealed.DecryptFile(c.Accounts.SealedFile, c.Accounts.IdentityFile)
		if err != nil {
			return fail(fmt.Errorf("accounts.sealed_file: %w", err))
		}
		err = ring.addDocument(c.Accounts.SealedFile, plaintext.Bytes())
		plaintext.Close()
		if err != nil {
			return fail(err)
		}
	}

	return ring, nil
}

// addDocument parses a JSON object (comments and trailing commas
// allowed) of account -> hex key.
func (k *KeyRing) addDocument(source string, data []byte) error {
	stripped := jsonc.ToJSON(data)
	defer secret.Zero(stripped)

	var accounts map[string]string
	if err := json.Unmarshal(stripped, &accounts); err != nil {
		return fmt.Errorf("%s: parsing accounts: %w", source, err)
	}
	for account, key := range accounts {
		if err := k.add(source, account, key); err != nil {
			return err
		}
	}
	return nil
}
