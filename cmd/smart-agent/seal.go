// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/evannetwork/smartagent/lib/sealed"
	"github.com/evannetwork/smartagent/lib/secret"
)

// runSealAccounts encrypts a plain accounts file so it can be
// referenced as accounts.sealed_file.
func runSealAccounts(args []string) error {
	var (
		recipients []string
		output     string
		generate   bool
	)
	flagSet := pflag.NewFlagSet("seal-accounts", pflag.ContinueOnError)
	flagSet.StringArrayVar(&recipients, "recipient", nil, "age recipient (repeatable)")
	flagSet.StringVar(&output, "output", "", "write the sealed file here (default: stdout)")
	flagSet.BoolVar(&generate, "generate-identity", false, "create a new age identity, print it to stderr, and seal to it")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("seal-accounts takes exactly one accounts file")
	}

	if generate {
		keypair, err := sealed.GenerateKeypair()
		if err != nil {
			return err
		}
		defer keypair.Close()
		fmt.Fprintf(os.Stderr, "# public key: %s\n%s\n", keypair.Recipient, keypair.Identity.Bytes())
		recipients = append(recipients, keypair.Recipient)
	}
	if len(recipients) == 0 {
		return errors.New("at least one --recipient (or --generate-identity) is required")
	}

	plaintext, err := os.ReadFile(flagSet.Arg(0))
	if err != nil {
		return fmt.Errorf("reading accounts file: %w", err)
	}
	defer secret.Zero(plaintext)
	// Reject files the agent would fail to load.
	var accounts map[string]string
	if err := json.Unmarshal(jsonc.ToJSON(plaintext), &accounts); err != nil {
		return fmt.Errorf("accounts file is not an account -> key object: %w", err)
	}

	ciphertext, err := sealed.Encrypt(plaintext, recipients)
	if err != nil {
		return err
	}
	if output == "" {
		_, err = os.Stdout.Write(ciphertext)
		return err
	}
	return os.WriteFile(output, ciphertext, 0o600)
}
