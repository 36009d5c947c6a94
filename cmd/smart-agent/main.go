// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/evannetwork/smartagent/lib/binhash"
	"github.com/evannetwork/smartagent/lib/config"
	"github.com/evannetwork/smartagent/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) > 0 && args[0] == "seal-accounts" {
		return runSealAccounts(args[1:])
	}

	var (
		configPath  string
		listen      string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("smart-agent", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $SMART_AGENT_CONFIG)")
	flagSet.StringVar(&listen, "listen", "", "HTTP listen address, overrides http.listen")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("smart-agent %s\n", version.Full())
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}

	var configuration *config.Config
	if configPath != "" {
		configuration, err = config.LoadFile(configPath)
	} else {
		configuration, err = config.Load()
	}
	if err != nil {
		return err
	}
	if listen != "" {
		configuration.HTTP.Listen = listen
	}
	if err := configuration.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	attributes := []any{"version", version.Info(), "environment", configuration.Environment}
	if digest, path, err := binhash.Self(); err == nil {
		attributes = append(attributes, "binary", path, "blake3", digest.String())
	} else {
		logger.Debug("could not hash own binary", "error", err)
	}
	logger.Info("smart agent starting", attributes...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = serve(ctx, configuration, logger)
	if ctx.Err() != nil {
		logger.Info("smart agent stopped")
		return nil
	}
	return err
}
