// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the smart agent configuration.
//
// Configuration comes from a single YAML file named by the
// SMART_AGENT_CONFIG environment variable ([Load]) or the --config flag
// ([LoadFile]). Before parsing, ${VAR} and ${VAR:-default} references
// anywhere in the file are expanded from the environment. After
// parsing, a fixed set of deployment variables override file values so
// that container deployments can keep using the variables the agent
// has always honoured:
//
//	ETH_WS_ADDRESS       ethereum.ws_address
//	ETH_ACCOUNTS         JSON object of account -> private key, merged into the key ring
//	REDIS_URL            redis.url (takes precedence over host/port/db/password)
//	REDIS_HOST, REDIS_PORT, REDIS_DB, REDIS_PASSWORD
//	REDIS_DISABLED       "true" switches the watermark store to redis.state_file
//	SMART_AGENT_LISTEN   http.listen
//
// Private keys never stay in the Config value. [Config.LoadKeyRing]
// gathers them from inline development keys, ETH_ACCOUNTS, a JSON
// (with comments) accounts file and an age-sealed accounts file, and
// moves each into a locked [secret.Buffer].
//
// Payment settings exist at two levels: the top-level payments section
// holds defaults for every agent, and an agent's own payments section
// overrides individual fields ([Config.PaymentsFor]).
//
// [Config.Validate] reports every problem at once via errors.Join.
// Agent-level identity checks (missing key for an account, zero
// identity) happen when the agent initializes, not here.
package config
