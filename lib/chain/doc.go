// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chain reads from and writes to the evan.network chain over a
// JSON-RPC [Caller], normally the transport supervisor, so every call
// inherits its park-and-replay behavior across reconnects.
//
// [Client] implements bind.ContractBackend and bind.DeployBackend over
// the Caller, so go-ethereum bound contracts read, estimate, sign and
// send through it. Transactions are legacy or dynamic-fee depending on
// whether the chain head carries a base fee. [Registry] answers
// identity questions for lib/identity, [DecodeMailEvent] decodes mail
// events, and [ChannelManager] opens, funds and signs balance proofs
// for payment channels.
package chain
