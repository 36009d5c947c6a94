// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package payments keeps an agent's payment channel to the payment
// agent funded.
//
// A check asks the confirmation service for the agent's channels and
// acts on the first one that matches:
//
//   - an OPEN channel whose unspent deposit is at least the low-water
//     mark needs nothing;
//   - an OPEN channel below the low-water mark is topped up by one
//     step and a balance proof for the new deposit is confirmed;
//   - an UNCONFIRMED channel has a balance proof for its deposit
//     confirmed;
//   - otherwise a new channel is opened with the initial deposit, the
//     check waits for the settle delay, and the proof is confirmed.
//
// All amounts are integer wei held in [math/big.Int]. The on-chain
// side lives behind [Ledger]; [ChainLedger] implements it with the
// channel manager contract. [Scheduler] runs checks on a cron schedule
// without ever overlapping two checks for the same agent.
package payments
