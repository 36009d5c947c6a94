// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MailEventID is topic 0 of EventHub.MailEvent.
var MailEventID = eventHubContract.Events["MailEvent"].ID

// MailEvent is a decoded EventHub.MailEvent log.
type MailEvent struct {
	Sender    common.Address
	Recipient common.Address
	MailID    *big.Int

	BlockNumber uint64
	LogIndex    uint
	TxHash      common.Hash
}

// DecodeMailEvent decodes entry, which must be a MailEvent log.
func DecodeMailEvent(entry types.Log) (MailEvent, error) {
	if len(entry.Topics) == 0 || entry.Topics[0] != MailEventID {
		return MailEvent{}, errors.New("chain: log is not a MailEvent")
	}
	var fields struct {
		Sender    common.Address
		Recipient common.Address
		MailId    *big.Int
	}
	if err := eventHubContract.UnpackIntoInterface(&fields, "MailEvent", entry.Data); err != nil {
		return MailEvent{}, fmt.Errorf("decoding MailEvent: %w", err)
	}
	return MailEvent{
		Sender:      fields.Sender,
		Recipient:   fields.Recipient,
		MailID:      fields.MailId,
		BlockNumber: entry.BlockNumber,
		LogIndex:    entry.Index,
		TxHash:      entry.TxHash,
	}, nil
}

// EncodeMailEvent builds the log data for a MailEvent. Used to feed
// synthetic events to consumers.
func EncodeMailEvent(sender, recipient common.Address, mailID *big.Int) ([]byte, error) {
	return eventHubContract.Events["MailEvent"].Inputs.Pack(sender, recipient, mailID)
}
