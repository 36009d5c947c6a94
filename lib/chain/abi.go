// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const userRegistryABI = `[
  {"type":"function","name":"getIdentityForAccount","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"address"}]}
]`

const profileIndexABI = `[
  {"type":"function","name":"getProfile","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"address"}]}
]`

const keyHolderABI = `[
  {"type":"function","name":"keyHasPurpose","stateMutability":"view",
   "inputs":[{"name":"_key","type":"bytes32"},{"name":"_purpose","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"execute","stateMutability":"payable",
   "inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"},{"name":"_data","type":"bytes"}],
   "outputs":[{"name":"executionId","type":"uint256"}]}
]`

const eventHubABI = `[
  {"type":"event","name":"MailEvent","anonymous":false,
   "inputs":[
     {"name":"sender","type":"address","indexed":false},
     {"name":"recipient","type":"address","indexed":false},
     {"name":"mailId","type":"uint256","indexed":false}
   ]}
]`

const channelManagerABI = `[
  {"type":"function","name":"createChannel","stateMutability":"payable",
   "inputs":[{"name":"receiver_address","type":"address"}],
   "outputs":[]},
  {"type":"function","name":"topUp","stateMutability":"payable",
   "inputs":[{"name":"receiver_address","type":"address"},{"name":"open_block_number","type":"uint32"}],
   "outputs":[]},
  {"type":"event","name":"ChannelCreated","anonymous":false,
   "inputs":[
     {"name":"_sender_address","type":"address","indexed":true},
     {"name":"_receiver_address","type":"address","indexed":true},
     {"name":"_deposit","type":"uint256","indexed":false}
   ]}
]`

var (
	userRegistryContract   = mustParseABI(userRegistryABI)
	profileIndexContract   = mustParseABI(profileIndexABI)
	keyHolderContract      = mustParseABI(keyHolderABI)
	eventHubContract       = mustParseABI(eventHubABI)
	channelManagerContract = mustParseABI(channelManagerABI)
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic("chain: invalid ABI: " + err.Error())
	}
	return parsed
}
