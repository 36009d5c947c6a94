// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrConnectionLost is returned by a Conn whose socket failed
	// while a request was outstanding.
	ErrConnectionLost = errors.New("transport: connection lost")

	// ErrClosed is returned after Supervisor.Close.
	ErrClosed = errors.New("transport: supervisor closed")

	// ErrNotConnected is returned by calls made before Connect.
	ErrNotConnected = errors.New("transport: no endpoint configured; call Connect first")
)

// Conn is one JSON-RPC session with the endpoint.
type Conn interface {
	// Call sends a request and decodes the result into result (which
	// may be nil). Errors returned by the server are *RPCError.
	Call(ctx context.Context, method string, params []any, result any) error

	// Subscribe issues eth_subscribe with params and routes every
	// notification for the returned id to notify. notify runs on the
	// connection's reader and must not block.
	Subscribe(ctx context.Context, params []any, notify func(json.RawMessage)) (string, error)

	// Unsubscribe drops the routing entry for id and, if the
	// connection is still alive, asks the server to cancel it.
	Unsubscribe(id string)

	// Done is closed when the connection has failed or been closed.
	Done() <-chan struct{}

	// Err reports why Done was closed.
	Err() error

	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsRPCError reports whether err is or wraps an *RPCError.
func IsRPCError(err error) bool {
	var rpcError *RPCError
	return errors.As(err, &rpcError)
}

// State is a connection handle state.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
