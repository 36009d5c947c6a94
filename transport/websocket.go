// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evannetwork/smartagent/lib/clock"
	"github.com/evannetwork/smartagent/lib/netutil"
)

const (
	// maxOrphanNotifications bounds how many notifications are held
	// for a subscription id whose Subscribe call has not returned yet.
	maxOrphanNotifications = 256

	writeTimeout = 10 * time.Second
)

// WebsocketDialer opens JSON-RPC sessions over a websocket.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the websocket upgrade. Zero means 10s.
	HandshakeTimeout time.Duration

	// Keepalive is the ping interval. The read deadline is pushed out
	// to twice this interval on every pong, so a silent peer is
	// detected within two intervals. Zero disables pings.
	Keepalive time.Duration

	// Header is sent with the upgrade request.
	Header http.Header

	Clock  clock.Clock
	Logger *slog.Logger
}

// Dial connects to url and starts the reader and keepalive goroutines.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	handshakeTimeout := d.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	socket, response, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if response != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", url, err, response.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	clk := d.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conn := &websocketConn{
		socket:        socket,
		clock:         clk,
		logger:        logger.With("url", url),
		keepalive:     d.Keepalive,
		calls:         make(map[uint64]chan rpcResponse),
		subscriptions: make(map[string]func(json.RawMessage)),
		orphans:       make(map[string][]json.RawMessage),
		done:          make(chan struct{}),
	}
	if conn.keepalive > 0 {
		conn.extendReadDeadline()
		socket.SetPongHandler(func(string) error {
			conn.extendReadDeadline()
			return nil
		})
		go conn.pingLoop()
	}
	go conn.readLoop()
	return conn, nil
}

type rpcRequest struct {
	Version string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage
	Error  *RPCError
}

// rpcMessage is any inbound frame: a response (ID set) or a
// notification (Method set).
type rpcMessage struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

type websocketConn struct {
	socket    *websocket.Conn
	clock     clock.Clock
	logger    *slog.Logger
	keepalive time.Duration

	// writeMutex serializes writes; gorilla allows one concurrent
	// writer.
	writeMutex sync.Mutex

	mutex         sync.Mutex
	nextID        uint64
	calls         map[uint64]chan rpcResponse
	subscriptions map[string]func(json.RawMessage)
	orphans       map[string][]json.RawMessage

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func (c *websocketConn) Call(ctx context.Context, method string, params []any, result any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if params == nil {
		params = []any{}
	}

	c.mutex.Lock()
	select {
	case <-c.done:
		c.mutex.Unlock()
		return fmt.Errorf("%s: %w", method, ErrConnectionLost)
	default:
	}
	c.nextID++
	id := c.nextID
	reply := make(chan rpcResponse, 1)
	c.calls[id] = reply
	c.mutex.Unlock()

	forget := func() {
		c.mutex.Lock()
		delete(c.calls, id)
		c.mutex.Unlock()
	}

	if err := c.write(rpcRequest{Version: "2.0", ID: id, Method: method, Params: params}); err != nil {
		forget()
		c.fail(err)
		return fmt.Errorf("%s: %w", method, ErrConnectionLost)
	}

	select {
	case response := <-reply:
		if response.Error != nil {
			return response.Error
		}
		if result == nil || len(response.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
		return nil
	case <-c.done:
		forget()
		return fmt.Errorf("%s: %w", method, ErrConnectionLost)
	case <-ctx.Done():
		forget()
		return ctx.Err()
	}
}

func (c *websocketConn) Subscribe(ctx context.Context, params []any, notify func(json.RawMessage)) (string, error) {
	var id string
	if err := c.Call(ctx, "eth_subscribe", params, &id); err != nil {
		return "", err
	}

	c.mutex.Lock()
	c.subscriptions[id] = notify
	held := c.orphans[id]
	delete(c.orphans, id)
	c.mutex.Unlock()

	for _, payload := range held {
		notify(payload)
	}
	return id, nil
}

func (c *websocketConn) Unsubscribe(id string) {
	c.mutex.Lock()
	delete(c.subscriptions, id)
	delete(c.orphans, id)
	c.mutex.Unlock()

	select {
	case <-c.done:
		return
	default:
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := c.Call(ctx, "eth_unsubscribe", []any{id}, nil); err != nil {
			c.logger.Debug("eth_unsubscribe failed", "subscription", id, "error", err)
		}
	}()
}

func (c *websocketConn) Done() <-chan struct{} { return c.done }

func (c *websocketConn) Err() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.err
}

func (c *websocketConn) Close() error {
	c.writeMutex.Lock()
	_ = c.socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		c.clock.Now().Add(time.Second))
	c.writeMutex.Unlock()
	c.fail(ErrClosed)
	return nil
}

func (c *websocketConn) write(message any) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	if err := c.socket.SetWriteDeadline(c.clock.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.socket.WriteJSON(message)
}

// fail records err, closes the socket and wakes every waiter. Only the
// first call has any effect.
func (c *websocketConn) fail(err error) {
	c.closeOnce.Do(func() {
		c.mutex.Lock()
		c.err = err
		c.mutex.Unlock()
		close(c.done)
		c.socket.Close()
	})
}

func (c *websocketConn) extendReadDeadline() {
	_ = c.socket.SetReadDeadline(c.clock.Now().Add(2 * c.keepalive))
}

func (c *websocketConn) readLoop() {
	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			c.fail(err)
			return
		}
		if c.keepalive > 0 {
			c.extendReadDeadline()
		}
		c.dispatch(data)
	}
}

func (c *websocketConn) dispatch(data []byte) {
	var message rpcMessage
	if err := json.Unmarshal(data, &message); err != nil {
		c.logger.Warn("discarding malformed frame", "error", err)
		return
	}

	if message.Method == "eth_subscription" && message.Params != nil {
		id := message.Params.Subscription
		c.mutex.Lock()
		notify, ok := c.subscriptions[id]
		if !ok {
			if len(c.orphans[id]) < maxOrphanNotifications {
				c.orphans[id] = append(c.orphans[id], message.Params.Result)
			}
			c.mutex.Unlock()
			return
		}
		c.mutex.Unlock()
		notify(message.Params.Result)
		return
	}

	if len(message.ID) == 0 {
		return
	}
	id, err := strconv.ParseUint(string(message.ID), 10, 64)
	if err != nil {
		c.logger.Warn("discarding response with foreign id", "id", string(message.ID))
		return
	}
	c.mutex.Lock()
	reply, ok := c.calls[id]
	delete(c.calls, id)
	c.mutex.Unlock()
	if ok {
		reply <- rpcResponse{Result: message.Result, Error: message.Error}
	}
}

func (c *websocketConn) pingLoop() {
	ticker := c.clock.NewTicker(c.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMutex.Lock()
			err := c.socket.WriteControl(websocket.PingMessage, nil, c.clock.Now().Add(writeTimeout))
			c.writeMutex.Unlock()
			if err != nil {
				c.logger.Warn("keepalive ping failed", "error", err)
				c.fail(err)
				return
			}
		}
	}
}
