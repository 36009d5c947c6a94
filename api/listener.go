// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Listener serves an http.Handler on a TCP address until its context
// is cancelled, then drains in-flight requests.
type Listener struct {
	address         string
	handler         http.Handler
	logger          *slog.Logger
	shutdownTimeout time.Duration

	// ready is closed once the listener is bound.
	ready chan struct{}
	addr  net.Addr
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// Address is the TCP listen address, e.g. ":8080".
	Address string

	Handler http.Handler

	// ShutdownTimeout bounds the drain after cancellation. Defaults
	// to 10 seconds.
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// NewListener validates the configuration and returns a Listener.
func NewListener(config ListenerConfig) (*Listener, error) {
	if config.Address == "" {
		return nil, errors.New("api: listen address is required")
	}
	if config.Handler == nil {
		return nil, errors.New("api: handler is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := config.ShutdownTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Listener{
		address:         config.Address,
		handler:         config.Handler,
		logger:          logger,
		shutdownTimeout: timeout,
		ready:           make(chan struct{}),
	}, nil
}

// Ready is closed once the listener is bound.
func (l *Listener) Ready() <-chan struct{} { return l.ready }

// Addr returns the bound address. Valid after Ready is closed.
func (l *Listener) Addr() net.Addr { return l.addr }

// Serve blocks until ctx is cancelled or the server fails.
func (l *Listener) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", l.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", l.address, err)
	}
	l.addr = listener.Addr()
	close(l.ready)

	server := &http.Server{
		Handler:           l.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	l.logger.Info("http server listening", "address", l.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		l.logger.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	l.logger.Info("http server stopped")
	return nil
}
