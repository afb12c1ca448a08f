// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package submitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// DefaultListenAddress keeps the relay reachable from the local host only.
const DefaultListenAddress = "127.0.0.1:8080"

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address is the TCP address to listen on.
	Address string
	Handler http.Handler
	Logger  *slog.Logger
}

// Server serves a Handler over TCP.
type Server struct {
	address    string
	httpServer *http.Server
	listener   net.Listener
	logger     *slog.Logger
	serveErr   chan error
}

// NewServer returns a Server that has not started listening.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, errors.New("submitter: server handler is required")
	}
	address := config.Address
	if address == "" {
		address = DefaultListenAddress
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		httpServer: &http.Server{
			Handler:           config.Handler,
			ReadHeaderTimeout: 30 * time.Second,
			// No write timeout: a relay legitimately blocks for the
			// full response timeout, and streams have no fixed length.
			ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		logger:   logger,
		serveErr: make(chan error, 1),
	}, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.listener = listener
	s.logger.Info("submitter listening", "address", listener.Addr().String())

	go func() {
		err := s.httpServer.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.serveErr <- err
	}()
	return nil
}

// Addr returns the bound address, useful with port 0. Nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Done delivers the serve loop's error (nil after Shutdown) when it exits.
func (s *Server) Done() <-chan error { return s.serveErr }

// Shutdown stops accepting connections and waits for in-flight relays
// until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down submitter server")
	return s.httpServer.Shutdown(ctx)
}
