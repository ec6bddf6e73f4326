// Copyright 2021-2023 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memhttp serves HTTP over in-memory pipes, so transport tests need
// neither ports nor TLS. Servers speak HTTP/2 cleartext (h2c) and HTTP/1.1.
package memhttp

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server is a net/http server listening on an in-memory pipe.
type Server struct {
	server         http.Server
	listener       *pipeListener
	url            string
	cleanupTimeout time.Duration
	disableHTTP2   bool

	serverWG  sync.WaitGroup
	serverErr error
}

// NewServer starts serving handler. Callers must call Shutdown, Cleanup, or
// Close when done.
func NewServer(handler http.Handler, opts ...Option) *Server {
	cfg := config{CleanupTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	if !cfg.DisableHTTP2 {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}
	listener := newPipeListener("1.2.3.4") // httptest.DefaultRemoteAddr
	server := &Server{
		server: http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener:       listener,
		url:            "http://" + listener.Addr().String(),
		cleanupTimeout: cfg.CleanupTimeout,
		disableHTTP2:   cfg.DisableHTTP2,
	}
	if cfg.Logger != nil {
		server.server.ErrorLog = slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelError)
	}
	server.serverWG.Add(1)
	go func() {
		defer server.serverWG.Done()
		server.serverErr = server.server.Serve(server.listener)
	}()
	return server
}

// Transport returns an HTTP/2 cleartext transport that dials the server.
func (s *Server) Transport() *http2.Transport {
	return &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return s.listener.DialContext(ctx, network, addr)
		},
		AllowHTTP: true,
	}
}

// TransportHTTP1 returns an HTTP/1.1 transport that dials the server.
func (s *Server) TransportHTTP1() *http.Transport {
	return &http.Transport{
		DialContext: s.listener.DialContext,
		// Keep-alives can hang shutdown while idle pipes linger.
		DisableKeepAlives: true,
	}
}

// Client returns an *http.Client for the server, using HTTP/2 unless the
// server was built WithoutHTTP2.
func (s *Server) Client() *http.Client {
	if s.disableHTTP2 {
		return &http.Client{Transport: s.TransportHTTP1()}
	}
	return &http.Client{Transport: s.Transport()}
}

// URL is the server's base URL.
func (s *Server) URL() string {
	return s.url
}

// Shutdown gracefully shuts down the server and waits for it to stop.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.Wait()
}

// Cleanup calls Shutdown with the configured cleanup timeout.
func (s *Server) Cleanup() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Close closes the server's listener and all connections immediately.
func (s *Server) Close() error {
	return s.server.Close()
}

// RegisterOnShutdown registers f to run when Shutdown is called.
func (s *Server) RegisterOnShutdown(f func()) {
	s.server.RegisterOnShutdown(f)
}

// Wait blocks until the server stops serving.
func (s *Server) Wait() error {
	s.serverWG.Wait()
	if !errors.Is(s.serverErr, http.ErrServerClosed) {
		return s.serverErr
	}
	return nil
}

var errListenerClosed = errors.New("listener closed")

// pipeListener hands the server end of each net.Pipe dialed by a client to
// Accept.
type pipeListener struct {
	addr pipeAddr

	conns  chan net.Conn
	once   sync.Once
	closed chan struct{}
}

func newPipeListener(addr string) *pipeListener {
	return &pipeListener{
		addr:   pipeAddr(addr),
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
	}
}

func (l *pipeListener) Accept() (net.Conn, error) {
	select {
	case <-l.closed:
		return nil, l.opError("accept", errListenerClosed)
	case conn := <-l.conns:
		return conn, nil
	}
}

func (l *pipeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *pipeListener) Addr() net.Addr {
	return l.addr
}

func (l *pipeListener) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	serverEnd, clientEnd := net.Pipe()
	select {
	case <-ctx.Done():
		return nil, l.opError("dial", ctx.Err())
	case <-l.closed:
		return nil, l.opError("dial", errListenerClosed)
	case l.conns <- serverEnd:
		return clientEnd, nil
	}
}

func (l *pipeListener) opError(op string, err error) *net.OpError {
	return &net.OpError{Op: op, Net: l.addr.Network(), Addr: l.addr, Err: err}
}

type pipeAddr string

func (pipeAddr) Network() string { return "memory" }

func (a pipeAddr) String() string { return string(a) }
