// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// TCPListener accepts TCP connections.
type TCPListener struct {
	listener  net.Listener
	advertise string
	closeOnce sync.Once
	closeErr  error
}

// NewTCPListener listens on address (e.g. ":10705", or "127.0.0.1:0"
// for an ephemeral port).
func NewTCPListener(address string) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	return &TCPListener{listener: listener, advertise: listener.Addr().String()}, nil
}

// NewAdvertisedTCPListener listens on an ephemeral port of bindHost and
// advertises the bound port under advertiseHost. Interface proxy
// servers bind all interfaces but publish a reachable host name.
func NewAdvertisedTCPListener(bindHost, advertiseHost string) (*TCPListener, error) {
	listener, err := NewTCPListener(net.JoinHostPort(bindHost, "0"))
	if err != nil {
		return nil, err
	}
	if advertiseHost != "" {
		_, port, err := net.SplitHostPort(listener.listener.Addr().String())
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("parsing bound address: %w", err)
		}
		listener.advertise = net.JoinHostPort(advertiseHost, port)
	}
	return listener, nil
}

// Accept waits for the next connection or for ctx to be cancelled.
// Cancelling ctx closes the listener.
func (l *TCPListener) Accept(ctx context.Context) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}

// Address returns the advertised "host:port".
func (l *TCPListener) Address() string {
	return l.advertise
}

// Close stops the listener. Safe to call more than once.
func (l *TCPListener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.listener.Close()
	})
	return l.closeErr
}

// TCPDialer opens TCP connections.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero means only the
	// context deadline applies.
	Timeout time.Duration
}

// DialContext opens a TCP connection to address (host:port).
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	conn, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}
