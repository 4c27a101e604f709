// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func TestTCPListenerAddress(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	defer listener.Close()

	if !strings.HasPrefix(listener.Address(), "127.0.0.1:") {
		t.Errorf("Address() = %q", listener.Address())
	}
}

func TestAdvertisedTCPListener(t *testing.T) {
	listener, err := NewAdvertisedTCPListener("127.0.0.1", "robot.local")
	if err != nil {
		t.Fatalf("NewAdvertisedTCPListener: %v", err)
	}
	defer listener.Close()

	host, port, err := net.SplitHostPort(listener.Address())
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", listener.Address(), err)
	}
	if host != "robot.local" || port == "0" {
		t.Errorf("Address() = %q", listener.Address())
	}
}

func TestTCPRoundTrip(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan error, 1)
	go func() {
		conn, err := listener.Accept(ctx)
		if err != nil {
			accepted <- err
			return
		}
		defer conn.Close()
		_, err = io.Copy(conn, io.LimitReader(conn, 5))
		accepted <- err
	}()

	dialer := &TCPDialer{Timeout: time.Second}
	conn, err := dialer.DialContext(ctx, listener.Address())
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	reply := make([]byte, 5)
	if _, err := io.ReadFull(conn, reply); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(reply) != "hello" {
		t.Errorf("reply = %q", reply)
	}
	if err := <-accepted; err != nil {
		t.Errorf("server side: %v", err)
	}
}

func TestTCPAcceptReturnsOnCancel(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := listener.Accept(ctx); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Accept after cancel: err = %v, want net.ErrClosed", err)
	}
	if err := listener.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
