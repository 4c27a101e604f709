// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
)

// Listener accepts inbound connections from peer proxies.
type Listener interface {
	// Accept waits for the next connection. It returns an error
	// wrapping net.ErrClosed once the listener is closed or ctx is
	// cancelled.
	Accept(ctx context.Context) (net.Conn, error)

	// Address returns the address peers dial to reach this listener,
	// in the format the matching Dialer accepts.
	Address() string

	// Close stops the listener. Pending Accept calls return.
	Close() error
}

// Dialer opens connections to peer proxies.
type Dialer interface {
	// DialContext connects to address, as returned by a peer's
	// Listener.Address.
	DialContext(ctx context.Context, address string) (net.Conn, error)
}
