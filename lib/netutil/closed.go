// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/hashicorp/yamux"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, a closed connection or session, a broken pipe, or a
// reset. These happen whenever a peer goes away and are not worth an
// error-level log line.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, yamux.ErrSessionShutdown) || errors.Is(err, yamux.ErrStreamClosed) || errors.Is(err, yamux.ErrConnectionReset) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

// IsTransportError reports whether err means the peer could not be
// reached or stopped answering, as opposed to a peer that answered
// with a failure. Transport errors put a proxy on its disconnect path.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if IsExpectedCloseError(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, yamux.ErrTimeout) || errors.Is(err, yamux.ErrConnectionWriteTimeout) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
