// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"time"

	"github.com/jhu-cisst/cisst-sub002/lib/codec"
)

// handshakeTimeout bounds the exchange of handshake frames on a fresh
// connection.
const handshakeTimeout = 10 * time.Second

// readTimeout is how long a server waits for the request on a freshly
// accepted stream. A well-behaved peer writes it immediately.
const readTimeout = 30 * time.Second

// writeTimeout is how long a server waits for a response to be
// written.
const writeTimeout = 10 * time.Second

// maxMessageSize is the largest request or response envelope either
// side reads.
const maxMessageSize = 1024 * 1024

// Handshake is the first frame on a new connection, written by the
// dialing side.
type Handshake struct {
	SessionID       string `cbor:"session_id"`
	ProtocolVersion int    `cbor:"protocol_version"`
}

// HandshakeReply answers a Handshake.
type HandshakeReply struct {
	OK              bool   `cbor:"ok"`
	Error           string `cbor:"error,omitempty"`
	ProtocolVersion int    `cbor:"protocol_version"`
}

// Request is the envelope written on each stream.
type Request struct {
	Action string `cbor:"action"`
	// Oneway requests get no response; the caller closes the stream
	// once the request is written.
	Oneway bool             `cbor:"oneway,omitempty"`
	Body   codec.RawMessage `cbor:"body,omitempty"`
}

// Response is the envelope answering a Request.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// RemoteError is returned by Call when the peer's handler failed or
// the peer does not know the action. The session itself is healthy.
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error on %q: %s", e.Action, e.Message)
}
