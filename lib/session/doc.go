// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session carries CBOR request-response calls between two
// proxies over one multiplexed connection.
//
// A session starts with a handshake frame written by the dialing side:
// a [Handshake] naming a fresh session identifier (a UUID) and the wire
// protocol version. The accepting side answers with a
// [HandshakeReply], and both ends then run a hashicorp/yamux session
// over the connection. The session identifier is fixed for the
// session's lifetime; handlers find the session they serve through
// [FromContext] and use its [Session.ID] to resolve the calling client.
//
// Every call opens a yamux stream, writes one [Request] envelope, and
// (unless the call is one-way) reads one [Response] envelope back.
// This is the same one-request-per-connection model a Unix socket
// service uses, with streams standing in for connections. Either side
// may call the other: both ends route inbound streams through a
// [Router].
//
// Sessions created with [Options].Ordered dispatch inbound calls one at
// a time in arrival order. Otherwise each inbound call runs on its own
// goroutine, which a session whose handlers call back into the peer
// needs to avoid deadlock.
//
// A handler failure reaches the caller as a [*RemoteError]. Any other
// error from [Session.Call] is a transport or encoding fault.
package session
