// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the byte-stream connections the proxy
// layer runs its sessions over.
//
// [Listener] accepts inbound connections and reports the address peers
// should dial; [Dialer] opens outbound connections to such an address.
// The manager proxy server listens on the GCM's configured port, and
// every interface proxy server listens on an ephemeral port whose
// address is published to the GCM as access information.
//
// [TCPListener] and [TCPDialer] are the implementations used in
// production and tests. Multiplexing, framing, and heartbeats are the
// session layer's business; this package only moves bytes.
package transport
