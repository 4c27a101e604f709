// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies network errors for the proxy layer.
//
// [IsExpectedCloseError] separates ordinary peer departure (EOF, reset,
// yamux session shutdown) from errors worth logging loudly.
// [IsTransportError] is the wider test the proxies use to decide that a
// failed call means the peer is gone and the disconnect path must run.
package netutil
