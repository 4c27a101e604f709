// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the mesh
// binaries and the wire protocol version the proxies negotiate.
//
// Build information is injected at link time:
//
//	go build -ldflags "-X github.com/jhu-cisst/cisst-sub002/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// [ProtocolVersion] is exchanged in every session handshake. A peer
// speaking a different version is refused before any call is made.
package version
