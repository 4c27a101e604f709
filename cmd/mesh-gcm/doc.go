// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Mesh-gcm runs the Global Component Manager.
//
// It accepts manager proxy sessions from every process of the mesh on
// global.listen_address, forwards their registry and connection
// requests to the GCM, and retires processes whose session ends or
// whose heartbeat fails. A sweep evicts connections left unconfirmed
// longer than global.connect_confirm_timeout.
//
// When metrics.listen_address is set, Prometheus metrics are served at
// /metrics and a liveness check at /healthz.
//
// Usage:
//
//	mesh-gcm [--config mesh.yaml] [--listen :10705] [--metrics-listen :9090]
//
// SIGINT or SIGTERM stops the daemon; every session is closed.
package main
