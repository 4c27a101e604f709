// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lcm is a minimal Local Component Manager. It owns the
// components of one process, registers them with the GCM, and builds
// this process's half of every connection.
//
// A [Manager] implements gcm.Local. Attach it to a GCM handle, which is
// a managerproxy.Client in an ordinary process or the *gcm.Manager
// itself in the process hosting the GCM, then add components and their
// interfaces. Commands are plain functions run on the caller's
// goroutine; there is no queueing or per-component thread.
//
// Connect between two processes goes through the GCM: it creates
// component proxies on both sides, then InitiateConnect reaches the
// client process, which asks the server process to start an
// ifproxy.Server for the provided interface, dials it, and binds each
// required function to the remote command. A connection within one
// process binds functions to commands directly.
//
// When either interface proxy peer goes away, the surviving side tears
// down its half of the connection and asks the GCM to drop it.
package lcm
