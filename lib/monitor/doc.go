// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor tracks the clients connected to a proxy server and
// retires the ones that stop answering.
//
// A [Table] indexes [Record]s both by the client id it assigns and by
// the session id of the client's transport connection. Handlers use
// the session index to resolve the calling client; the monitor and the
// owner use the client id.
//
// [Monitor.Run] pings every record once per period (1.5x the refresh
// period). A record whose ping fails goes through
// [Monitor.OnClientDisconnect], which removes it from the table and
// invokes the owner's callback exactly once. Owners also call
// OnClientDisconnect directly when they see a session end, and removing
// a record twice is a no-op, so the callback never fires twice for one
// client.
package monitor
