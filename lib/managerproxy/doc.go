// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package managerproxy connects Local Component Managers in other
// processes to the Global Component Manager.
//
// The [Server] runs next to the GCM. It accepts a session from each
// process, registers the process on its add_client handshake, and
// gives the GCM a gcm.Local stub that reaches back into the process
// over the same session. Every other request is forwarded to the GCM
// unchanged. A client whose session ends, or whose heartbeat fails, is
// retired with RemoveProcess(name, true).
//
// The [Client] runs in each LCM process and implements gcm.Global, so
// an LCM uses a remote GCM exactly as it would use an in-process
// *gcm.Manager. Failures are reported as the method's failure value:
// false, gcm.InvalidConnectionID, or an empty result. A transport fault
// additionally moves the client to [StateInactive], after which every
// call fails immediately.
//
// Sessions dispatch concurrently: a GCM request may call back into the
// requesting process (Connect creates proxies there), and that nested
// call must not wait behind the request that caused it.
package managerproxy
