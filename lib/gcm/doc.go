// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gcm implements the Global Component Manager: the registry of
// processes, components, and interfaces across a component mesh, and
// the broker that connects a required interface of one component to a
// provided interface of another.
//
// # Registry
//
// The registry is a set of flat tables keyed by name: processes by
// process name, components by "process:component", and interfaces by
// their UID "process:component:interface" (separately for provided and
// required interfaces). Records refer to each other only by key.
// Registry failures (duplicate, not found) are reported as false and
// logged; nothing panics on bad input.
//
// # Connect protocol
//
// Connecting is two-phase and bounded by a timeout:
//
//  1. [Manager.Connect] validates both interfaces, allocates the next
//     [ConnectionID], and records an unconfirmed [ConnectionElement].
//     For a cross-process connection it asks both processes, through
//     their [Local] handles, to create the component and interface
//     proxies that will carry the traffic.
//  2. The requesting side drives the proxy handshake with
//     [Manager.InitiateConnect] and [Manager.ConnectServerSideInterfaceRequest],
//     exchanging the provided-side proxy endpoint through
//     [Manager.SetInterfaceProvidedProxyAccessInfo].
//  3. [Manager.ConnectConfirm] marks the connection established.
//  4. [Manager.CheckConnectConfirmTimeout] evicts connections that were
//     not confirmed within the configured timeout. [Manager.Run] calls it
//     periodically.
//
// Connection identifiers are strictly increasing and never reused, not
// even across [Manager.Cleanup].
//
// # Locking
//
// One mutex guards every table and the connection map. It is held only
// while tables change; calls into a [Local] (which may cross the
// network) always happen after it is released.
//
// # Remote access
//
// [Global] is the full GCM API. [*Manager] implements it in process,
// and the manager proxy client implements it over the network, so a
// Local Component Manager does not care which one it holds.
package gcm
