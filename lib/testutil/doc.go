// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for mesh packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern for channels. [Eventually] polls a condition, for state that
// settles asynchronously such as a client table after a heartbeat
// sweep. These helpers are the only place tests wait on the wall
// clock; everything else drives a mock clock.
//
// [Logger] returns a *slog.Logger that writes through t.Log, so a
// failing test shows the log of the component under test and a passing
// one stays quiet.
//
// All helpers call t.Fatalf on failure.
package testutil
