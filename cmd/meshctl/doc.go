// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Meshctl inspects a running Global Component Manager. It joins the
// mesh through the manager proxy as a process with no components, runs
// one query, and leaves.
//
//	meshctl processes
//	meshctl components <process>
//	meshctl interfaces <process> <component>
//	meshctl connections
//	meshctl describe <process:component:interface>
//	meshctl ping <text>
package main
