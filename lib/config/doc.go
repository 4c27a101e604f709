// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the mesh binaries.
//
// Configuration is loaded from a single file specified by either the
// MESH_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. Files are YAML; a .json or .jsonc file may carry comments and
// trailing commas.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production defaults to JSON logs.
//
// ${VAR} and ${VAR:-default} patterns are expanded in addresses after
// loading. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Global, Proxy, Log, Metrics
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every problem at once
package config
