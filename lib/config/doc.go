// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the configuration shared by fsrelay-submitter
// and fsrelay-dispatcher.
//
// A single file, named by --config or the FSRELAY_CONFIG environment
// variable, is merged over [Default]. Files ending in .json or .jsonc
// are JSON with comments and trailing commas; anything else is YAML.
// Both binaries read the same file and each validates only its own
// half with [Config.ValidateSubmitter] or [Config.ValidateDispatcher].
//
// Durations are written as Go duration strings ("300ms", "5m").
// ${VAR} and ${VAR:-default} are expanded in queue_dir and
// dispatcher.credential_file.
package config
