// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Fsrelay-dispatcher is the networked half of the relay. It watches the
// shared queue directory for request files, replays each against the
// upstream API, and writes the response (or, for streaming requests,
// one fragment file per event and a completion marker) back into the
// directory. It also deletes queue files that outlive the configured
// maximum age.
//
// The upstream API key is looked up by credential name in systemd
// credentials, then the optional credentials file, then the
// environment.
package main
