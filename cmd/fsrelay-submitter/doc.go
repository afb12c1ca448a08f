// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Fsrelay-submitter is the network-isolated half of the relay. It
// accepts HTTP calls on a local address, writes each one into the
// shared queue directory, and answers with whatever the dispatcher on
// the other side of the directory writes back.
//
// Configuration comes from the file named by --config or
// $FSRELAY_CONFIG, overlaid with any flags given. It needs nothing but
// read-write access to the queue directory.
package main
