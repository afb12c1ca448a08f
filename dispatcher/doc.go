// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatcher is the side of the relay with network access.
//
// A [Scanner] polls the queue's requests directory and starts one
// worker per request file it has not seen before. The [Ledger] records
// every file name claimed in this process's lifetime, so a file that
// stays in the directory is dispatched once. It is not persisted: a
// restarted dispatcher will dispatch lingering request files again.
//
// Each worker calls [Dispatcher.Process], which replays the request
// against the configured upstream and writes the answer back into the
// responses directory: a response envelope for ordinary requests, or a
// numbered fragment per server-sent event followed by a completion
// marker for streaming ones. Transport failures become 502 envelopes.
//
// The dispatcher never deletes request files. The submitter removes
// them once it has its answer, and the reclaimer in lib/queue removes
// whatever is left behind.
package dispatcher
