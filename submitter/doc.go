// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package submitter is the side of the relay without network access.
//
// A [Submitter] turns one inbound HTTP call into a request file in the
// queue directory and then polls for the answer the dispatcher writes
// back. Nothing but the shared directory connects the two sides: there
// are no notifications, only poll loops on an injectable clock.
//
// Non-streaming calls go through [Submitter.Relay], which waits for the
// response file and returns its envelope, or a synthetic 504 once the
// timeout passes. Streaming calls go through [Submitter.OpenStream],
// which returns a [Stream] yielding fragment payloads in sequence
// order until the completion marker appears. A stream that sees no
// activity for a full timeout ends with [ErrStalled].
//
// [Handler] adapts both paths to net/http. For "stream": true request
// bodies it serves text/event-stream with one data: frame per fragment
// followed by data: [DONE]. [Server] binds the handler to a TCP
// address.
//
// The submitter keeps no state across calls. Files it gives up on
// (timed-out requests it could not delete, responses for callers that
// disconnected) are left to the dispatcher-side reclaimer.
package submitter
