// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue owns the shared directory that carries every request
// and response between the two sides of the relay.
//
// The layout under the queue root is fixed:
//
//	requests/<id>.json          request envelope
//	requests/<id>.tmp           request being written
//	responses/<id>.json         non-streaming response envelope
//	responses/<id>-000000.json  stream fragment, six-digit sequence
//	responses/<id>-done.json    stream completion marker, payload {}
//
// Every artifact is created with [WriteAtomic]: the bytes go to the
// sibling .tmp name, are fsynced, and are renamed onto the final name.
// A reader that finds a final name therefore never sees a partial write
// through that name. Readers must still treat read or parse failures as
// "not ready yet", because slow or networked storage can expose a
// directory entry before its content is readable.
//
// Consumption is delete-once: whoever observes protocol completion
// removes the artifact with [Remove], which treats a missing file as
// success. No locking is needed beyond rename and unlink atomicity.
//
// [Reclaimer] is the liveness backstop. It deletes any file in either
// directory whose modification time is older than a threshold, whatever
// protocol state it belongs to.
package queue
