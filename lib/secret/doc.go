// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds credentials outside the Go heap.
//
// A [Buffer] is an anonymous mapping that is locked into RAM and
// excluded from core dumps. The garbage collector never sees it, so the
// bytes cannot be copied around by heap compaction and are zeroed on
// [Buffer.Close]. The dispatcher keeps its upstream API key in one.
//
// Linux only.
package secret
