// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so that a broken poll loop fails the test instead of
// hanging it. They are the only place tests use real wall-clock
// timeouts; the code under test runs on lib/clock.
//
// [WaitFor] polls a condition on the wall clock, for assertions about
// files another goroutine is expected to write.
//
// All helpers call t.Fatalf on failure.
package testutil
