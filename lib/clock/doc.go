// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// All coordination in fsrelay happens through timed polls of a shared
// directory, so nearly every component sleeps. Components hold a Clock
// instead of calling the time package: Real() in production, Fake() in
// tests.
//
// A test drives a poll loop by waiting for it to register its next
// sleep and then advancing past it:
//
//	fakeClock := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go loop(fakeClock)
//	fakeClock.WaitForTimers(1)
//	fakeClock.Advance(300 * time.Millisecond)
//
// WaitForTimers removes the race between the loop registering its sleep
// and the test advancing time.
package clock
