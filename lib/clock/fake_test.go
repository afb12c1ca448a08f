// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	clock := Fake(epoch)
	clock.Advance(300 * time.Millisecond)
	if got, want := clock.Now(), epoch.Add(300*time.Millisecond); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestFakeAfterFiresAtDeadline(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(time.Second)

	clock.Advance(999 * time.Millisecond)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	clock.Advance(time.Millisecond)
	select {
	case fired := <-channel:
		if !fired.Equal(epoch.Add(time.Second)) {
			t.Errorf("fired at %v, want %v", fired, epoch.Add(time.Second))
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if pending := clock.Pending(); pending != 0 {
		t.Errorf("Pending() = %d after firing, want 0", pending)
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	clock := Fake(epoch)
	for _, duration := range []time.Duration{0, -time.Second} {
		select {
		case <-clock.After(duration):
		default:
			t.Errorf("After(%v) did not fire immediately", duration)
		}
	}
	if pending := clock.Pending(); pending != 0 {
		t.Errorf("Pending() = %d, want 0", pending)
	}
}

func TestFakeTickerFiresEachPeriod(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for tick := 1; tick <= 3; tick++ {
		clock.Advance(100 * time.Millisecond)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", tick)
		}
	}
}

func TestFakeTickerStop(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()
	clock.Advance(5 * time.Second)

	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
	if pending := clock.Pending(); pending != 0 {
		t.Errorf("Pending() = %d after Stop, want 0", pending)
	}
}

func TestFakeSleepWithWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	done := make(chan struct{})
	go func() {
		clock.Sleep(2 * time.Second)
		close(done)
	}()

	clock.WaitForTimers(1)
	clock.Advance(2 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("Sleep did not return after Advance")
	}
}
