// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock that only moves when Advance is called. Every
// After, Sleep, and NewTicker call registers a pending waiter; Advance
// fires the waiters whose deadline it reaches, in deadline order.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
	changed *sync.Cond
}

type waiter struct {
	deadline time.Time
	channel  chan time.Time
	period   time.Duration // zero for one-shot waiters
	stopped  bool
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{now: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot waiter. Non-positive durations fire
// immediately without registering.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.register(&waiter{deadline: c.now.Add(d), channel: channel})
	return channel
}

// NewTicker registers a periodic waiter.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &waiter{
		deadline: c.now.Add(d),
		channel:  make(chan time.Time, 1),
		period:   d,
	}
	c.register(entry)

	return &Ticker{
		C: entry.channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.stopped = true
			c.prune()
		},
	}
}

// Sleep blocks until the clock has been advanced by at least d.
func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline is reached. A ticker spanning several periods fires once per
// period; ticks that find the channel full are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	for {
		due := c.due()
		if len(due) == 0 {
			break
		}
		for _, entry := range due {
			select {
			case entry.channel <- c.now:
			default:
			}
			if entry.period > 0 {
				entry.deadline = entry.deadline.Add(entry.period)
			} else {
				entry.stopped = true
			}
		}
		c.prune()
	}
}

// WaitForTimers blocks until at least n waiters are pending. Call it
// before Advance so the goroutine under test has registered its sleep;
// otherwise Advance can run first and the sleep never fires.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.changed.Wait()
	}
}

// Pending returns the number of registered waiters.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// register adds a waiter. Caller holds c.mu.
func (c *FakeClock) register(entry *waiter) {
	c.waiters = append(c.waiters, entry)
	c.changed.Broadcast()
}

// due returns live waiters whose deadline is not after now, earliest
// first. Caller holds c.mu.
func (c *FakeClock) due() []*waiter {
	var result []*waiter
	for _, entry := range c.waiters {
		if !entry.stopped && !entry.deadline.After(c.now) {
			result = append(result, entry)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].deadline.Before(result[j].deadline)
	})
	return result
}

// prune drops stopped waiters. Caller holds c.mu.
func (c *FakeClock) prune() {
	live := c.waiters[:0]
	for _, entry := range c.waiters {
		if !entry.stopped {
			live = append(live, entry)
		}
	}
	for index := len(live); index < len(c.waiters); index++ {
		c.waiters[index] = nil
	}
	c.waiters = live
}
