// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import "sync"

// Ledger is the set of request file names claimed for dispatch during
// this process's lifetime. Entries are never removed.
type Ledger struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{claimed: make(map[string]struct{})}
}

// Claim records name and reports whether this call was the first to do
// so. Exactly one of any number of concurrent Claims of the same name
// returns true.
func (l *Ledger) Claim(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.claimed[name]; seen {
		return false
	}
	l.claimed[name] = struct{}{}
	return true
}

// Len returns the number of names claimed so far.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.claimed)
}
