// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/fsrelay/lib/clock"
	"github.com/bureau-foundation/fsrelay/lib/metrics"
)

const (
	// DefaultReclaimInterval is how often Run sweeps the queue.
	DefaultReclaimInterval = 300 * time.Second

	// DefaultMaxAge is the age past which any artifact is deleted.
	DefaultMaxAge = 3600 * time.Second
)

// Reclaimer deletes queue artifacts older than MaxAge. It cannot tell an
// orphan from a slow request except by age, so MaxAge must comfortably
// exceed the longest request timeout in use.
//
// Ages compare the local clock against modification times stamped by
// the shared filesystem; skew between the two shifts the effective
// threshold by the same amount. Files with a modification time in the
// future are left alone until they age normally.
type Reclaimer struct {
	Dir *Dir

	// MaxAge defaults to DefaultMaxAge.
	MaxAge time.Duration

	// Interval defaults to DefaultReclaimInterval.
	Interval time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

func (r *Reclaimer) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Reclaimer) clock() clock.Clock {
	if r.Clock != nil {
		return r.Clock
	}
	return clock.Real()
}

func (r *Reclaimer) maxAge() time.Duration {
	if r.MaxAge > 0 {
		return r.MaxAge
	}
	return DefaultMaxAge
}

// Run sweeps once immediately, to clear debris left by a previous run,
// then once per Interval until ctx is cancelled.
func (r *Reclaimer) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultReclaimInterval
	}

	r.Sweep()

	ticker := r.clock().NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Sweep deletes every stale file in both queue directories and returns
// how many it removed. Files that vanish mid-sweep are skipped silently;
// other failures are logged and skipped. Sweeping twice with no new
// activity removes nothing the second time.
func (r *Reclaimer) Sweep() int {
	now := r.clock().Now()
	maxAge := r.maxAge()
	removed := 0

	for _, directory := range []string{r.Dir.RequestsDir(), r.Dir.ResponsesDir()} {
		entries, err := os.ReadDir(directory)
		if err != nil {
			r.logger().Error("reclaimer cannot list directory",
				"directory", directory,
				"error", err,
			)
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					r.logger().Warn("reclaimer cannot stat file",
						"file", entry.Name(),
						"error", err,
					)
				}
				continue
			}

			age := now.Sub(info.ModTime())
			if age <= maxAge {
				continue
			}

			path := filepath.Join(directory, entry.Name())
			if err := os.Remove(path); err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					r.logger().Warn("reclaimer cannot delete stale file",
						"file", entry.Name(),
						"error", err,
					)
				}
				continue
			}
			removed++
			r.logger().Info("reclaimed stale file",
				"file", entry.Name(),
				"age", age.Round(time.Second),
			)
		}
	}

	r.Metrics.Reclaimed(removed)
	return removed
}
