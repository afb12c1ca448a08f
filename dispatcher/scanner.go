// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bureau-foundation/fsrelay/lib/clock"
	"github.com/bureau-foundation/fsrelay/lib/metrics"
	"github.com/bureau-foundation/fsrelay/lib/queue"
)

// DefaultScanInterval is the pause between directory scans.
const DefaultScanInterval = 300 * time.Millisecond

// Processor handles one claimed request file. *Dispatcher implements it.
type Processor interface {
	Process(ctx context.Context, requestPath string)
}

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	Queue     *queue.Dir
	Processor Processor

	// Ledger defaults to a new, empty Ledger.
	Ledger   *Ledger
	Interval time.Duration

	// MaxWorkers bounds how many Process calls run at once. Zero means
	// no bound. Workers beyond the bound are started anyway and wait
	// for a slot, so a scan never blocks on a slow upstream.
	MaxWorkers int

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Scanner discovers new request files and starts a worker for each.
type Scanner struct {
	queue     *queue.Dir
	processor Processor
	ledger    *Ledger
	interval  time.Duration
	slots     *semaphore.Weighted
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Recorder

	workers sync.WaitGroup
}

// NewScanner validates config and returns a Scanner.
func NewScanner(config ScannerConfig) (*Scanner, error) {
	if config.Queue == nil {
		return nil, errors.New("dispatcher: scanner queue directory is required")
	}
	if config.Processor == nil {
		return nil, errors.New("dispatcher: scanner processor is required")
	}
	if config.MaxWorkers < 0 {
		return nil, fmt.Errorf("dispatcher: max workers must not be negative, got %d", config.MaxWorkers)
	}

	scanner := &Scanner{
		queue:     config.Queue,
		processor: config.Processor,
		ledger:    config.Ledger,
		interval:  config.Interval,
		clock:     config.Clock,
		logger:    config.Logger,
		metrics:   config.Metrics,
	}
	if scanner.ledger == nil {
		scanner.ledger = NewLedger()
	}
	if scanner.interval <= 0 {
		scanner.interval = DefaultScanInterval
	}
	if config.MaxWorkers > 0 {
		scanner.slots = semaphore.NewWeighted(int64(config.MaxWorkers))
	}
	if scanner.clock == nil {
		scanner.clock = clock.Real()
	}
	if scanner.logger == nil {
		scanner.logger = slog.Default()
	}
	return scanner, nil
}

// Ledger returns the scanner's claim set.
func (s *Scanner) Ledger() *Ledger { return s.ledger }

// Run scans immediately and then once per interval until ctx ends. It
// does not wait for workers; call Wait for that.
func (s *Scanner) Run(ctx context.Context) {
	s.logger.Info("watching for requests", "directory", s.queue.RequestsDir(), "interval", s.interval)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.ScanOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ScanOnce lists the requests directory, claims every request file not
// yet in the ledger, and starts a worker for each. It returns the
// number of workers started. Listing failures are logged.
func (s *Scanner) ScanOnce(ctx context.Context) int {
	paths, err := s.queue.ListRequests()
	if err != nil {
		s.logger.Error("scanning queue", "error", err)
		return 0
	}

	started := 0
	for _, path := range paths {
		if !s.ledger.Claim(filepath.Base(path)) {
			continue
		}
		started++
		s.workers.Add(1)
		go s.work(ctx, path)
	}
	if started > 0 {
		s.metrics.LedgerSize(s.ledger.Len())
	}
	return started
}

// work runs one claimed request. Shutdown stops workers still waiting
// for a slot, but a worker already talking to the upstream finishes.
func (s *Scanner) work(ctx context.Context, path string) {
	defer s.workers.Done()
	if s.slots != nil {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			s.logger.Info("request not dispatched before shutdown", "path", path)
			return
		}
		defer s.slots.Release(1)
	}
	s.safeProcess(context.WithoutCancel(ctx), path)
}

// safeProcess contains a panicking Process call to its own request.
func (s *Scanner) safeProcess(ctx context.Context, path string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("request worker panicked",
				"path", path,
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.processor.Process(ctx, path)
}

// Wait blocks until every started worker has returned.
func (s *Scanner) Wait() {
	s.workers.Wait()
}
