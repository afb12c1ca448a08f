// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package integration_test runs both halves of the relay in one process
// against a stub upstream. The submitter and dispatcher share nothing
// but a temporary queue directory, as they would across a mount.
package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bureau-foundation/fsrelay/dispatcher"
	"github.com/bureau-foundation/fsrelay/lib/queue"
	"github.com/bureau-foundation/fsrelay/submitter"
)

// relay is one running submitter/dispatcher pair.
type relay struct {
	baseURL string
	queue   *queue.Dir
}

type relayOptions struct {
	// timeout is the submitter's wait limit. Defaults to 5s.
	timeout time.Duration
	// withoutDispatcher leaves the queue unserved.
	withoutDispatcher bool
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startRelay wires a submitter server and a dispatcher scanner to a
// fresh queue directory, with upstream as the dispatcher's target.
// Everything is stopped at test cleanup.
func startRelay(t *testing.T, upstream http.Handler, options relayOptions) *relay {
	t.Helper()
	logger := quietLogger()
	dir, err := queue.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	upstreamServer := httptest.NewServer(upstream)
	t.Cleanup(upstreamServer.Close)

	if !options.withoutDispatcher {
		startDispatcher(t, dir, upstreamServer.URL, logger)
	}

	timeout := options.timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	relaySubmitter, err := submitter.New(submitter.Config{
		Queue:          dir,
		Timeout:        timeout,
		PollInterval:   10 * time.Millisecond,
		ResponseSettle: 5 * time.Millisecond,
		FragmentSettle: 5 * time.Millisecond,
		RetryDelay:     5 * time.Millisecond,
		Logger:         logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	server, err := submitter.NewServer(submitter.ServerConfig{
		Address: "127.0.0.1:0",
		Handler: submitter.NewHandler(relaySubmitter, true),
		Logger:  logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	})

	return &relay{baseURL: "http://" + server.Addr().String(), queue: dir}
}

// startDispatcher runs a scanner over dir until test cleanup.
func startDispatcher(t *testing.T, dir *queue.Dir, upstream string, logger *slog.Logger) {
	t.Helper()
	relayDispatcher, err := dispatcher.New(dispatcher.Config{
		Queue:           dir,
		Upstream:        upstream,
		UpstreamTimeout: 5 * time.Second,
		Logger:          logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	scanner, err := dispatcher.NewScanner(dispatcher.ScannerConfig{
		Queue:     dir,
		Processor: relayDispatcher,
		Interval:  10 * time.Millisecond,
		Logger:    logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	scanDone := make(chan struct{})
	go func() {
		scanner.Run(ctx)
		close(scanDone)
	}()
	t.Cleanup(func() {
		cancel()
		<-scanDone
		scanner.Wait()
	})
}

// queueEntries counts files left in the requests and responses
// directories.
func (r *relay) queueEntries(t *testing.T) int {
	t.Helper()
	total := 0
	for _, directory := range []string{r.queue.RequestsDir(), r.queue.ResponsesDir()} {
		entries, err := os.ReadDir(directory)
		if err != nil {
			t.Fatal(err)
		}
		total += len(entries)
	}
	return total
}

func readAll(t *testing.T, response *http.Response) string {
	t.Helper()
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("reading relayed body: %v", err)
	}
	return string(body)
}
