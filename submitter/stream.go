// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package submitter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/fsrelay/lib/metrics"
	"github.com/bureau-foundation/fsrelay/lib/queue"
)

// ErrStalled ends a Stream that saw neither a fragment nor the
// completion marker for a full timeout.
var ErrStalled = errors.New("stream stalled: no fragment or completion marker before the deadline")

// Stream yields the fragments of one streaming request in sequence
// order. It is not safe for concurrent use and cannot be restarted:
// once Next returns io.EOF or ErrStalled, every later call returns the
// same error.
type Stream struct {
	submitter   *Submitter
	id          string
	requestPath string
	logger      *slog.Logger

	sequence   int
	start      time.Time
	deadline   time.Time
	markerSeen bool
	err        error
}

// OpenStream submits call with the stream flag set and returns the
// Stream of its fragments.
func (s *Submitter) OpenStream(ctx context.Context, call Call) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, requestPath, err := s.submit(call, true)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	return &Stream{
		submitter:   s,
		id:          id,
		requestPath: requestPath,
		logger:      s.logger.With("request_id", id),
		start:       now,
		deadline:    now.Add(s.timeout),
	}, nil
}

// ID returns the request identifier.
func (st *Stream) ID() string { return st.id }

// Fragments returns how many fragments Next has delivered.
func (st *Stream) Fragments() int { return st.sequence }

// Next waits for the next fragment and returns its payload. It returns
// io.EOF once the completion marker has been observed, after deleting
// the marker and the request file. Each delivered fragment pushes the
// deadline a full timeout forward.
//
// A ctx error is returned as is and does not end the stream.
func (st *Stream) Next(ctx context.Context) (string, error) {
	if st.err != nil {
		return "", st.err
	}
	s := st.submitter
	completionPath := s.queue.CompletionPath(st.id)

	for {
		wait := s.pollInterval
		fragmentPath := s.queue.FragmentPath(st.id, st.sequence)
		switch {
		case queue.Exists(fragmentPath):
			payload, err := st.readFragment(ctx, fragmentPath)
			if err == nil {
				return payload, nil
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			st.logger.Debug("fragment not readable yet", "sequence", st.sequence, "error", err)
			wait = s.retryWait()

		case queue.Exists(completionPath):
			// The dispatcher writes the marker after the last fragment,
			// but on shared storage the marker may become visible first.
			// Look for the next fragment once more before finishing.
			if !st.markerSeen {
				st.markerSeen = true
				if err := s.pause(ctx, s.fragmentSettle); err != nil {
					return "", err
				}
				continue
			}
			return "", st.finish(completionPath)
		}

		remaining := st.deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			return "", st.stall()
		}
		if err := s.pause(ctx, min(wait, remaining)); err != nil {
			return "", err
		}
	}
}

func (st *Stream) readFragment(ctx context.Context, path string) (string, error) {
	s := st.submitter
	if err := s.pause(ctx, s.fragmentSettle); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if err := queue.Remove(path); err != nil {
		st.logger.Warn("removing consumed fragment", "sequence", st.sequence, "error", err)
	}
	st.sequence++
	st.markerSeen = false
	st.deadline = s.clock.Now().Add(s.timeout)
	s.metrics.FragmentRelayed()
	return string(data), nil
}

func (st *Stream) finish(completionPath string) error {
	s := st.submitter
	s.consume(st.logger, completionPath, st.requestPath)
	elapsed := s.clock.Now().Sub(st.start)
	st.logger.Info("stream complete", "fragments", st.sequence, "elapsed", elapsed)
	s.metrics.RelayFinished(metrics.ModeStream, metrics.OutcomeOK, elapsed)
	st.err = io.EOF
	return st.err
}

func (st *Stream) stall() error {
	s := st.submitter
	if err := queue.Remove(st.requestPath); err != nil {
		st.logger.Warn("removing stalled request", "error", err)
	}
	st.logger.Error("stream stalled", "fragments", st.sequence, "timeout", s.timeout)
	s.metrics.RelayFinished(metrics.ModeStream, metrics.OutcomeStalled, s.clock.Now().Sub(st.start))
	st.err = ErrStalled
	return st.err
}
