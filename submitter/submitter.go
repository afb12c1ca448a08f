// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package submitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/fsrelay/lib/clock"
	"github.com/bureau-foundation/fsrelay/lib/envelope"
	"github.com/bureau-foundation/fsrelay/lib/metrics"
	"github.com/bureau-foundation/fsrelay/lib/queue"
)

// Defaults for the zero values of Config.Timeout and Config.PollInterval.
const (
	DefaultTimeout      = 300 * time.Second
	DefaultPollInterval = 300 * time.Millisecond
)

// Config configures a Submitter.
type Config struct {
	// Queue is the shared queue directory. Required.
	Queue *queue.Dir

	// Timeout bounds the wait for a response, and for each gap between
	// stream fragments.
	Timeout time.Duration

	// PollInterval is the pause between existence checks.
	PollInterval time.Duration

	// ResponseSettle and FragmentSettle are pauses between seeing a
	// file and reading it, giving slow shared storage time to make the
	// content visible. Zero reads immediately.
	ResponseSettle time.Duration
	FragmentSettle time.Duration

	// RetryDelay is the pause after a response or fragment that could
	// not be read or parsed.
	RetryDelay time.Duration

	// NewID generates request identifiers. Defaults to random UUIDs.
	NewID func() string

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Submitter writes request envelopes and waits for their answers. It is
// safe for concurrent use; concurrent calls share nothing but the queue
// directory.
type Submitter struct {
	queue          *queue.Dir
	timeout        time.Duration
	pollInterval   time.Duration
	responseSettle time.Duration
	fragmentSettle time.Duration
	retryDelay     time.Duration
	newID          func() string
	clock          clock.Clock
	logger         *slog.Logger
	metrics        *metrics.Recorder
}

// New validates config and returns a Submitter.
func New(config Config) (*Submitter, error) {
	if config.Queue == nil {
		return nil, errors.New("submitter: queue directory is required")
	}
	for name, value := range map[string]time.Duration{
		"timeout":         config.Timeout,
		"poll interval":   config.PollInterval,
		"response settle": config.ResponseSettle,
		"fragment settle": config.FragmentSettle,
		"retry delay":     config.RetryDelay,
	} {
		if value < 0 {
			return nil, fmt.Errorf("submitter: %s must not be negative, got %s", name, value)
		}
	}

	submitter := &Submitter{
		queue:          config.Queue,
		timeout:        config.Timeout,
		pollInterval:   config.PollInterval,
		responseSettle: config.ResponseSettle,
		fragmentSettle: config.FragmentSettle,
		retryDelay:     config.RetryDelay,
		newID:          config.NewID,
		clock:          config.Clock,
		logger:         config.Logger,
		metrics:        config.Metrics,
	}
	if submitter.timeout == 0 {
		submitter.timeout = DefaultTimeout
	}
	if submitter.pollInterval == 0 {
		submitter.pollInterval = DefaultPollInterval
	}
	if submitter.newID == nil {
		submitter.newID = uuid.NewString
	}
	if submitter.clock == nil {
		submitter.clock = clock.Real()
	}
	if submitter.logger == nil {
		submitter.logger = slog.Default()
	}
	return submitter, nil
}

// Call is one inbound HTTP request to relay.
type Call struct {
	Method string
	// Path includes the query string.
	Path string
	// Headers must already exclude hop-by-hop headers.
	Headers map[string]string
	// Body is nil for requests without a body.
	Body []byte
}

// Relay submits call and waits for its response envelope.
//
// When no response appears within the timeout, Relay deletes the
// request file (best effort) and returns the synthetic 504 from
// [envelope.Timeout] with a nil error. A response file that cannot be
// read or parsed is assumed to be still in flight and is retried until
// the deadline. Errors are returned only when the request cannot be
// written or ctx ends.
func (s *Submitter) Relay(ctx context.Context, call Call) (*envelope.Response, error) {
	id, requestPath, err := s.submit(call, false)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("request_id", id)
	start := s.clock.Now()
	deadline := start.Add(s.timeout)
	responsePath := s.queue.ResponsePath(id)

	for {
		wait := s.pollInterval
		if queue.Exists(responsePath) {
			response, err := s.readResponse(ctx, responsePath)
			if err == nil {
				s.consume(logger, requestPath, responsePath)
				elapsed := s.clock.Now().Sub(start)
				logger.Info("response received", "status", response.StatusCode, "elapsed", elapsed)
				s.metrics.RelayFinished(metrics.ModeUnary, metrics.OutcomeOK, elapsed)
				return response, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Debug("response not readable yet", "error", err)
			if errors.Is(err, envelope.ErrMalformed) {
				s.metrics.Malformed(metrics.KindResponse)
			}
			wait = s.retryWait()
		}

		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			break
		}
		if err := s.pause(ctx, min(wait, remaining)); err != nil {
			return nil, err
		}
	}

	if err := queue.Remove(requestPath); err != nil {
		logger.Warn("removing timed-out request", "error", err)
	}
	logger.Error("request timed out", "timeout", s.timeout)
	s.metrics.RelayFinished(metrics.ModeUnary, metrics.OutcomeTimeout, s.clock.Now().Sub(start))
	response := envelope.Timeout(id)
	response.Timestamp = envelope.Stamp(s.clock.Now())
	return response, nil
}

// submit assigns an identifier and publishes the request envelope.
func (s *Submitter) submit(call Call, stream bool) (id, path string, err error) {
	id = s.newID()
	if !queue.ValidID(id) {
		return "", "", fmt.Errorf("submitter: generated request id %q is not a valid file name", id)
	}
	request := &envelope.Request{
		ID:        id,
		Timestamp: envelope.Stamp(s.clock.Now()),
		Method:    call.Method,
		Path:      call.Path,
		Headers:   call.Headers,
		Stream:    stream,
	}
	if request.Method == "" {
		request.Method = http.MethodGet
	}
	if request.Path == "" {
		request.Path = "/"
	}
	if request.Headers == nil {
		request.Headers = map[string]string{}
	}
	if call.Body != nil {
		body := string(call.Body)
		request.Body = &body
	}

	data, err := envelope.EncodeRequest(request)
	if err != nil {
		return "", "", fmt.Errorf("encoding request %s: %w", id, err)
	}
	path = s.queue.RequestPath(id)
	if err := queue.WriteAtomic(path, data); err != nil {
		return "", "", fmt.Errorf("writing request %s: %w", id, err)
	}

	mode := metrics.ModeUnary
	if stream {
		mode = metrics.ModeStream
	}
	s.metrics.Submitted(mode)
	s.logger.Info("request written", "request_id", id, "method", request.Method, "path", request.Path, "stream", stream)
	return id, path, nil
}

func (s *Submitter) readResponse(ctx context.Context, path string) (*envelope.Response, error) {
	if err := s.pause(ctx, s.responseSettle); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return envelope.DecodeResponse(data)
}

// consume deletes the request and response files of a completed relay.
func (s *Submitter) consume(logger *slog.Logger, paths ...string) {
	for _, path := range paths {
		if err := queue.Remove(path); err != nil {
			logger.Warn("removing consumed file", "path", path, "error", err)
		}
	}
}

// retryWait is the pause after an unreadable file. It never drops to
// zero, so a file that stays unreadable cannot spin the loop.
func (s *Submitter) retryWait() time.Duration {
	if s.retryDelay > 0 {
		return s.retryDelay
	}
	return s.pollInterval
}

// pause waits d on the submitter's clock, returning early with ctx's
// error if ctx ends first.
func (s *Submitter) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(d):
		return nil
	}
}
