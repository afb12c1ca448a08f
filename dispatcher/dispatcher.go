// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/fsrelay/lib/clock"
	"github.com/bureau-foundation/fsrelay/lib/envelope"
	"github.com/bureau-foundation/fsrelay/lib/metrics"
	"github.com/bureau-foundation/fsrelay/lib/netutil"
	"github.com/bureau-foundation/fsrelay/lib/queue"
	"github.com/bureau-foundation/fsrelay/lib/secret"
)

// Defaults for the zero values of Config.
const (
	DefaultUpstream        = "http://localhost:11434/v1"
	DefaultUpstreamTimeout = 120 * time.Second
)

// maxLineSize bounds one line of an upstream event stream.
const maxLineSize = 16 << 20

// Config configures a Dispatcher.
type Config struct {
	// Queue is the shared queue directory. Required.
	Queue *queue.Dir

	// Upstream is the base URL; request paths are appended to it.
	Upstream string

	// UpstreamTimeout bounds a non-streaming upstream call end to end,
	// and a streaming call's wait for each line.
	UpstreamTimeout time.Duration

	// APIKey, when set, is sent as "Authorization: Bearer <key>",
	// replacing any Authorization header the caller sent.
	APIKey *secret.Buffer

	// Filter, when set, refuses requests with a 403 envelope.
	Filter *PathFilter

	// Client performs upstream calls. Defaults to a client on a clone
	// of http.DefaultTransport.
	Client *http.Client

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Dispatcher replays request envelopes against the upstream API.
type Dispatcher struct {
	queue           *queue.Dir
	upstream        string
	upstreamTimeout time.Duration
	apiKey          *secret.Buffer
	filter          *PathFilter
	client          *http.Client
	clock           clock.Clock
	logger          *slog.Logger
	metrics         *metrics.Recorder
}

// New validates config and returns a Dispatcher.
func New(config Config) (*Dispatcher, error) {
	if config.Queue == nil {
		return nil, errors.New("dispatcher: queue directory is required")
	}
	upstream := config.Upstream
	if upstream == "" {
		upstream = DefaultUpstream
	}
	upstream = strings.TrimRight(upstream, "/")
	parsed, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: parsing upstream: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("dispatcher: upstream %q is not an http(s) URL", upstream)
	}
	if config.UpstreamTimeout < 0 {
		return nil, fmt.Errorf("dispatcher: upstream timeout must not be negative, got %s", config.UpstreamTimeout)
	}

	dispatcher := &Dispatcher{
		queue:           config.Queue,
		upstream:        upstream,
		upstreamTimeout: config.UpstreamTimeout,
		apiKey:          config.APIKey,
		filter:          config.Filter,
		client:          config.Client,
		clock:           config.Clock,
		logger:          config.Logger,
		metrics:         config.Metrics,
	}
	if dispatcher.upstreamTimeout == 0 {
		dispatcher.upstreamTimeout = DefaultUpstreamTimeout
	}
	if dispatcher.client == nil {
		dispatcher.client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	if dispatcher.clock == nil {
		dispatcher.clock = clock.Real()
	}
	if dispatcher.logger == nil {
		dispatcher.logger = slog.Default()
	}
	return dispatcher, nil
}

// Process handles one request file. A file that cannot be read or
// decoded is logged and abandoned; nothing is written for it. Every
// other outcome leaves an answer in the responses directory.
func (d *Dispatcher) Process(ctx context.Context, requestPath string) {
	data, err := os.ReadFile(requestPath)
	if err != nil {
		d.logger.Error("reading request file", "path", requestPath, "error", err)
		d.metrics.Malformed(metrics.KindRequest)
		return
	}
	request, err := envelope.DecodeRequest(data)
	if err != nil {
		d.logger.Error("abandoning malformed request", "path", requestPath, "error", err)
		d.metrics.Malformed(metrics.KindRequest)
		return
	}
	// The id names the response slot, so it must be the file's own.
	if request.ID+queue.Extension != filepath.Base(requestPath) {
		d.logger.Error("abandoning request whose id does not match its file name",
			"path", requestPath, "request_id", request.ID)
		d.metrics.Malformed(metrics.KindRequest)
		return
	}

	logger := d.logger.With("request_id", request.ID)
	mode := metrics.ModeUnary
	if request.Stream {
		mode = metrics.ModeStream
	}

	if err := d.filter.Check(request.Method, request.Path); err != nil {
		logger.Warn("request refused", "method", request.Method, "path", request.Path, "error", err)
		d.writeResponse(logger, envelope.Forbidden(request.ID, err.Error()))
		if request.Stream {
			// The streaming caller only watches for fragments; end its
			// stream instead of letting it stall.
			d.writeCompletion(logger, request.ID)
		}
		d.metrics.Dispatched(mode, metrics.OutcomeForbidden, 0)
		return
	}

	logger.Info("dispatching", "method", request.Method, "path", request.Path, "stream", request.Stream)
	start := d.clock.Now()
	var outcome string
	if request.Stream {
		outcome = d.relayStream(ctx, logger, request)
	} else {
		outcome = d.relayUnary(ctx, logger, request)
	}
	d.metrics.Dispatched(mode, outcome, d.clock.Now().Sub(start))
}

func (d *Dispatcher) relayUnary(ctx context.Context, logger *slog.Logger, request *envelope.Request) string {
	ctx, cancel := context.WithTimeout(ctx, d.upstreamTimeout)
	defer cancel()

	response, err := d.send(ctx, request)
	if err != nil {
		d.writeFailure(logger, request.ID, err)
		return metrics.OutcomeError
	}
	defer response.Body.Close()

	body, err := netutil.ReadBody(response.Body, netutil.MaxBodySize)
	if err != nil {
		d.writeFailure(logger, request.ID, err)
		return metrics.OutcomeError
	}

	if !d.writeResponse(logger, &envelope.Response{
		ID:         request.ID,
		StatusCode: response.StatusCode,
		Headers:    envelope.FlattenHeader(response.Header),
		Body:       string(body),
	}) {
		return metrics.OutcomeError
	}
	logger.Info("response written", "status", response.StatusCode, "bytes", len(body))
	return metrics.OutcomeOK
}

// relayStream turns the upstream event stream into fragment files, one
// per data line, and writes the completion marker when the stream ends
// with [DONE] or EOF. A read failure part way through leaves the
// fragments written so far and no marker.
func (d *Dispatcher) relayStream(ctx context.Context, logger *slog.Logger, request *envelope.Request) string {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Upstream network time, not queue time: the idle limit runs on the
	// wall clock.
	idle := time.AfterFunc(d.upstreamTimeout, cancel) //nolint:realclock network deadline
	defer idle.Stop()

	response, err := d.send(ctx, request)
	if err != nil {
		d.writeFailure(logger, request.ID, err)
		return metrics.OutcomeError
	}
	defer response.Body.Close()
	if response.StatusCode >= 300 {
		logger.Warn("upstream refused stream", "status", response.StatusCode)
	}

	scanner := bufio.NewScanner(response.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	sequence := 0
	for scanner.Scan() {
		idle.Reset(d.upstreamTimeout)
		payload, ok := eventData(scanner.Text())
		if !ok {
			continue
		}
		if strings.TrimSpace(payload) == "[DONE]" {
			break
		}
		if err := queue.WriteAtomic(d.queue.FragmentPath(request.ID, sequence), []byte(payload)); err != nil {
			logger.Error("writing fragment", "sequence", sequence, "error", err)
			return metrics.OutcomeTruncated
		}
		d.metrics.FragmentWritten()
		sequence++
	}
	if err := scanner.Err(); err != nil {
		level := slog.LevelError
		if netutil.IsExpectedCloseError(err) {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "upstream stream failed", "fragments", sequence, "error", err)
		d.writeFailure(logger, request.ID, err)
		return metrics.OutcomeTruncated
	}

	if !d.writeCompletion(logger, request.ID) {
		return metrics.OutcomeError
	}
	logger.Info("stream complete", "fragments", sequence)
	return metrics.OutcomeOK
}

// eventData extracts the payload of a server-sent event data line.
func eventData(line string) (string, bool) {
	payload, found := strings.CutPrefix(line, "data:")
	if !found {
		return "", false
	}
	return strings.TrimPrefix(payload, " "), true
}

// send issues request upstream and decodes any content encoding.
func (d *Dispatcher) send(ctx context.Context, request *envelope.Request) (*http.Response, error) {
	path := request.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if request.Body != nil {
		body = strings.NewReader(*request.Body)
	}
	upstreamRequest, err := http.NewRequestWithContext(ctx, request.Method, d.upstream+path, body)
	if err != nil {
		return nil, err
	}
	for name, value := range request.Headers {
		if netutil.IsHopByHopHeader(name) || strings.EqualFold(name, "Content-Length") {
			continue
		}
		upstreamRequest.Header.Set(name, value)
	}
	if d.apiKey != nil {
		upstreamRequest.Header.Set("Authorization", "Bearer "+d.apiKey.String())
	}

	response, err := d.client.Do(upstreamRequest)
	if err != nil {
		return nil, err
	}
	if err := decodeContent(response); err != nil {
		response.Body.Close()
		return nil, err
	}
	return response, nil
}

// writeFailure records an upstream failure as a 502 envelope.
func (d *Dispatcher) writeFailure(logger *slog.Logger, id string, cause error) {
	logger.Error("upstream call failed", "error", cause)
	d.writeResponse(logger, envelope.UpstreamError(id, cause))
}

func (d *Dispatcher) writeResponse(logger *slog.Logger, response *envelope.Response) bool {
	response.Timestamp = envelope.Stamp(d.clock.Now())
	data, err := envelope.EncodeResponse(response)
	if err == nil {
		err = queue.WriteAtomic(d.queue.ResponsePath(response.ID), data)
	}
	if err != nil {
		logger.Error("writing response", "error", err)
		return false
	}
	return true
}

func (d *Dispatcher) writeCompletion(logger *slog.Logger, id string) bool {
	if err := queue.WriteAtomic(d.queue.CompletionPath(id), []byte(queue.CompletionPayload)); err != nil {
		logger.Error("writing completion marker", "error", err)
		return false
	}
	return true
}
