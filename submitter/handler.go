// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package submitter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bureau-foundation/fsrelay/lib/envelope"
	"github.com/bureau-foundation/fsrelay/lib/netutil"
)

// Error type for failures of the submitter itself, as opposed to the
// timeout and upstream errors the relay reports.
const errorTypeSubmitter = "submitter_error"

// Handler relays every inbound HTTP request through the queue.
type Handler struct {
	submitter *Submitter
	streaming bool
	logger    *slog.Logger
}

// NewHandler returns a Handler for submitter. With streaming disabled
// every request takes the non-streaming path, whatever its body says.
func NewHandler(submitter *Submitter, streaming bool) *Handler {
	return &Handler{
		submitter: submitter,
		streaming: streaming,
		logger:    submitter.logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := netutil.ReadBody(r.Body, netutil.MaxBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, netutil.ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.logger.Warn("reading inbound body", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, err.Error())
		return
	}
	if len(body) == 0 {
		body = nil
	}

	call := Call{
		Method:  r.Method,
		Path:    r.URL.RequestURI(),
		Headers: netutil.EndToEndHeaders(r.Header),
		Body:    body,
	}

	if h.streaming && wantsStream(body) {
		h.serveStream(r.Context(), w, call)
		return
	}

	response, err := h.submitter.Relay(r.Context(), call)
	if err != nil {
		if r.Context().Err() != nil {
			h.logger.Debug("caller went away during relay", "path", call.Path, "error", err)
			return
		}
		h.logger.Error("relay failed", "method", call.Method, "path", call.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for name, value := range response.Headers {
		switch strings.ToLower(name) {
		case "transfer-encoding", "connection", "content-length":
			continue
		}
		w.Header().Set(name, value)
	}
	w.WriteHeader(response.StatusCode)
	if _, err := io.WriteString(w, response.Body); err != nil && !netutil.IsExpectedCloseError(err) {
		h.logger.Warn("writing response to caller", "request_id", response.ID, "error", err)
	}
}

// serveStream relays a streaming request as server-sent events. A stall
// aborts the connection so the caller sees a failed read rather than a
// stream that ended normally.
func (h *Handler) serveStream(ctx context.Context, w http.ResponseWriter, call Call) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("response writer cannot flush; streaming unavailable")
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	stream, err := h.submitter.OpenStream(ctx, call)
	if err != nil {
		h.logger.Error("opening stream", "method", call.Method, "path", call.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger := h.logger.With("request_id", stream.ID())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		payload, err := stream.Next(ctx)
		switch {
		case err == nil:
			if _, err := io.WriteString(w, "data: "+payload+"\n\n"); err != nil {
				logger.Info("caller disconnected during stream", "fragments", stream.Fragments(), "error", err)
				return
			}
			flusher.Flush()

		case errors.Is(err, io.EOF):
			io.WriteString(w, "data: [DONE]\n\n")
			flusher.Flush()
			return

		case errors.Is(err, ErrStalled):
			panic(http.ErrAbortHandler)

		default:
			logger.Info("stream abandoned", "fragments", stream.Fragments(), "error", err)
			return
		}
	}
}

// wantsStream reports whether body is a JSON object asking for a
// streamed response.
func wantsStream(body []byte) bool {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return false
	}
	parsed := gjson.ParseBytes(body)
	return parsed.IsObject() && parsed.Get("stream").Bool()
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, envelope.ErrorBody(message, errorTypeSubmitter))
}
