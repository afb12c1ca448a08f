// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope defines the records exchanged through the queue
// directory and their JSON encoding.
//
// A [Request] is written once by the submitter and read at most once by
// the dispatcher. A [Response] answers a non-streaming request. Headers
// and bodies are carried opaquely as text; multi-valued headers are
// folded into one comma-separated value.
//
// Streaming responses do not use envelopes: each fragment file holds
// the raw payload of one upstream data line, and the completion marker
// holds "{}". See lib/queue for the file layout.
//
// Decoding is strict about the fields the protocol depends on. Anything
// that fails to decode wraps [ErrMalformed]; the submitter treats that
// as "not fully written yet" and retries, the dispatcher abandons the
// request file.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bureau-foundation/fsrelay/lib/queue"
)

// ErrMalformed marks content that does not decode into a valid envelope.
var ErrMalformed = errors.New("malformed envelope")

// TimestampFormat is used for envelope timestamps, always in UTC.
const TimestampFormat = time.RFC3339Nano

// Request is a relayed inbound HTTP call.
type Request struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Headers   map[string]string `json:"headers"`
	// Body is nil for calls without a body.
	Body   *string `json:"body"`
	Stream bool    `json:"stream,omitempty"`
}

// Response answers a non-streaming Request.
type Response struct {
	ID         string            `json:"id"`
	Timestamp  string            `json:"timestamp"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	// BodyDigest is the hex BLAKE3 digest of Body. Optional; when
	// present a reader rejects a body that does not match it.
	BodyDigest string `json:"body_blake3,omitempty"`
}

// Stamp formats t as an envelope timestamp.
func Stamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// EncodeRequest serializes request.
func EncodeRequest(request *Request) ([]byte, error) {
	if err := request.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(request)
}

// DecodeRequest parses a request envelope.
func DecodeRequest(data []byte) (*Request, error) {
	var request Request
	if err := json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if request.Method == "" {
		request.Method = http.MethodPost
	}
	request.Method = strings.ToUpper(request.Method)
	if request.Path == "" {
		request.Path = "/"
	}
	if err := request.validate(); err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *Request) validate() error {
	if !queue.ValidID(r.ID) {
		return fmt.Errorf("%w: invalid request id %q", ErrMalformed, r.ID)
	}
	if r.Method == "" || strings.ContainsAny(r.Method, " \t\r\n") {
		return fmt.Errorf("%w: invalid method %q", ErrMalformed, r.Method)
	}
	return nil
}

// EncodeResponse serializes response, filling in BodyDigest. Invalid
// UTF-8 in Body is replaced with U+FFFD, one per bad byte, as
// encoding/json would do on the wire; the digest covers the replaced
// text.
func EncodeResponse(response *Response) ([]byte, error) {
	if !queue.ValidID(response.ID) {
		return nil, fmt.Errorf("%w: invalid response id %q", ErrMalformed, response.ID)
	}
	if !utf8.ValidString(response.Body) {
		response.Body = string([]rune(response.Body))
	}
	response.BodyDigest = Digest(response.Body)
	return json.Marshal(response)
}

// DecodeResponse parses a response envelope and checks its digest.
func DecodeResponse(data []byte) (*Response, error) {
	var response Response
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if response.StatusCode < 100 || response.StatusCode > 999 {
		return nil, fmt.Errorf("%w: invalid status code %d", ErrMalformed, response.StatusCode)
	}
	if response.BodyDigest != "" && response.BodyDigest != Digest(response.Body) {
		return nil, fmt.Errorf("%w: body does not match its digest", ErrMalformed)
	}
	return &response, nil
}
