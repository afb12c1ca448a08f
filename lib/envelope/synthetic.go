// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zeebo/blake3"
)

// Error types carried in synthetic error bodies.
const (
	ErrorTypeTimeout   = "timeout"
	ErrorTypeProxy     = "proxy_error"
	ErrorTypeForbidden = "forbidden"
)

// TimeoutMessage is the message of the synthetic 504.
const TimeoutMessage = "Filesystem proxy timeout"

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

// ErrorBody renders {"error":{"message":...,"type":...}}.
func ErrorBody(message, errorType string) string {
	data, err := json.Marshal(errorBody{Error: errorDetail{Message: message, Type: errorType}})
	if err != nil {
		// Marshaling two strings cannot fail.
		panic("envelope: marshaling error body: " + err.Error())
	}
	return string(data)
}

func synthetic(id string, status int, body string) *Response {
	return &Response{
		ID:         id,
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

// Timeout is the response the submitter produces when no answer arrives
// within its timeout.
func Timeout(id string) *Response {
	return synthetic(id, http.StatusGatewayTimeout, ErrorBody(TimeoutMessage, ErrorTypeTimeout))
}

// UpstreamError is the response the dispatcher writes when the upstream
// call fails.
func UpstreamError(id string, err error) *Response {
	return synthetic(id, http.StatusBadGateway, ErrorBody("Proxy error: "+err.Error(), ErrorTypeProxy))
}

// Forbidden is the response for a request the dispatcher refuses to
// forward.
func Forbidden(id, reason string) *Response {
	return synthetic(id, http.StatusForbidden, ErrorBody(reason, ErrorTypeForbidden))
}

// Digest returns the hex BLAKE3-256 digest of body.
func Digest(body string) string {
	sum := blake3.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// FlattenHeader folds a multi-valued header set into one value per
// name, joining repeated values with ", ". Names keep the canonical
// form net/http gives them.
func FlattenHeader(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for name, values := range header {
		flat[name] = strings.Join(values, ", ")
	}
	return flat
}
