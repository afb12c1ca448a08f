// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"net/http"
	"testing"
)

func TestEndToEndHeaders(t *testing.T) {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Add("Accept", "text/event-stream")
	header.Add("Accept", "application/json")
	header.Set("Connection", "keep-alive, X-Session-Hint")
	header.Set("X-Session-Hint", "abc")
	header.Set("Keep-Alive", "timeout=5")
	header.Set("Transfer-Encoding", "chunked")
	header.Set("Proxy-Authorization", "Basic Zm9v")
	header.Set("Authorization", "Bearer caller")

	relayed := EndToEndHeaders(header)
	want := map[string]string{
		"Content-Type":  "application/json",
		"Accept":        "text/event-stream, application/json",
		"Authorization": "Bearer caller",
	}
	if len(relayed) != len(want) {
		t.Errorf("relayed = %v, want %v", relayed, want)
	}
	for name, value := range want {
		if relayed[name] != value {
			t.Errorf("%s = %q, want %q", name, relayed[name], value)
		}
	}
}

func TestIsHopByHopHeader(t *testing.T) {
	for _, name := range []string{"Host", "connection", "TE", "Upgrade", "Proxy-Connection"} {
		if !IsHopByHopHeader(name) {
			t.Errorf("IsHopByHopHeader(%q) = false", name)
		}
	}
	for _, name := range []string{"Content-Type", "Authorization", "Content-Length"} {
		if IsHopByHopHeader(name) {
			t.Errorf("IsHopByHopHeader(%q) = true", name)
		}
	}
}
