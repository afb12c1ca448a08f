// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"strings"
	"testing"
)

func TestMatchGlob(t *testing.T) {
	for _, tc := range []struct {
		pattern, subject string
		want             bool
	}{
		{"GET /v1/models", "GET /v1/models", true},
		{"GET /v1/models", "GET /v1/models/x", false},
		{"GET /v1/models*", "GET /v1/models/gpt", true},
		{"DELETE *", "DELETE /v1/files/abc", true},
		{"* /v1/*/completions", "POST /v1/chat/completions", true},
		{"* /v1/*/completions", "POST /v2/chat/completions", false},
		{"*", "", true},
		{"a*a", "a", false},
		{"ab*ba", "aba", false},
		{"ab*ba", "abba", true},
	} {
		if got := matchGlob(tc.pattern, tc.subject); got != tc.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tc.pattern, tc.subject, got, tc.want)
		}
	}
}

func TestPathFilter(t *testing.T) {
	filter := &PathFilter{
		Allowed: []string{"POST /v1/chat/completions", "GET /v1/models*"},
		Blocked: []string{"GET /v1/models/secret*"},
	}
	for _, tc := range []struct {
		method, path string
		allowed      bool
	}{
		{"POST", "/v1/chat/completions", true},
		{"post", "/v1/chat/completions?stream=1", true},
		{"GET", "/v1/models", true},
		{"GET", "/v1/models/secret-model", false},
		{"DELETE", "/v1/files/1", false},
	} {
		err := filter.Check(tc.method, tc.path)
		if (err == nil) != tc.allowed {
			t.Errorf("Check(%s %s) = %v, want allowed=%v", tc.method, tc.path, err, tc.allowed)
		}
	}

	err := filter.Check("GET", "/v1/models/secret-model")
	if err == nil || !strings.Contains(err.Error(), "blocked pattern") {
		t.Errorf("blocked error = %v", err)
	}
}

func TestNilPathFilterAllowsEverything(t *testing.T) {
	var filter *PathFilter
	if err := filter.Check("DELETE", "/anything"); err != nil {
		t.Errorf("nil filter refused a request: %v", err)
	}
}

func TestPathFilterMatchesCleanedPath(t *testing.T) {
	filter := &PathFilter{Blocked: []string{"GET /admin*"}}
	for _, path := range []string{
		"/v1/../admin",
		"/v1/%2e%2e/admin",
		"/v1/%2E%2E/admin/users",
		"/%61dmin",
		"//admin",
		"/./admin?x=1",
		"/v1/%zz",
	} {
		if err := filter.Check("GET", path); err == nil {
			t.Errorf("Check(GET %s) allowed, want refused", path)
		}
	}
	for _, path := range []string{"/v1/models", "/v1/models/", "/v1/./models", "/v1/files/a%20b"} {
		if err := filter.Check("GET", path); err != nil {
			t.Errorf("Check(GET %s) = %v, want allowed", path, err)
		}
	}
}
