// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package submitter

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/bureau-foundation/fsrelay/lib/testutil"
)

func TestServerLifecycle(t *testing.T) {
	server, err := NewServer(ServerConfig{
		Address: "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "relayed "+r.URL.Path)
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if server.Addr() != nil {
		t.Error("Addr() before Start is not nil")
	}
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}

	response, err := http.Get("http://" + server.Addr().String() + "/v1/models")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if string(body) != "relayed /v1/models" {
		t.Errorf("body = %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := testutil.RequireReceive(t, server.Done(), 5*time.Second); err != nil {
		t.Errorf("serve loop error = %v", err)
	}
}

func TestNewServerRequiresHandler(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Fatal("NewServer accepted a nil handler")
	}
}
