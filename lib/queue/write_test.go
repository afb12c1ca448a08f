// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAtomicPublishesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc.json")
	if err := WriteAtomic(path, []byte(`{"id":"abc"}`)); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading published file: %v", err)
	}
	if string(data) != `{"id":"abc"}` {
		t.Errorf("content = %q", data)
	}
	if Exists(StagingPath(path)) {
		t.Error("staging file left behind")
	}
}

func TestWriteAtomicReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc.json")
	if err := WriteAtomic(path, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := WriteAtomic(path, []byte("second")); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("content = %q, want second", data)
	}
}

func TestWriteAtomicMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent", "abc.json")
	if err := WriteAtomic(path, []byte("{}")); err == nil {
		t.Fatal("WriteAtomic into a missing directory succeeded")
	}
	if Exists(path) {
		t.Error("final file appeared despite failure")
	}
}
