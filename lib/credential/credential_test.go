// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/fsrelay/lib/secret"
)

// skipWithoutMlock skips when locked memory is unavailable, which turns
// every Get into a miss.
func skipWithoutMlock(t *testing.T) {
	t.Helper()
	buffer, err := secret.New([]byte("probe"))
	if err != nil {
		t.Skipf("locked memory unavailable: %v", err)
	}
	buffer.Close()
}

func TestEnvName(t *testing.T) {
	if got := EnvName("openai-api-key"); got != "OPENAI_API_KEY" {
		t.Errorf("EnvName = %q", got)
	}
}

func TestEnv(t *testing.T) {
	skipWithoutMlock(t)
	t.Setenv("FSRELAY_TEST_KEY", "from-env")

	source := &Env{Prefix: "FSRELAY_"}
	defer source.Close()

	first := source.Get("test-key")
	if first == nil || first.String() != "from-env" {
		t.Fatalf("Get = %v", first)
	}
	if source.Get("test-key") != first {
		t.Error("second Get returned a different buffer")
	}
	if source.Get("absent-key") != nil {
		t.Error("Get of unset variable returned a value")
	}
}

func TestFile(t *testing.T) {
	skipWithoutMlock(t)
	path := filepath.Join(t.TempDir(), "credentials")
	content := "# upstream\n\nOPENAI_API_KEY = sk-file \nOTHER=x\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	source := &File{Path: path}
	defer source.Close()
	if got := source.Get("openai-api-key"); got == nil || got.String() != "sk-file" {
		t.Fatalf("Get = %v", got)
	}
	if source.Err() != nil {
		t.Errorf("Err = %v", source.Err())
	}
	if source.Get("missing") != nil {
		t.Error("Get of missing key returned a value")
	}
}

func TestFileReportsSyntaxErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials")
	if err := os.WriteFile(path, []byte("not a pair\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	source := &File{Path: path}
	defer source.Close()
	if source.Get("anything") != nil {
		t.Error("Get returned a value from an invalid file")
	}
	if source.Err() == nil {
		t.Error("Err = nil for an invalid file")
	}
}

func TestSystemd(t *testing.T) {
	skipWithoutMlock(t)
	directory := t.TempDir()
	if err := os.WriteFile(filepath.Join(directory, "openai-api-key"), []byte("sk-systemd\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CREDENTIALS_DIRECTORY", directory)

	source := &Systemd{}
	defer source.Close()
	if got := source.Get("openai-api-key"); got == nil || got.String() != "sk-systemd" {
		t.Fatalf("Get = %v", got)
	}
	if source.Get("../openai-api-key") != nil {
		t.Error("Get followed a path outside the credentials directory")
	}
}

func TestChainOrder(t *testing.T) {
	skipWithoutMlock(t)
	directory := t.TempDir()
	if err := os.WriteFile(filepath.Join(directory, "openai-api-key"), []byte("sk-systemd"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ONLY_ENV", "env-only")

	chain := Chain{&Systemd{Directory: directory}, &Env{}}
	defer chain.Close()
	if got := chain.Get("openai-api-key"); got == nil || got.String() != "sk-systemd" {
		t.Errorf("openai-api-key = %v, want systemd value", got)
	}
	if got := chain.Get("only-env"); got == nil || got.String() != "env-only" {
		t.Errorf("only-env = %v, want env value", got)
	}
	if chain.Get("nowhere") != nil {
		t.Error("Get of unknown name returned a value")
	}
}
