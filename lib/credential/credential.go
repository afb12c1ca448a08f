// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential looks up named secrets such as the upstream API
// key. Names are kebab-case ("openai-api-key"); environment variables
// and key=value files use the UPPER_SNAKE form of the name
// ("OPENAI_API_KEY").
//
// Every value is returned in a [secret.Buffer] owned by the source.
// Callers must not close it; closing the source releases them all.
package credential

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bureau-foundation/fsrelay/lib/secret"
)

// Source resolves credential names. Get returns nil when the source
// does not hold the name.
type Source interface {
	Get(name string) *secret.Buffer
	Close() error
}

// EnvName converts a credential name to its environment variable form.
func EnvName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// cache memoizes buffers per name so each secret is copied into locked
// memory once.
type cache struct {
	mu      sync.Mutex
	buffers map[string]*secret.Buffer
}

func (c *cache) get(name string, fetch func() []byte) *secret.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buffer, ok := c.buffers[name]; ok {
		return buffer
	}
	raw := fetch()
	if raw == nil {
		return nil
	}
	buffer, err := secret.New(raw)
	if err != nil {
		return nil
	}
	if c.buffers == nil {
		c.buffers = make(map[string]*secret.Buffer)
	}
	c.buffers[name] = buffer
	return buffer
}

func (c *cache) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, buffer := range c.buffers {
		buffer.Close()
		delete(c.buffers, name)
	}
	return nil
}

// Env reads credentials from the process environment.
type Env struct {
	// Prefix is prepended to the variable name: with Prefix "FSRELAY_",
	// "openai-api-key" is read from FSRELAY_OPENAI_API_KEY.
	Prefix string

	cache cache
}

func (s *Env) Get(name string) *secret.Buffer {
	return s.cache.get(name, func() []byte {
		value, ok := os.LookupEnv(s.Prefix + EnvName(name))
		if !ok {
			return nil
		}
		return []byte(value)
	})
}

func (s *Env) Close() error { return s.cache.close() }

// File reads credentials from a key=value file, one per line. Blank
// lines and lines starting with # are skipped. The file is read once,
// on first use.
//
//	OPENAI_API_KEY=sk-...
type File struct {
	Path string

	once    sync.Once
	loadErr error
	cache   cache
	values  map[string][]byte
}

func (s *File) Get(name string) *secret.Buffer {
	s.once.Do(func() { s.loadErr = s.load() })
	key := EnvName(name)
	return s.cache.get(name, func() []byte {
		value, ok := s.values[key]
		if !ok {
			return nil
		}
		delete(s.values, key)
		return value
	})
}

// Err reports why the file could not be read, after the first Get.
func (s *File) Err() error { return s.loadErr }

func (s *File) load() error {
	s.values = make(map[string][]byte)
	if s.Path == "" {
		return nil
	}
	file, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("opening credential file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found || strings.TrimSpace(key) == "" {
			return fmt.Errorf("%s:%d: expected KEY=value", s.Path, lineNumber)
		}
		s.values[strings.TrimSpace(key)] = []byte(value)
	}
	return scanner.Err()
}

func (s *File) Close() error {
	for key, value := range s.values {
		secret.Zero(value)
		delete(s.values, key)
	}
	return s.cache.close()
}

// Systemd reads credentials passed with LoadCredential= or
// SetCredential=: one file per name under $CREDENTIALS_DIRECTORY.
type Systemd struct {
	// Directory overrides $CREDENTIALS_DIRECTORY.
	Directory string

	cache cache
}

func (s *Systemd) Get(name string) *secret.Buffer {
	return s.cache.get(name, func() []byte {
		directory := s.Directory
		if directory == "" {
			directory = os.Getenv("CREDENTIALS_DIRECTORY")
		}
		if directory == "" || name != filepath.Base(name) {
			return nil
		}
		data, err := os.ReadFile(filepath.Join(directory, name))
		if err != nil {
			return nil
		}
		return data
	})
}

func (s *Systemd) Close() error { return s.cache.close() }

// Chain asks each source in order and returns the first hit.
type Chain []Source

func (c Chain) Get(name string) *secret.Buffer {
	for _, source := range c {
		if buffer := source.Get(name); buffer != nil {
			return buffer
		}
	}
	return nil
}

func (c Chain) Close() error {
	for _, source := range c {
		source.Close()
	}
	return nil
}

// Default is the lookup order used by the dispatcher: systemd
// credentials, then the optional credentials file, then the
// environment.
func Default(filePath string) Chain {
	chain := Chain{&Systemd{}}
	if filePath != "" {
		chain = append(chain, &File{Path: filePath})
	}
	return append(chain, &Env{})
}
