// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// RequestsDirName and ResponsesDirName are the two subdirectories
	// of the queue root.
	RequestsDirName  = "requests"
	ResponsesDirName = "responses"

	// Extension is carried by every final artifact name.
	Extension = ".json"

	// StagingExtension is carried by artifacts still being written.
	StagingExtension = ".tmp"

	// CompletionPayload is the fixed content of a completion marker.
	CompletionPayload = "{}"

	completionSuffix = "-done"
	maxIDLength      = 128
)

// Dir is an opened queue root.
type Dir struct {
	root      string
	requests  string
	responses string
}

// Open returns the queue rooted at root, creating the requests and
// responses subdirectories when they do not exist.
func Open(root string) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("queue: root directory is required")
	}
	dir := &Dir{
		root:      root,
		requests:  filepath.Join(root, RequestsDirName),
		responses: filepath.Join(root, ResponsesDirName),
	}
	for _, path := range []string{dir.requests, dir.responses} {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("queue: creating %s: %w", path, err)
		}
	}
	return dir, nil
}

// Root returns the queue root path.
func (d *Dir) Root() string { return d.root }

// RequestsDir returns the path of the requests directory.
func (d *Dir) RequestsDir() string { return d.requests }

// ResponsesDir returns the path of the responses directory.
func (d *Dir) ResponsesDir() string { return d.responses }

// RequestPath returns the final path of the request envelope for id.
func (d *Dir) RequestPath(id string) string {
	return filepath.Join(d.requests, id+Extension)
}

// ResponsePath returns the final path of the response envelope for id.
func (d *Dir) ResponsePath(id string) string {
	return filepath.Join(d.responses, id+Extension)
}

// FragmentPath returns the final path of stream fragment sequence for
// id. Sequences beyond 999999 simply use more digits.
func (d *Dir) FragmentPath(id string, sequence int) string {
	return filepath.Join(d.responses, fmt.Sprintf("%s-%06d%s", id, sequence, Extension))
}

// CompletionPath returns the final path of the completion marker for id.
func (d *Dir) CompletionPath(id string) string {
	return filepath.Join(d.responses, id+completionSuffix+Extension)
}

// ListRequests returns the paths of all final request envelopes. Staging
// files and anything else in the directory are skipped. The order of
// the result carries no meaning.
func (d *Dir) ListRequests() ([]string, error) {
	entries, err := os.ReadDir(d.requests)
	if err != nil {
		return nil, fmt.Errorf("queue: listing requests: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		paths = append(paths, filepath.Join(d.requests, entry.Name()))
	}
	return paths, nil
}

// Exists reports whether path is currently visible. Any stat error,
// including permission problems on flaky shares, reads as "not yet".
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes path. A file that is already gone is not an error,
// since every artifact has more than one party that may delete it.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ValidID reports whether id can be used as a file name stem in the
// queue. Identifiers come from files on a shared drive, so anything
// that could escape the queue directory or collide with the reserved
// suffixes is refused.
func ValidID(id string) bool {
	if id == "" || len(id) > maxIDLength || id[0] == '.' {
		return false
	}
	if strings.HasSuffix(id, completionSuffix) {
		return false
	}
	for _, character := range id {
		switch {
		case character >= 'a' && character <= 'z':
		case character >= 'A' && character <= 'Z':
		case character >= '0' && character <= '9':
		case character == '-' || character == '_' || character == '.':
		default:
			return false
		}
	}
	return true
}
