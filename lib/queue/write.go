// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StagingPath returns the temporary name WriteAtomic uses for path:
// the final name with its .json extension replaced by .tmp.
func StagingPath(path string) string {
	return strings.TrimSuffix(path, Extension) + StagingExtension
}

// WriteAtomic makes data visible under path in a single rename. The
// bytes are written to StagingPath(path) in the same directory, synced,
// and renamed into place; the parent directory is then synced so the
// rename survives a power loss. On any failure the staging file is
// removed and nothing appears under path.
func WriteAtomic(path string, data []byte) error {
	stagingPath := StagingPath(path)

	file, err := os.OpenFile(stagingPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(stagingPath), err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(stagingPath)
		return fmt.Errorf("writing %s: %w", filepath.Base(stagingPath), err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(stagingPath)
		return fmt.Errorf("syncing %s: %w", filepath.Base(stagingPath), err)
	}
	if err := file.Close(); err != nil {
		os.Remove(stagingPath)
		return fmt.Errorf("closing %s: %w", filepath.Base(stagingPath), err)
	}

	if err := os.Rename(stagingPath, path); err != nil {
		os.Remove(stagingPath)
		return fmt.Errorf("renaming %s into place: %w", filepath.Base(path), err)
	}

	// Some network filesystems refuse fsync on directories; the rename
	// has already happened, so that is not worth failing over.
	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
