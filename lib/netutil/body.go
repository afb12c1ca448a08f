// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"fmt"
	"io"
)

// MaxBodySize bounds every body fsrelay holds in memory: inbound request
// bodies on the submitter and upstream response bodies on the
// dispatcher.
const MaxBodySize int64 = 256 << 20

// ErrBodyTooLarge is returned by ReadBody when the body exceeds its limit.
var ErrBodyTooLarge = errors.New("body exceeds size limit")

// ReadBody reads all of body, failing with ErrBodyTooLarge instead of
// silently truncating when more than limit bytes are available.
func ReadBody(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)
	}
	return data, nil
}
