// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// decodeContent replaces response.Body with its decoded form when the
// upstream compressed it with gzip, deflate or zstd, and drops the
// Content-Encoding and Content-Length headers that no longer describe
// the body. Envelope bodies are text, so a compressed body would not
// survive the trip. Other encodings pass through untouched.
func decodeContent(response *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(response.Header.Get("Content-Encoding")))

	var decoded io.ReadCloser
	switch encoding {
	case "", "identity":
		return nil
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(response.Body)
		if err != nil {
			return fmt.Errorf("opening gzip body: %w", err)
		}
		decoded = reader
	case "deflate":
		// HTTP "deflate" is the zlib format.
		reader, err := zlib.NewReader(response.Body)
		if err != nil {
			return fmt.Errorf("opening deflate body: %w", err)
		}
		decoded = reader
	case "zstd":
		decoder, err := zstd.NewReader(response.Body, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return fmt.Errorf("opening zstd body: %w", err)
		}
		decoded = decoder.IOReadCloser()
	default:
		return nil
	}

	response.Body = &decodedBody{ReadCloser: decoded, raw: response.Body}
	response.Header.Del("Content-Encoding")
	response.Header.Del("Content-Length")
	response.ContentLength = -1
	response.Uncompressed = true
	return nil
}

// decodedBody closes both the decoder and the connection body under it.
type decodedBody struct {
	io.ReadCloser
	raw io.ReadCloser
}

func (b *decodedBody) Close() error {
	b.ReadCloser.Close()
	return b.raw.Close()
}
