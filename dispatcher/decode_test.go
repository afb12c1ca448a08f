// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

const plainBody = `{"object":"list","data":[{"id":"model-a"}]}`

func compress(t *testing.T, encoding string, data []byte) []byte {
	t.Helper()
	var buffer bytes.Buffer
	var writer io.WriteCloser
	switch encoding {
	case "gzip":
		writer = gzip.NewWriter(&buffer)
	case "deflate":
		writer = zlib.NewWriter(&buffer)
	case "zstd":
		encoder, err := zstd.NewWriter(&buffer)
		if err != nil {
			t.Fatal(err)
		}
		writer = encoder
	default:
		t.Fatalf("no compressor for %q", encoding)
	}
	if _, err := writer.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return buffer.Bytes()
}

func TestDecodeContent(t *testing.T) {
	for _, encoding := range []string{"gzip", "deflate", "zstd"} {
		t.Run(encoding, func(t *testing.T) {
			compressed := compress(t, encoding, []byte(plainBody))
			response := &http.Response{
				Header: http.Header{
					"Content-Encoding": {encoding},
					"Content-Length":   {"17"},
					"Content-Type":     {"application/json"},
				},
				Body: io.NopCloser(bytes.NewReader(compressed)),
			}
			if err := decodeContent(response); err != nil {
				t.Fatalf("decodeContent: %v", err)
			}
			body, err := io.ReadAll(response.Body)
			if err != nil {
				t.Fatal(err)
			}
			if err := response.Body.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
			if string(body) != plainBody {
				t.Errorf("body = %q", body)
			}
			if response.Header.Get("Content-Encoding") != "" || response.Header.Get("Content-Length") != "" {
				t.Errorf("stale headers remain: %v", response.Header)
			}
			if response.Header.Get("Content-Type") != "application/json" {
				t.Error("unrelated header removed")
			}
		})
	}
}

func TestDecodeContentPassesThrough(t *testing.T) {
	for _, encoding := range []string{"", "identity", "br"} {
		response := &http.Response{
			Header: http.Header{},
			Body:   io.NopCloser(bytes.NewReader([]byte("raw"))),
		}
		if encoding != "" {
			response.Header.Set("Content-Encoding", encoding)
		}
		if err := decodeContent(response); err != nil {
			t.Fatalf("%q: %v", encoding, err)
		}
		body, _ := io.ReadAll(response.Body)
		if string(body) != "raw" || response.Header.Get("Content-Encoding") != encoding {
			t.Errorf("%q: body %q, header %q", encoding, body, response.Header.Get("Content-Encoding"))
		}
	}
}

func TestDecodeContentRejectsCorruptGzip(t *testing.T) {
	response := &http.Response{
		Header: http.Header{"Content-Encoding": {"gzip"}},
		Body:   io.NopCloser(bytes.NewReader([]byte("definitely not gzip"))),
	}
	if err := decodeContent(response); err == nil {
		t.Fatal("decodeContent accepted a corrupt gzip header")
	}
}
