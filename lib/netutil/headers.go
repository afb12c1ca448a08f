// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"net/http"
	"strings"
)

// hopByHopHeaders apply to a single connection and are never carried
// across the queue. Host is included: the upstream URL determines it.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"host":                true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"proxy-connection":    true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// IsHopByHopHeader reports whether name is connection-scoped.
func IsHopByHopHeader(name string) bool {
	return hopByHopHeaders[strings.ToLower(name)]
}

// EndToEndHeaders returns the headers of header that may be relayed,
// with repeated values joined by ", ". Names listed in the Connection
// header are dropped along with the fixed hop-by-hop set.
func EndToEndHeaders(header http.Header) map[string]string {
	connectionScoped := make(map[string]bool)
	for _, value := range header.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				connectionScoped[strings.ToLower(name)] = true
			}
		}
	}

	relayed := make(map[string]string, len(header))
	for name, values := range header {
		if IsHopByHopHeader(name) || connectionScoped[strings.ToLower(name)] {
			continue
		}
		relayed[name] = strings.Join(values, ", ")
	}
	return relayed
}
