// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatcher

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// PathFilter decides which requests may reach the upstream. Patterns
// are matched against "METHOD /path" (query string excluded), where *
// matches any run of characters, including slashes:
//
//	POST /v1/chat/completions
//	GET /v1/models*
//	DELETE *
//
// The path is percent-decoded and cleaned before matching, and a path
// with a ".." segment is refused outright, so "/v1/../admin" cannot slip
// past a "/admin*" rule.
//
// Blocked patterns win over allowed ones. An empty Allowed list allows
// everything that is not blocked.
type PathFilter struct {
	Allowed []string
	Blocked []string
}

// Check returns nil if the request may be forwarded, or an error naming
// the rule that refused it.
func (f *PathFilter) Check(method, requestPath string) error {
	if f == nil {
		return nil
	}
	cleaned, err := cleanPath(requestPath)
	if err != nil {
		return err
	}
	subject := strings.ToUpper(method) + " " + cleaned

	for _, pattern := range f.Blocked {
		if matchGlob(pattern, subject) {
			return fmt.Errorf("%s matches blocked pattern %q", subject, pattern)
		}
	}
	if len(f.Allowed) == 0 {
		return nil
	}
	for _, pattern := range f.Allowed {
		if matchGlob(pattern, subject) {
			return nil
		}
	}
	return fmt.Errorf("%s does not match any allowed pattern", subject)
}

// cleanPath strips the query, decodes percent escapes, and returns the
// cleaned absolute path. Paths that fail to decode or that climb with a
// ".." segment are errors.
func cleanPath(requestPath string) (string, error) {
	if index := strings.IndexByte(requestPath, '?'); index >= 0 {
		requestPath = requestPath[:index]
	}
	decoded, err := url.PathUnescape(requestPath)
	if err != nil {
		return "", fmt.Errorf("path %q does not decode: %w", requestPath, err)
	}
	for _, segment := range strings.Split(decoded, "/") {
		if segment == ".." {
			return "", fmt.Errorf("path %q contains a parent directory segment", requestPath)
		}
	}
	return path.Clean("/" + decoded), nil
}

// matchGlob matches subject against pattern, where * is the only
// wildcard.
func matchGlob(pattern, subject string) bool {
	literals := strings.Split(pattern, "*")
	if len(literals) == 1 {
		return pattern == subject
	}

	first, last := literals[0], literals[len(literals)-1]
	if len(subject) < len(first)+len(last) ||
		!strings.HasPrefix(subject, first) || !strings.HasSuffix(subject, last) {
		return false
	}
	middle := subject[len(first) : len(subject)-len(last)]
	for _, literal := range literals[1 : len(literals)-1] {
		index := strings.Index(middle, literal)
		if index < 0 {
			return false
		}
		middle = middle[index+len(literal):]
	}
	return true
}
