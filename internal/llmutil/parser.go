// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var (
	// ErrNoJSONObject is returned when a response holds no decodable JSON object.
	ErrNoJSONObject = errors.New("no JSON object found in response")
	// ErrRejected is returned when objects decoded but none was accepted.
	ErrRejected = errors.New("no acceptable JSON object in response")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fenceLine matches a markdown fence marker on its own line, with an optional
// language tag. \x60 is a backtick.
var fenceLine = regexp.MustCompile("(?m)^[ \t]*\x60\x60\x60[a-zA-Z0-9_-]*[ \t]*\r?$")

// StripFences removes markdown code fence lines, leaving the fenced content.
func StripFences(s string) string {
	return fenceLine.ReplaceAllString(s, "")
}

// ObjectCandidates returns every top level, brace balanced object in s in
// order of appearance. Braces inside JSON strings are ignored. An opening
// brace that never closes does not hide objects that start after it.
func ObjectCandidates(s string) []string {
	var out []string
	for start := 0; start < len(s); {
		open := strings.IndexByte(s[start:], '{')
		if open < 0 {
			break
		}
		open += start
		end := matchBrace(s, open)
		if end < 0 {
			start = open + 1
			continue
		}
		out = append(out, s[open:end+1])
		start = end + 1
	}
	return out
}

// matchBrace returns the index of the brace closing the one at s[open], or -1.
func matchBrace(s string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// DecodeFirstObject decodes the first top level candidate object in response
// into T that accept approves. A nil accept approves anything that decodes.
// Objects nested inside a candidate are never tried on their own.
func DecodeFirstObject[T any](response string, accept func(*T) bool) (*T, error) {
	text := StripFences(strings.TrimSpace(response))

	var lastErr error
	decoded := false
	for _, candidate := range ObjectCandidates(text) {
		var v T
		err := json.Unmarshal([]byte(candidate), &v)
		if err == nil && (accept == nil || accept(&v)) {
			return &v, nil
		}
		if err != nil {
			lastErr = err
		} else {
			decoded = true
		}
	}

	if decoded {
		return nil, ErrRejected
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v (response: %s)", ErrNoJSONObject, lastErr, Truncate(response, 200))
	}
	return nil, ErrNoJSONObject
}

// Truncate cuts s to maxLen bytes for log and error output.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
