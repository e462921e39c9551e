// Package jsonx recovers a JSON value from free-form model output.
package jsonx

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/yungbote/studykit-backend/internal/generation/generr"
)

var (
	codeFenceRE     = regexp.MustCompile("(?i)```(?:json)?\\n?")
	trailingBraceRE = regexp.MustCompile(`,\s*}`)
	trailingBrackRE = regexp.MustCompile(`,\s*]`)

	errTrailingData = errors.New("unexpected data after JSON value")
	errNoCandidate  = errors.New("no {...} or [...] span found")
)

// Extract returns the first JSON value it can recover from raw. Numbers are
// decoded as json.Number. It never touches the network and is deterministic.
func Extract(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &generr.ParseError{Raw: raw, Err: errors.New("empty output")}
	}
	if v, err := parse(trimmed); err == nil {
		return v, nil
	}

	unfenced := StripFences(trimmed)
	if v, err := parse(unfenced); err == nil {
		return v, nil
	}
	t := trimQuotes(unfenced)
	if strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[") {
		if v, err := parse(t); err == nil {
			return v, nil
		}
	}

	candidate, ok := outermostSpan(t)
	if !ok {
		return nil, &generr.ParseError{Raw: raw, Err: errNoCandidate}
	}
	v, err := parse(candidate)
	if err == nil {
		return v, nil
	}
	v, err = parse(StripTrailingCommas(candidate))
	if err != nil {
		return nil, &generr.ParseError{Raw: raw, Err: err}
	}
	return v, nil
}

// StripFences removes markdown code fences (```json and bare ```).
func StripFences(s string) string {
	return strings.TrimSpace(codeFenceRE.ReplaceAllString(s, ""))
}

func trimQuotes(s string) string {
	s = strings.Trim(s, `"`)
	s = strings.Trim(s, `'`)
	return strings.TrimSpace(s)
}

func StripTrailingCommas(s string) string {
	s = trailingBraceRE.ReplaceAllString(s, "}")
	return trailingBrackRE.ReplaceAllString(s, "]")
}

// outermostSpan finds the leftmost '{' (or '[') that has a matching closer
// somewhere after it and returns the span up to the last such closer.
func outermostSpan(s string) (string, bool) {
	lastBrace := strings.LastIndexByte(s, '}')
	lastBrack := strings.LastIndexByte(s, ']')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if lastBrace > i {
				return s[i : lastBrace+1], true
			}
		case '[':
			if lastBrack > i {
				return s[i : lastBrack+1], true
			}
		}
	}
	return "", false
}

func parse(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return v, nil
}
