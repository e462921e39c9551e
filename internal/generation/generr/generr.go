// Package generr holds the error taxonomy shared by the generation pipeline
// and the collaborators it drives.
package generr

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

type Kind string

const (
	KindConfiguration     Kind = "configuration_error"
	KindRetrieval         Kind = "retrieval_failure"
	KindParse             Kind = "parse_error"
	KindValidation        Kind = "validation_error"
	KindUpstreamTransport Kind = "upstream_transport_error"
)

// rawTailLen bounds how much model output is echoed into error messages.
const rawTailLen = 500

// ConfigurationError is fatal and surfaced at construction time.
type ConfigurationError struct {
	Setting string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
func (e *ConfigurationError) Kind() Kind    { return KindConfiguration }

// RetrievalFailure wraps a retriever or loader error. Generation recovers from it.
type RetrievalFailure struct {
	Op  string
	Err error
}

func (e *RetrievalFailure) Error() string {
	return fmt.Sprintf("retrieval failure (%s): %v", e.Op, e.Err)
}

func (e *RetrievalFailure) Unwrap() error { return e.Err }
func (e *RetrievalFailure) Kind() Kind    { return KindRetrieval }

// ParseError means no JSON value could be recovered from Raw.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	msg := "parse error: no JSON value found in model output"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + "; raw tail: " + Tail(e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }
func (e *ParseError) Kind() Kind    { return KindParse }

// ValidationError reports the first violated constraint of a schema kind.
type ValidationError struct {
	Schema     string
	Constraint string
	Raw        string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s; raw tail: %s", e.Schema, e.Constraint, Tail(e.Raw))
}

func (e *ValidationError) Kind() Kind { return KindValidation }

// UpstreamTransportError is a network or HTTP failure talking to an LLM
// provider or a document host.
type UpstreamTransportError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *UpstreamTransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("upstream %s failed (status %d): %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s failed: %v", e.Service, e.Err)
}

func (e *UpstreamTransportError) Unwrap() error { return e.Err }
func (e *UpstreamTransportError) Kind() Kind    { return KindUpstreamTransport }

type kinded interface {
	Kind() Kind
}

// KindOf returns the taxonomy kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind(), true
	}
	return "", false
}

func Tail(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= rawTailLen {
		return raw
	}
	start := len(raw) - rawTailLen
	for start < len(raw) && !utf8.RuneStart(raw[start]) {
		start++
	}
	return "..." + raw[start:]
}
