package chain

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrKind classifies an error for translation at the RPC edge.
type ErrKind int

const (
	KindUnsupported ErrKind = iota
	KindInvalidInput
	KindNotFound
	KindUpstream
	KindEncoding
)

func (k ErrKind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindEncoding:
		return "encoding"
	default:
		return "unknown"
	}
}

// KindedError carries a stable Kind plus a short human-readable message
// naming the offending field.
type KindedError struct {
	Kind  ErrKind
	Field string
	msg   string
	cause error
}

func (e *KindedError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Field)
}

func (e *KindedError) Unwrap() error { return e.cause }

// Is lets errors.Is(err, chain.KindUnsupportedErr) work by comparing Kind
// against one of the per-kind sentinels declared below.
func (e *KindedError) Is(target error) bool {
	other, ok := target.(*KindedError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// NewUnsupported builds an Unsupported error (e.g. final_blocks_only,
// send_all_block_headers, transforms on a single-block request).
func NewUnsupported(what string) error {
	return &KindedError{Kind: KindUnsupported, Field: what, msg: fmt.Sprintf("unsupported: %s", what)}
}

// NewInvalidInput builds an InvalidInput error naming the offending field.
func NewInvalidInput(field, value string) error {
	return &KindedError{Kind: KindInvalidInput, Field: field, msg: fmt.Sprintf("invalid %s: %s", field, value)}
}

// NewNotFound builds a NotFound error for single-block lookups.
func NewNotFound(what string) error {
	return &KindedError{Kind: KindNotFound, Field: what, msg: fmt.Sprintf("not found: %s", what)}
}

// WrapUpstream wraps a transport/adapter failure, preserving the
// pkg/errors-style stack via errors.Wrap.
func WrapUpstream(cause error, context string) error {
	wrapped := errors.Wrap(cause, context)
	return &KindedError{Kind: KindUpstream, Field: context, cause: wrapped, msg: wrapped.Error()}
}

// NewEncoding builds an Encoding error naming the field that couldn't be
// translated: a hex decode failure or a missing required trace field.
func NewEncoding(field, value string) error {
	return &KindedError{Kind: KindEncoding, Field: field, msg: fmt.Sprintf("invalid %s: %s", field, value)}
}

// sentinels for errors.Is comparisons against a bare kind.
var (
	KindUnsupportedErr  = &KindedError{Kind: KindUnsupported}
	KindInvalidInputErr = &KindedError{Kind: KindInvalidInput}
	KindNotFoundErr     = &KindedError{Kind: KindNotFound}
	KindUpstreamErr     = &KindedError{Kind: KindUpstream}
	KindEncodingErr     = &KindedError{Kind: KindEncoding}
)
