package client

import (
	"errors"
	"fmt"

	"github.com/jsp-lqk/metapipe-grid/internal"
)

// ConnectionError reports an unreachable store or a connection that broke
// while a request was in flight.
type ConnectionError = internal.ConnectionError

var (
	ErrConnectionOverloaded = internal.ErrConnectionOverloaded
	ErrRequestTimeout       = internal.ErrRequestTimeout
	ErrConnectionReset      = internal.ErrConnectionReset
	ErrClosed               = internal.ErrClosed
	ErrInvalidKey           = errors.New("invalid collection key")
	ErrMissingField         = errors.New("field is required for hash collections")
)

// SerializationError means the codec could not encode the value for Key.
type SerializationError struct {
	Key   string
	Field string
	Codec string
	Err   error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %v", location(e.Key, e.Field), e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError means the stored bytes for Key could not be decoded
// into the requested type, usually because another codec wrote them.
type DeserializationError struct {
	Key   string
	Field string
	Codec string
	Err   error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize %s with %s: %v", location(e.Key, e.Field), e.Codec, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// TypeConflictError rejects an operation that would use Key as a different
// kind of collection than the one it holds. Held is zero when the conflict
// was reported by the store rather than detected locally.
type TypeConflictError struct {
	Key       string
	Held      Kind
	Requested Kind
	Err       error
}

func (e *TypeConflictError) Error() string {
	if e.Held == 0 {
		return fmt.Sprintf("key %s holds another kind of value than %s", e.Key, e.Requested)
	}
	return fmt.Sprintf("key %s is a %s, cannot use it as a %s", e.Key, e.Held, e.Requested)
}

func (e *TypeConflictError) Unwrap() error { return e.Err }

// WriteError wraps any failure on a write or delete path. When it wraps a
// transport error the write may or may not have been applied.
type WriteError struct {
	Key   string
	Field string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", location(e.Key, e.Field), e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func location(key, field string) string {
	if field == "" {
		return key
	}
	return key + "[" + field + "]"
}
