package internal

import (
	"errors"
	"fmt"
)

var (
	ErrConnectionOverloaded = errors.New("connection overloaded")
	ErrRequestTimeout       = errors.New("request timeout")
	ErrConnectionReset      = errors.New("connection reset")
	ErrLivenessCheck        = errors.New("liveness check failed")
	ErrClosed               = errors.New("client closed")
)

// ConnectionError reports that an endpoint could not be reached, either
// because every redial attempt failed or because the connection broke
// while a request was in flight (Attempts is 0 in that case).
type ConnectionError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("connection to %s failed after %d attempts: %v", e.Addr, e.Attempts, e.Err)
	}
	return fmt.Sprintf("connection to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StoreError is an error reply sent by the remote store.
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string { return "store error: " + e.Message }

// WrongType reports whether the store rejected the command because the key
// holds a value of another shape.
func (e *StoreError) WrongType() bool {
	return len(e.Message) >= 9 && e.Message[:9] == "WRONGTYPE"
}
