package protocol

import (
	"errors"
	"fmt"
)

// EncodeError is returned when an envelope violates a wire invariant and
// cannot be serialized. Well-formed envelopes never produce one.
type EncodeError struct {
	Reason string
	Err    error
}

// Error implements the error interface
func (e *EncodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encode envelope: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("encode envelope: %s", e.Reason)
}

// Unwrap returns the underlying error
func (e *EncodeError) Unwrap() error {
	return e.Err
}

// DecodeError is returned when a payload is not a well-formed envelope
// (truncated, wrong schema, wrong types). Callers drop the datagram.
type DecodeError struct {
	Reason string
	Length int // Payload length in bytes
	Err    error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode envelope (%d bytes): %s: %v", e.Length, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode envelope (%d bytes): %s", e.Length, e.Reason)
}

// Unwrap returns the underlying error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError checks if an error is a decode error
func IsDecodeError(err error) bool {
	var decErr *DecodeError
	return errors.As(err, &decErr)
}

// IsEncodeError checks if an error is an encode error
func IsEncodeError(err error) bool {
	var encErr *EncodeError
	return errors.As(err, &encErr)
}
