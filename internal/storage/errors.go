package storage

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes store failures.
type ErrorKind string

const (
	// KindOpen indicates the backend could not be opened or initialized.
	KindOpen ErrorKind = "open"

	// KindRead indicates existing content could not be read.
	KindRead ErrorKind = "read"

	// KindDecode indicates existing content is not a valid submission log.
	KindDecode ErrorKind = "decode"

	// KindEncode indicates the merged log could not be serialized.
	KindEncode ErrorKind = "encode"

	// KindWrite indicates the merged log could not be written back.
	KindWrite ErrorKind = "write"
)

// Error is returned by every Store operation that fails.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a store Error of the given kind.
// Uses errors.As to handle wrapped errors.
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// KindOf returns the kind of a store Error, or "" for any other error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
