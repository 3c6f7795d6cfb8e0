package kv

import (
	"errors"
	"fmt"
)

// Sentinel errors for precondition violations. Absent keys are normally
// reported through sentinel return values, never through errors; these fire
// only where the operation contract requires the key (or index) to exist.
var (
	// ErrKeyNotFound is returned by IncrBy and Rename when the key is
	// absent or expired.
	ErrKeyNotFound = errors.New("kv: key not found")

	// ErrNotAnInteger is returned by IncrBy when the stored string value
	// does not parse as an integer.
	ErrNotAnInteger = errors.New("kv: value is not an integer")

	// ErrIndexOutOfRange is returned by LSet when the index does not
	// resolve to an existing list element.
	ErrIndexOutOfRange = errors.New("kv: list index out of range")
)

// keyError wraps a sentinel with the offending key so callers can both
// errors.Is-match and see which key failed.
func keyError(sentinel error, key string) error {
	return fmt.Errorf("%w: %q", sentinel, key)
}

// NotSupportedError reports an operation invoked against a backend that
// cannot provide it. It names both the operation and the backend so callers
// can branch on capability.
type NotSupportedError struct {
	Op      string
	Backend string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("kv: operation %q is not supported by the %s backend", e.Op, e.Backend)
}

// CodecError reports a value that could not be decoded (or encoded) after
// every configured serializer was tried. It is always propagated: returning
// wrong data would be worse than failing loudly.
type CodecError struct {
	Op  string // "encode" or "decode"
	Err error  // last underlying cause
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("kv: %s failed: %v", e.Op, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }
