package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInitialization marks failures to construct or open a store or one
	// of its resource pools.
	ErrInitialization = errors.New("store initialization failed")
	// ErrWrite marks I/O failures while persisting a record.
	ErrWrite = errors.New("store write failed")
)

// Error is a store failure of a given kind. errors.Is matches both the kind
// sentinel and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Op)
	}

	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Err}
}

// InitError wraps err as an initialization failure of op.
func InitError(op string, err error) error {
	return &Error{Kind: ErrInitialization, Op: op, Err: err}
}

// WriteError wraps err as a write failure of op.
func WriteError(op string, err error) error {
	return &Error{Kind: ErrWrite, Op: op, Err: err}
}
