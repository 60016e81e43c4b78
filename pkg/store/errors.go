// Package store persists a Monte Carlo batch on disk: the variant netlists,
// a manifest, the compressed series archive and a run ledger.
package store

import (
	"errors"
	"fmt"
)

var ErrIO = errors.New("i/o failure")

// IOError wraps a filesystem or database failure with the path involved.
// It matches both ErrIO and the underlying cause.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() []error { return []error{ErrIO, e.Err} }

func ioErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}
