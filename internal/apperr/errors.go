// Package apperr holds the sentinel errors shared across Laguz packages.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrOutOfRange        = errors.New("index out of range")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotLoaded         = errors.New("dataset not loaded")
)
