// Package apperr holds sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnresolved    = errors.New("unresolved reference")
	ErrNotFloating   = errors.New("grouping is not floating")
)
