package repository

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrNoCapacity = errors.New("no capacity")
	ErrStaleState = errors.New("stale state")
	ErrTransient  = errors.New("transient store error")
)
