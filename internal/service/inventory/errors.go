package inventory

import "errors"

var (
	ErrNoCapacity       = errors.New("no spots available")
	ErrLocationNotFound = errors.New("parking location not found")
	ErrHoldNotFound     = errors.New("inventory hold not found")
)
