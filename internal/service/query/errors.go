package query

import "errors"

var (
	ErrLocationNotFound   = errors.New("parking location not found")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidFilter      = errors.New("invalid search filter")
)
