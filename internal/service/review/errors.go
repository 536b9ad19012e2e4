package review

import "errors"

var (
	ErrLocationNotFound = errors.New("parking location not found")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrCommentTooLong   = errors.New("comment must be at most 500 characters")
	ErrAlreadyReviewed  = errors.New("you have already reviewed this parking")
)
