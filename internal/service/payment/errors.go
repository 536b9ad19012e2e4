package payment

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrProvider         = errors.New("payment provider error")
	ErrIntentNotFound   = errors.New("payment not found")
)
