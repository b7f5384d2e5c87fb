package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrUnknownVariant  = errors.New("unknown variant")
	ErrInvalidRating   = errors.New("rating must be -1, 0 or 1")
	ErrNoUsablePrompts = errors.New("no usable prompt variants")
	ErrProviderFailure = errors.New("provider failure")
	ErrActiveJob       = errors.New("another job is already active")
)
