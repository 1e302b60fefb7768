package domain

import "errors"

var (
	ErrInvalidRating   = errors.New("domain: invalid rating")
	ErrInvalidSettings = errors.New("domain: invalid settings")
	ErrInvalidMode     = errors.New("domain: invalid session mode")
)
