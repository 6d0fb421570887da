package entity

import "errors"

var (
	ErrInvalidProperty  = errors.New("invalid property")
	ErrNotAuthenticated = errors.New("user must be signed in")
)
