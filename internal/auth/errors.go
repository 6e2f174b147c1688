package auth

import "errors"

var (
	ErrAlreadyExists    = errors.New("user already exists")
	ErrInvalidInput     = errors.New("email and password required")
	ErrInvalidConfig    = errors.New("invalid user store configuration")
	ErrInvalidStoreType = errors.New("invalid user store type")
)
