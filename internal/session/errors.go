package session

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig    = errors.New("invalid token store configuration")
	ErrInvalidStoreType = errors.New("invalid token store type")
)

// AuthError is a failed login or registration. Message is the server's
// {"error"} text when it sent one, otherwise a generic default. Status is
// zero when the request never reached the server.
type AuthError struct {
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Status == 0 && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }
