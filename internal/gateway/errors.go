package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// Error is a failed gateway call. Status is zero when no HTTP response was
// received (transport error), in which case Err holds the cause.
type Error struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// maxMessageBytes caps a raw body used as a message; the cut never splits a
// rune.
const maxMessageBytes = 200

// Message extracts the {"error": ...} text from the raw body, falling back to
// the trimmed body itself.
func (e *Error) Message() string {
	var env struct {
		Error string `json:"error"`
	}
	if err := sonic.UnmarshalString(e.Body, &env); err == nil && env.Error != "" {
		return env.Error
	}
	body := strings.TrimSpace(e.Body)
	if len(body) > maxMessageBytes {
		cut := maxMessageBytes
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	return body
}

// IsUnauthorized reports whether err is a gateway 401.
func IsUnauthorized(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Status == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Status
	}
	return 0
}
