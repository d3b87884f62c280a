// Package apperr holds the error taxonomy shared by the score pipeline, the
// session layer and the HTTP surface. Callers wrap a sentinel with detail via
// fmt.Errorf("%w: ...") and the server maps the sentinel to a status code.
package apperr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingFields     = errors.New("missing required fields")
	ErrInvalidFormat     = errors.New("invalid format")
	ErrInvalidGameID     = errors.New("invalid gameId format")
	ErrOutOfRange        = errors.New("invalid score value")
	ErrRateLimited       = errors.New("too many score submissions")
	ErrDuplicateIdentity = errors.New("username already exists")
	ErrNotFound          = errors.New("not found")
	ErrInvalidToken      = errors.New("invalid token")
	ErrUnauthorized      = errors.New("authentication required")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("record already exists")
	ErrInternal          = errors.New("internal error")
)

// RateLimitError reports a denied submission together with how long the
// caller has to wait before the window frees a slot.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Detail returns the text after the sentinel prefix of a wrapped error, or ""
// when the error carries no extra detail.
func Detail(err error, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if strings.HasPrefix(msg, prefix) {
		return msg[len(prefix):]
	}
	return ""
}
