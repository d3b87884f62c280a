package service

import (
	"fmt"

	"github.com/DHenson1337/mini-game-playground-server/internal/apperr"
)

// Use-case level errors. Each wraps an apperr sentinel so the HTTP layer can
// map it without knowing about this package.
var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", apperr.ErrUnauthorized)
	ErrInvalidUsername    = fmt.Errorf("%w: username must be 3-12 characters of letters, numbers, and underscores", apperr.ErrInvalidFormat)
	ErrInvalidPassword    = fmt.Errorf("%w: password must be 1-72 bytes", apperr.ErrInvalidFormat)
	ErrInvalidAvatar      = fmt.Errorf("%w: avatar must be at most 64 characters", apperr.ErrInvalidFormat)
	ErrGuestNotAllowed    = fmt.Errorf("%w: guest accounts cannot do this", apperr.ErrForbidden)
	ErrUsernameMismatch   = fmt.Errorf("%w: cannot submit scores for another user", apperr.ErrForbidden)
)
