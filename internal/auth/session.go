package auth

import (
	"context"
	"errors"
	"time"

	"github.com/DHenson1337/mini-game-playground-server/internal/apperr"
	"github.com/DHenson1337/mini-game-playground-server/internal/models"
)

type State int

const (
	Unauthenticated State = iota
	AccessValid
	AccessExpiredRefreshValid
	Rejected
)

func (s State) String() string {
	switch s {
	case AccessValid:
		return "access_valid"
	case AccessExpiredRefreshValid:
		return "refreshed"
	case Rejected:
		return "rejected"
	default:
		return "unauthenticated"
	}
}

type UserFinder interface {
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
}

// Resolution is the outcome of one pass through the session state machine.
// On AccessExpiredRefreshValid the new access token and the unchanged
// refresh token are returned for the caller to write back.
type Resolution struct {
	State          State
	Identity       Identity
	Reason         error
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

type Session struct {
	tokens *TokenService
	users  UserFinder
}

func NewSession(tokens *TokenService, users UserFinder) *Session {
	return &Session{tokens: tokens, users: users}
}

func (s *Session) Tokens() *TokenService { return s.tokens }

// Resolve runs the state machine for the tokens found on a request. The
// error return is reserved for store failures; authentication outcomes are
// reported through Resolution.State.
func (s *Session) Resolve(ctx context.Context, accessToken, refreshToken string) (Resolution, error) {
	if accessToken == "" && refreshToken == "" {
		return Resolution{State: Unauthenticated, Reason: apperr.ErrUnauthorized}, nil
	}
	if accessToken != "" {
		claims, err := s.tokens.Verify(accessToken, AccessToken)
		if err == nil {
			return Resolution{State: AccessValid, Identity: claims.Identity()}, nil
		}
	}
	if refreshToken == "" {
		return Resolution{State: Rejected, Reason: apperr.ErrUnauthorized}, nil
	}
	return s.refresh(ctx, refreshToken)
}

// Refresh mints a new access token from a refresh token alone.
func (s *Session) Refresh(ctx context.Context, refreshToken string) (Resolution, error) {
	if refreshToken == "" {
		return Resolution{State: Rejected, Reason: apperr.ErrUnauthorized}, nil
	}
	return s.refresh(ctx, refreshToken)
}

func (s *Session) refresh(ctx context.Context, refreshToken string) (Resolution, error) {
	claims, err := s.tokens.Verify(refreshToken, RefreshToken)
	if err != nil {
		return Resolution{State: Rejected, Reason: err}, nil
	}
	user, err := s.users.FindUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Resolution{State: Rejected, Reason: apperr.ErrUnauthorized}, nil
		}
		return Resolution{State: Rejected}, err
	}
	if user.IsGuest {
		return Resolution{State: Rejected, Reason: apperr.ErrUnauthorized}, nil
	}
	access, exp, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return Resolution{State: Rejected}, err
	}
	return Resolution{
		State:          AccessExpiredRefreshValid,
		Identity:       IdentityOf(user),
		AccessToken:    access,
		AccessExpires:  exp,
		RefreshToken:   refreshToken,
		RefreshExpires: claims.ExpiresAt.Time,
	}, nil
}
