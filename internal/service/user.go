package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/DHenson1337/mini-game-playground-server/internal/apperr"
	"github.com/DHenson1337/mini-game-playground-server/internal/auth"
	"github.com/DHenson1337/mini-game-playground-server/internal/models"
	"github.com/DHenson1337/mini-game-playground-server/internal/store"
	"github.com/rs/zerolog/log"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,12}$`)

const (
	maxPasswordBytes = 72
	maxAvatarLen     = 64
	guestPrefix      = "guest"
	guestAttempts    = 50
)

// Notifier delivers direct events to one username's live connections.
type Notifier interface {
	Notify(username, event string, payload any)
}

// UserService holds the identity and session use cases.
type UserService struct {
	store  *store.Store
	tokens *auth.TokenService
	cost   int
	notify Notifier
}

func NewUserService(st *store.Store, tokens *auth.TokenService, bcryptCost int, notify Notifier) *UserService {
	return &UserService{store: st, tokens: tokens, cost: bcryptCost, notify: notify}
}

// AuthResult is a freshly authenticated identity and the tokens to set as
// cookies. RefreshToken is empty for guests and when remember-me was off.
type AuthResult struct {
	User           *models.User
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

type SignupInput struct {
	Username   string
	Password   string
	Avatar     string
	RememberMe bool
}

func validPassword(pw string) bool {
	return pw != "" && len(pw) <= maxPasswordBytes
}

func normalizeAvatar(avatar string) (string, error) {
	avatar = strings.TrimSpace(avatar)
	if avatar == "" {
		return models.DefaultAvatar, nil
	}
	if len(avatar) > maxAvatarLen {
		return "", ErrInvalidAvatar
	}
	return avatar, nil
}

func (s *UserService) issue(u *models.User, rememberMe bool) (*AuthResult, error) {
	res := &AuthResult{User: u}
	var err error
	res.AccessToken, res.AccessExpires, err = s.tokens.IssueAccessToken(u)
	if err != nil {
		return nil, err
	}
	if rememberMe && !u.IsGuest {
		res.RefreshToken, res.RefreshExpires, err = s.tokens.IssueRefreshToken(u)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Signup creates a registered identity. Usernames are unique regardless of
// case; a clash is reported as apperr.ErrDuplicateIdentity.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", apperr.ErrMissingFields)
	}
	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	if !validPassword(in.Password) {
		return nil, ErrInvalidPassword
	}
	avatar, err := normalizeAvatar(in.Avatar)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password, s.cost)
	if err != nil {
		return nil, err
	}
	u := &models.User{Username: username, PasswordHash: &hash, Avatar: avatar}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	log.Info().Uint("user_id", u.ID).Str("username", u.Username).Msg("user signed up")
	return s.issue(u, in.RememberMe)
}

// Login verifies a registered identity's password. Unknown users, guests and
// wrong passwords all yield ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, username, password string, rememberMe bool) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", apperr.ErrMissingFields)
	}
	u, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if u.IsGuest || u.PasswordHash == nil || !auth.VerifyPassword(*u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u, rememberMe)
}

// Guest creates a guest identity named guest<N>, starting from one past the
// current guest count and probing upward until a free name is inserted.
func (s *UserService) Guest(ctx context.Context, avatar string) (*AuthResult, error) {
	avatar, err := normalizeAvatar(avatar)
	if err != nil {
		return nil, err
	}
	n, err := s.store.CountGuests(ctx)
	if err != nil {
		return nil, err
	}
	for i := int64(1); i <= guestAttempts; i++ {
		u := &models.User{Username: fmt.Sprintf("%s%d", guestPrefix, n+i), Avatar: avatar, IsGuest: true}
		err := s.store.CreateUser(ctx, u)
		if errors.Is(err, apperr.ErrDuplicateIdentity) {
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Info().Uint("user_id", u.ID).Str("username", u.Username).Msg("guest created")
		return s.issue(u, false)
	}
	return nil, fmt.Errorf("%w: no free guest name after %d attempts", apperr.ErrConflict, guestAttempts)
}

// Profile is the public view of an identity.
func (s *UserService) Profile(ctx context.Context, username string) (*models.User, error) {
	return s.store.FindUserByUsername(ctx, username)
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	return s.store.FindUserByID(ctx, id)
}

func (s *UserService) UpdateAvatar(ctx context.Context, id uint, avatar string) (*models.User, error) {
	if strings.TrimSpace(avatar) == "" {
		return nil, fmt.Errorf("%w: avatar is required", apperr.ErrMissingFields)
	}
	avatar, err := normalizeAvatar(avatar)
	if err != nil {
		return nil, err
	}
	return s.store.UpdateAvatar(ctx, id, avatar)
}

// ChangePassword requires the current password. Tokens already issued stay
// valid until they expire.
func (s *UserService) ChangePassword(ctx context.Context, id uint, current, next string) error {
	if current == "" || next == "" {
		return fmt.Errorf("%w: currentPassword and newPassword are required", apperr.ErrMissingFields)
	}
	if !validPassword(next) {
		return ErrInvalidPassword
	}
	u, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return err
	}
	if u.IsGuest || u.PasswordHash == nil {
		return ErrGuestNotAllowed
	}
	if !auth.VerifyPassword(*u.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(next, s.cost)
	if err != nil {
		return err
	}
	return s.store.UpdatePasswordHash(ctx, id, hash)
}

// Delete removes the identity and all its scores, then tells any open
// sockets of that user.
func (s *UserService) Delete(ctx context.Context, id uint) (int64, error) {
	u, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return 0, err
	}
	removed, err := s.store.DeleteUser(ctx, id)
	if err != nil {
		return 0, err
	}
	log.Info().Uint("user_id", id).Int64("scores_removed", removed).Msg("user deleted")
	if s.notify != nil {
		s.notify.Notify(u.Username, "notifications", map[string]string{"type": "account_deleted"})
	}
	return removed, nil
}
