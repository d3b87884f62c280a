package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/DHenson1337/mini-game-playground-server/internal/apperr"
	"github.com/DHenson1337/mini-game-playground-server/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrTokenConfig is returned by NewTokenService for unusable settings.
var ErrTokenConfig = errors.New("token service config")

type TokenKind int

const (
	AccessToken TokenKind = iota
	RefreshToken
)

func (k TokenKind) String() string {
	if k == RefreshToken {
		return "refresh"
	}
	return "access"
}

type Claims struct {
	UserID   uint   `json:"id"`
	Username string `json:"username"`
	IsGuest  bool   `json:"isGuest"`
	jwt.RegisteredClaims
}

// Identity is what the session layer attaches to a request.
type Identity struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	IsGuest  bool   `json:"isGuest"`
}

func IdentityOf(u *models.User) Identity {
	return Identity{ID: u.ID, Username: u.Username, IsGuest: u.IsGuest}
}

func (c *Claims) Identity() Identity {
	return Identity{ID: c.UserID, Username: c.Username, IsGuest: c.IsGuest}
}

func HashPassword(pw string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	return string(b), err
}

func VerifyPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenService signs and verifies access and refresh tokens. It keeps no
// state beyond its secrets, so a token is valid until it expires.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	switch {
	case cfg.AccessSecret == "" || cfg.RefreshSecret == "":
		return nil, fmt.Errorf("%w: secrets must not be empty", ErrTokenConfig)
	case cfg.AccessSecret == cfg.RefreshSecret:
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", ErrTokenConfig)
	case cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0:
		return nil, fmt.Errorf("%w: ttl must be positive", ErrTokenConfig)
	}
	return &TokenService{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}, nil
}

// WithClock swaps the time source used for issuing and verifying.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) secret(kind TokenKind) []byte {
	if kind == RefreshToken {
		return s.refreshSecret
	}
	return s.accessSecret
}

func (s *TokenService) issue(u *models.User, kind TokenKind, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		UserID:   u.ID,
		Username: u.Username,
		IsGuest:  u.IsGuest,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(u.ID), 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret(kind))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func (s *TokenService) IssueAccessToken(u *models.User) (string, time.Time, error) {
	return s.issue(u, AccessToken, s.accessTTL)
}

// IssueRefreshToken refuses guests: they never get persistent sessions.
func (s *TokenService) IssueRefreshToken(u *models.User) (string, time.Time, error) {
	if u.IsGuest {
		return "", time.Time{}, fmt.Errorf("%w: guests cannot hold refresh tokens", apperr.ErrForbidden)
	}
	return s.issue(u, RefreshToken, s.refreshTTL)
}

// Verify checks signature, algorithm and expiry against the secret of kind.
// Every failure is reported as apperr.ErrInvalidToken.
func (s *TokenService) Verify(tokenStr string, kind TokenKind) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret(kind), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrInvalidToken, kind, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidToken, kind)
	}
	return claims, nil
}
