package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DHenson1337/mini-game-playground-server/internal/apperr"
	"github.com/DHenson1337/mini-game-playground-server/internal/auth"
	"github.com/DHenson1337/mini-game-playground-server/internal/metrics"
	"github.com/DHenson1337/mini-game-playground-server/internal/models"
	"github.com/DHenson1337/mini-game-playground-server/internal/ratelimit"
	"github.com/DHenson1337/mini-game-playground-server/internal/scoring"
	"github.com/DHenson1337/mini-game-playground-server/internal/store"
	"github.com/rs/zerolog/log"
)

const LeaderboardSize = 100

// Broadcaster fans accepted scores out to a game's live audience.
type Broadcaster interface {
	Notifier
	PublishScore(gameID string, payload any)
}

// ScoreService is the submission pipeline plus the leaderboard reads.
type ScoreService struct {
	store   *store.Store
	limiter ratelimit.Limiter
	rules   scoring.Rules
	hub     Broadcaster
}

func NewScoreService(st *store.Store, limiter ratelimit.Limiter, rules scoring.Rules, hub Broadcaster) *ScoreService {
	return &ScoreService{store: st, limiter: limiter, rules: rules, hub: hub}
}

func rateKey(username string) string {
	return "score:" + username
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, apperr.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, apperr.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperr.ErrNotFound):
		return "unknown_user"
	case errors.Is(err, apperr.ErrMissingFields), errors.Is(err, apperr.ErrInvalidFormat),
		errors.Is(err, apperr.ErrInvalidGameID), errors.Is(err, apperr.ErrOutOfRange):
		return "invalid"
	default:
		return "error"
	}
}

// Submit runs validate, sanitize, rate limit, persist and broadcast in that
// order. actor is the session identity, nil for anonymous callers. The
// username check only stops a signed-in player from submitting under another
// account; anonymous callers are not checked, since the route is open to
// them. The broadcast happens only after the write succeeded and never fails
// the call.
func (s *ScoreService) Submit(ctx context.Context, actor *auth.Identity, raw scoring.RawSubmission) (view *store.ScoreView, err error) {
	defer func() {
		metrics.ScoreSubmissionsTotal.WithLabelValues(s.rules.GameLabel(raw.GameID), outcome(err)).Inc()
	}()

	sub, err := scoring.Validate(raw, s.rules)
	if err != nil {
		return nil, err
	}
	if actor != nil && !strings.EqualFold(actor.Username, sub.Username) {
		return nil, ErrUsernameMismatch
	}

	dec, err := s.limiter.Allow(ctx, rateKey(sub.Username))
	switch {
	case err != nil:
		// fail open
		log.Warn().Err(err).Str("username", sub.Username).Msg("rate limiter unavailable")
	case !dec.Allowed:
		return nil, &apperr.RateLimitError{RetryAfter: dec.RetryAfter}
	}

	user, err := s.store.FindUserByUsername(ctx, sub.Username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %q", apperr.ErrNotFound, sub.Username)
		}
		return nil, err
	}

	view, err = s.store.CreateScore(ctx, &models.Score{UserID: user.ID, GameID: sub.GameID, Value: sub.Score})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("game_id", view.GameID).Str("username", view.User.Username).Int64("score", view.Score).Msg("score accepted")

	if s.hub != nil {
		s.hub.PublishScore(view.GameID, view)
		s.notifyIfTop(ctx, view)
	}
	return view, nil
}

// notifyIfTop tells the submitter when the new score leads its game.
func (s *ScoreService) notifyIfTop(ctx context.Context, view *store.ScoreView) {
	top, err := s.store.TopScores(ctx, view.GameID, 1)
	if err != nil {
		log.Warn().Err(err).Str("game_id", view.GameID).Msg("top score lookup")
		return
	}
	if len(top) == 1 && top[0].ID == view.ID {
		s.hub.Notify(view.User.Username, "notifications", map[string]any{
			"type":   "high_score",
			"gameId": view.GameID,
			"score":  view.Score,
		})
	}
}

// Leaderboard returns the top scores of a game, best first.
func (s *ScoreService) Leaderboard(ctx context.Context, gameID string) ([]store.ScoreView, error) {
	gameID = strings.TrimSpace(gameID)
	if !scoring.ValidGameID(gameID) {
		return nil, fmt.Errorf("%w: gameId must contain only lowercase letters, numbers, and hyphens", apperr.ErrInvalidGameID)
	}
	return s.store.TopScores(ctx, gameID, LeaderboardSize)
}

// UserScores lists one identity's scores, newest first.
func (s *ScoreService) UserScores(ctx context.Context, username string) ([]models.Score, error) {
	u, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.store.ScoresByUser(ctx, u.ID)
}
