// Package scoring checks and normalises score submissions before they reach
// the rate limiter and the store. Everything here is pure.
package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/DHenson1337/mini-game-playground-server/internal/apperr"
)

// RawSubmission is the request body as received. Score stays raw so that a
// missing score, a null and a string can be told apart.
type RawSubmission struct {
	Username string          `json:"username"`
	GameID   string          `json:"gameId"`
	Score    json.RawMessage `json:"score"`
}

// Submission is a validated and sanitized score.
type Submission struct {
	Username string
	GameID   string
	Score    int64
}

// Validate runs the checks in a fixed order so the first failure is always
// the most specific one: required fields, score type, game id format, then
// range and granularity. On success the sanitized submission is returned.
func Validate(raw RawSubmission, rules Rules) (Submission, error) {
	username := strings.TrimSpace(raw.Username)
	gameID := strings.TrimSpace(raw.GameID)
	if username == "" || gameID == "" || len(raw.Score) == 0 {
		return Submission{}, fmt.Errorf("%w: username, gameId, and score are required", apperr.ErrMissingFields)
	}

	score, err := parseScore(raw.Score)
	if err != nil {
		return Submission{}, err
	}

	if !gameIDPattern.MatchString(gameID) {
		return Submission{}, fmt.Errorf("%w: gameId must contain only lowercase letters, numbers, and hyphens", apperr.ErrInvalidGameID)
	}

	rs := rules.For(gameID)
	if score < float64(rs.Min) || score > float64(rs.Max) {
		return Submission{}, fmt.Errorf("%w: score must be between %d and %d", apperr.ErrOutOfRange, rs.Min, rs.Max)
	}
	value := int64(math.Floor(score))
	if value%rs.Granularity != 0 {
		return Submission{}, fmt.Errorf("%w: score must be a multiple of %d", apperr.ErrOutOfRange, rs.Granularity)
	}

	return Sanitize(username, gameID, value), nil
}

// Sanitize lowercases and trims the identifiers.
func Sanitize(username, gameID string, score int64) Submission {
	return Submission{
		Username: strings.ToLower(strings.TrimSpace(username)),
		GameID:   strings.ToLower(strings.TrimSpace(gameID)),
		Score:    score,
	}
}

func parseScore(raw json.RawMessage) (float64, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: score must be a number", apperr.ErrInvalidFormat)
	}
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: score must be a number", apperr.ErrInvalidFormat)
	}
	return f, nil
}
