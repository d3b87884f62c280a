package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/DHenson1337/mini-game-playground-server/internal/apperr"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var statusTable = []struct {
	err    error
	status int
}{
	{apperr.ErrMissingFields, http.StatusBadRequest},
	{apperr.ErrInvalidFormat, http.StatusBadRequest},
	{apperr.ErrInvalidGameID, http.StatusBadRequest},
	{apperr.ErrOutOfRange, http.StatusBadRequest},
	{apperr.ErrDuplicateIdentity, http.StatusBadRequest},
	{apperr.ErrInvalidToken, http.StatusUnauthorized},
	{apperr.ErrUnauthorized, http.StatusUnauthorized},
	{apperr.ErrForbidden, http.StatusForbidden},
	{apperr.ErrNotFound, http.StatusNotFound},
	{apperr.ErrConflict, http.StatusConflict},
	{apperr.ErrRateLimited, http.StatusTooManyRequests},
}

// classify returns the status and the sentinel an error maps to. Unknown
// errors map to 500 and apperr.ErrInternal.
func classify(err error) (int, error) {
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status, e.err
		}
	}
	return http.StatusInternalServerError, apperr.ErrInternal
}

// writeError renders err as {"error", "details"}. Internal causes are logged
// and never echoed to the client.
func writeError(c *gin.Context, err error) {
	status, sentinel := classify(err)
	body := gin.H{"error": sentinel.Error()}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", c.Request.Method).Str("path", c.FullPath()).Msg("request failed")
		c.AbortWithStatusJSON(status, body)
		return
	}
	if detail := apperr.Detail(err, sentinel); detail != "" {
		body["details"] = detail
	}
	var rl *apperr.RateLimitError
	if errors.As(err, &rl) {
		secs := int(math.Ceil(rl.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		body["retryAfter"] = secs
	}
	c.AbortWithStatusJSON(status, body)
}

func badPayload(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperr.ErrInvalidFormat.Error(), "details": "invalid JSON payload"})
}
