package auth

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const identityKey = "identity"

type Middleware struct {
	session *Session
	cookies Cookies
}

func NewMiddleware(session *Session, cookies Cookies) *Middleware {
	return &Middleware{session: session, cookies: cookies}
}

func (m *Middleware) resolve(c *gin.Context) (Resolution, bool) {
	access, refresh := ReadTokens(c.Request)
	res, err := m.session.Resolve(c.Request.Context(), access, refresh)
	if err != nil {
		log.Error().Err(err).Msg("session resolve")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return res, false
	}
	if res.State == AccessExpiredRefreshValid {
		m.cookies.SetTokens(c, res.AccessToken, res.AccessExpires, res.RefreshToken, res.RefreshExpires)
		log.Debug().Uint("user_id", res.Identity.ID).Msg("access token refreshed")
	}
	return res, true
}

// Authenticate rejects any request that does not end in AccessValid or
// AccessExpiredRefreshValid.
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, ok := m.resolve(c)
		if !ok {
			return
		}
		switch res.State {
		case AccessValid, AccessExpiredRefreshValid:
			c.Set(identityKey, res.Identity)
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		}
	}
}

// AllowGuest attaches an identity when one resolves and otherwise lets the
// request through anonymously.
func (m *Middleware) AllowGuest() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, ok := m.resolve(c)
		if !ok {
			return
		}
		if res.State == AccessValid || res.State == AccessExpiredRefreshValid {
			c.Set(identityKey, res.Identity)
		}
		c.Next()
	}
}

// RequireRegistered rejects guests and anonymous callers.
func RequireRegistered() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok || id.IsGuest {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "this action requires a registered account"})
			return
		}
		c.Next()
	}
}

// RequireOwner rejects requests whose identity is not the user named by the
// path parameter.
func RequireOwner(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		owner, err := strconv.ParseUint(c.Param(param), 10, 64)
		if !ok || err != nil || uint(owner) != id.ID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not authorized to access this resource"})
			return
		}
		c.Next()
	}
}

func CurrentIdentity(c *gin.Context) (Identity, bool) {
	if v, ok := c.Get(identityKey); ok {
		if id, ok2 := v.(Identity); ok2 {
			return id, true
		}
	}
	return Identity{}, false
}

func GetUserID(c *gin.Context) uint {
	id, _ := CurrentIdentity(c)
	return id.ID
}
