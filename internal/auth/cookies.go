package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// Cookies writes the token cookies. Max-Age always matches the token's
// remaining lifetime.
type Cookies struct {
	Secure   bool
	SameSite http.SameSite
	Now      func() time.Time
}

// NewCookies is strict and secure in production and relaxes SameSite to Lax
// elsewhere so a dev frontend on another port keeps its session.
func NewCookies(production bool) Cookies {
	ck := Cookies{Secure: production, SameSite: http.SameSiteLaxMode, Now: time.Now}
	if production {
		ck.SameSite = http.SameSiteStrictMode
	}
	return ck
}

func (ck Cookies) maxAge(exp time.Time) int {
	now := time.Now
	if ck.Now != nil {
		now = ck.Now
	}
	return int(exp.Sub(now()).Seconds())
}

func (ck Cookies) set(c *gin.Context, name, value string, exp time.Time) {
	age := ck.maxAge(exp)
	if age <= 0 {
		return
	}
	c.SetSameSite(ck.SameSite)
	c.SetCookie(name, value, age, "/", "", ck.Secure, true)
}

// SetTokens writes the access cookie, and the refresh cookie when present.
func (ck Cookies) SetTokens(c *gin.Context, access string, accessExp time.Time, refresh string, refreshExp time.Time) {
	ck.set(c, AccessCookie, access, accessExp)
	if refresh != "" {
		ck.set(c, RefreshCookie, refresh, refreshExp)
	}
}

func (ck Cookies) Clear(c *gin.Context) {
	c.SetSameSite(ck.SameSite)
	c.SetCookie(AccessCookie, "", -1, "/", "", ck.Secure, true)
	c.SetCookie(RefreshCookie, "", -1, "/", "", ck.Secure, true)
}

// ReadTokens returns the token cookies of the request, "" when absent.
func ReadTokens(r *http.Request) (access, refresh string) {
	if ck, err := r.Cookie(AccessCookie); err == nil {
		access = ck.Value
	}
	if ck, err := r.Cookie(RefreshCookie); err == nil {
		refresh = ck.Value
	}
	return access, refresh
}
