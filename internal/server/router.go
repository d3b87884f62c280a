package server

import (
	"net/http"

	"github.com/DHenson1337/mini-game-playground-server/internal/auth"
	"github.com/DHenson1337/mini-game-playground-server/internal/config"
	"github.com/DHenson1337/mini-game-playground-server/internal/metrics"
	"github.com/DHenson1337/mini-game-playground-server/internal/mw"
	"github.com/DHenson1337/mini-game-playground-server/internal/ratelimit"
	"github.com/DHenson1337/mini-game-playground-server/internal/scoring"
	"github.com/DHenson1337/mini-game-playground-server/internal/service"
	"github.com/DHenson1337/mini-game-playground-server/internal/store"
	"github.com/DHenson1337/mini-game-playground-server/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps are the long-lived collaborators the router wires together. Edge is
// optional; without it no per-IP limit is applied.
type Deps struct {
	DB      *gorm.DB
	Hub     *ws.Hub
	Limiter ratelimit.Limiter
	Rules   scoring.Rules
	Edge    *mw.EdgeLimiter
}

// SetupRouter builds the gin engine with middleware, the REST API and the
// websocket endpoint.
func SetupRouter(cfg config.Config, deps Deps) (*gin.Engine, error) {
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	st := store.New(deps.DB)
	session := auth.NewSession(tokens, st)
	cookies := auth.NewCookies(cfg.IsProduction())
	sessions := auth.NewMiddleware(session, cookies)
	h := NewHandler(
		service.NewUserService(st, tokens, cfg.BcryptCost, deps.Hub),
		service.NewScoreService(st, deps.Limiter, deps.Rules, deps.Hub),
		session,
		cookies,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.FrontendURL))
	if deps.Edge != nil {
		r.Use(deps.Edge.Handler())
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", ws.Serve(deps.Hub, tokens, cfg))

	api := r.Group("/api")

	authAPI := api.Group("/auth")
	authAPI.POST("/signup", h.Signup)
	authAPI.POST("/login", h.Login)
	authAPI.POST("/guest", h.Guest)
	authAPI.POST("/logout", h.Logout)
	authAPI.POST("/refresh-token", h.RefreshToken)
	authAPI.GET("/me", sessions.Authenticate(), h.Me)

	scores := api.Group("/scores")
	scores.POST("", sessions.AllowGuest(), h.SubmitScore)
	scores.GET("/game/:gameId", h.Leaderboard)
	scores.GET("/user/:username", h.UserScores)

	users := api.Group("/users")
	users.GET("/:username", h.Profile)
	users.PUT("/:userId", sessions.Authenticate(), auth.RequireOwner("userId"), h.UpdateAvatar)
	users.PUT("/:userId/password", sessions.Authenticate(), auth.RequireRegistered(), auth.RequireOwner("userId"), h.ChangePassword)
	users.DELETE("/:userId", sessions.Authenticate(), auth.RequireRegistered(), auth.RequireOwner("userId"), h.DeleteUser)

	return r, nil
}
