package server

import (
	"net/http"
	"strconv"

	"github.com/DHenson1337/mini-game-playground-server/internal/apperr"
	"github.com/DHenson1337/mini-game-playground-server/internal/auth"
	"github.com/DHenson1337/mini-game-playground-server/internal/scoring"
	"github.com/DHenson1337/mini-game-playground-server/internal/service"

	"github.com/gin-gonic/gin"
)

// Handler groups the HTTP handlers over the service layer.
type Handler struct {
	users   *service.UserService
	scores  *service.ScoreService
	session *auth.Session
	cookies auth.Cookies
}

func NewHandler(users *service.UserService, scores *service.ScoreService, session *auth.Session, cookies auth.Cookies) *Handler {
	return &Handler{users: users, scores: scores, session: session, cookies: cookies}
}

func (h *Handler) setSession(c *gin.Context, res *service.AuthResult) {
	h.cookies.SetTokens(c, res.AccessToken, res.AccessExpires, res.RefreshToken, res.RefreshExpires)
}

func pathUserID(c *gin.Context) uint {
	id, _ := strconv.ParseUint(c.Param("userId"), 10, 64)
	return uint(id)
}

// Signup handles POST /api/auth/signup.
func (h *Handler) Signup(c *gin.Context) {
	var req struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		Avatar     string `json:"avatar"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}
	res, err := h.users.Signup(c.Request.Context(), service.SignupInput{
		Username:   req.Username,
		Password:   req.Password,
		Avatar:     req.Avatar,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.setSession(c, res)
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": res.User})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}
	res, err := h.users.Login(c.Request.Context(), req.Username, req.Password, req.RememberMe)
	if err != nil {
		writeError(c, err)
		return
	}
	h.setSession(c, res)
	c.JSON(http.StatusOK, gin.H{"message": "Login successful", "user": res.User})
}

// Guest handles POST /api/auth/guest. The body is optional.
func (h *Handler) Guest(c *gin.Context) {
	var req struct {
		Avatar string `json:"avatar"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badPayload(c)
			return
		}
	}
	res, err := h.users.Guest(c.Request.Context(), req.Avatar)
	if err != nil {
		writeError(c, err)
		return
	}
	h.setSession(c, res)
	c.JSON(http.StatusCreated, gin.H{"message": "Guest access granted", "user": res.User})
}

// Logout clears both cookies. Issued tokens stay valid until they expire.
func (h *Handler) Logout(c *gin.Context) {
	h.cookies.Clear(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successful"})
}

// RefreshToken handles POST /api/auth/refresh-token using the refresh cookie.
func (h *Handler) RefreshToken(c *gin.Context) {
	_, refresh := auth.ReadTokens(c.Request)
	res, err := h.session.Refresh(c.Request.Context(), refresh)
	if err != nil {
		writeError(c, err)
		return
	}
	if res.State != auth.AccessExpiredRefreshValid {
		reason := res.Reason
		if reason == nil {
			reason = apperr.ErrUnauthorized
		}
		writeError(c, reason)
		return
	}
	h.cookies.SetTokens(c, res.AccessToken, res.AccessExpires, res.RefreshToken, res.RefreshExpires)
	c.JSON(http.StatusOK, gin.H{"message": "Token refreshed successfully"})
}

// Me returns the stored record of the session identity.
func (h *Handler) Me(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// SubmitScore handles POST /api/scores.
func (h *Handler) SubmitScore(c *gin.Context) {
	var req scoring.RawSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}
	var actor *auth.Identity
	if id, ok := auth.CurrentIdentity(c); ok {
		actor = &id
	}
	view, err := h.scores.Submit(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// Leaderboard handles GET /api/scores/game/:gameId.
func (h *Handler) Leaderboard(c *gin.Context) {
	views, err := h.scores.Leaderboard(c.Request.Context(), c.Param("gameId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// UserScores handles GET /api/scores/user/:username.
func (h *Handler) UserScores(c *gin.Context) {
	scores, err := h.scores.UserScores(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scores)
}

// Profile handles GET /api/users/:username.
func (h *Handler) Profile(c *gin.Context) {
	u, err := h.users.Profile(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// UpdateAvatar handles PUT /api/users/:userId.
func (h *Handler) UpdateAvatar(c *gin.Context) {
	var req struct {
		Avatar string `json:"avatar"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}
	u, err := h.users.UpdateAvatar(c.Request.Context(), pathUserID(c), req.Avatar)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ChangePassword handles PUT /api/users/:userId/password.
func (h *Handler) ChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), pathUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

// DeleteUser handles DELETE /api/users/:userId and ends the session.
func (h *Handler) DeleteUser(c *gin.Context) {
	removed, err := h.users.Delete(c.Request.Context(), pathUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	h.cookies.Clear(c)
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully", "scoresRemoved": removed})
}
