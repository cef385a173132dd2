package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mochimo/internal/model"
	"mochimo/internal/service"
	"mochimo/pkg/config"
)

type AuthHandler struct {
	auth   *service.AuthService
	cookie config.JWTConfig
	logger *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, cookie config.JWTConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, cookie: cookie, logger: logger}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.auth.Register(c.Request.Context(), req.Email, req.Name, req.Password, model.Role(req.Role))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": u})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login POST /api/auth/login，token 同时写入 HttpOnly cookie 和响应体
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.setCookie(c, sess.Token, int(time.Until(sess.ExpiresAt).Seconds()))
	c.JSON(http.StatusOK, gin.H{
		"user":       sess.User,
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt,
	})
}

// Logout POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), c.GetString(CtxToken)); err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.setCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

// Me GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	u, err := h.auth.Me(c.Request.Context(), actor(c).UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.CookieName, value, maxAge, "/", h.cookie.CookieDomain, h.cookie.CookieSecure, true)
}
