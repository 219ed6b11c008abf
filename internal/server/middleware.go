package server

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/auth"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const currentUserContextKey = "linkdeck_user"

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
		}
		if user, ok := currentUser(c); ok {
			fields = append(fields, zap.String("user_id", user.ID))
		}
		logger.Info("http request", fields...)
	}
}

// loadSession attaches the signed-in user to the context when the session cookie is valid.
// It never blocks the request.
func (h *httpHandler) loadSession(c *gin.Context) {
	claims, err := h.validator.ValidateRequest(c.Request)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
		case errors.Is(err, auth.ErrExpiredSessionToken):
			h.logger.Info("session validation failed", zap.Error(err))
		default:
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.Next()
		return
	}

	user, err := h.accounts.GetUser(c.Request.Context(), claims.UserID)
	switch {
	case errors.Is(err, users.ErrUserNotFound):
		h.logger.Info("session refers to missing user", zap.String("user_id", claims.UserID))
	case err != nil:
		h.logger.Error("failed to load session user", zap.String("user_id", claims.UserID), zap.Error(err))
	case !user.IsActive:
		h.logger.Info("session refers to inactive user", zap.String("user_id", user.ID))
	default:
		c.Set(currentUserContextKey, user)
	}
	c.Next()
}

// requireSession redirects anonymous visitors to the login page, remembering where they were headed.
func (h *httpHandler) requireSession(c *gin.Context) {
	if _, ok := currentUser(c); ok {
		c.Next()
		return
	}
	c.Redirect(http.StatusFound, loginPath+"?next="+url.QueryEscape(c.Request.URL.RequestURI()))
	c.Abort()
}

func (h *httpHandler) requireStaff(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok || !user.IsStaff {
		h.renderError(c, http.StatusForbidden, "You do not have permission to view this page.")
		c.Abort()
		return
	}
	c.Next()
}

func currentUser(c *gin.Context) (users.User, bool) {
	value, exists := c.Get(currentUserContextKey)
	if !exists {
		return users.User{}, false
	}
	user, ok := value.(users.User)
	return user, ok
}
