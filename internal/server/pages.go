package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/auth"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const invalidLoginMessage = "Please enter a correct username and password."

// pageData seeds template data with the signed-in user, if any.
func pageData(c *gin.Context, title string) gin.H {
	data := gin.H{"title": title}
	if user, ok := currentUser(c); ok {
		data["user"] = user
	}
	return data
}

func (h *httpHandler) handleHome(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", pageData(c, ""))
}

func (h *httpHandler) handleDashboard(c *gin.Context) {
	c.HTML(http.StatusOK, "dashboard.html", pageData(c, "Dashboard"))
}

func (h *httpHandler) handleSettings(c *gin.Context) {
	user, _ := currentUser(c)
	summary, err := h.summaries.Build(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("failed to build identity summary", zap.String("user_id", user.ID), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Your linked accounts could not be loaded.")
		return
	}

	data := pageData(c, "Settings")
	for key, value := range summary.ViewModel() {
		data[key] = value
	}
	enabled := make(map[string]bool, len(users.Providers()))
	for _, provider := range h.providers.Enabled() {
		enabled[provider.String()] = true
	}
	data["enabled"] = enabled
	c.HTML(http.StatusOK, "settings.html", data)
}

func (h *httpHandler) handleLoginForm(c *gin.Context) {
	next := safeNext(c.Query("next"))
	if _, ok := currentUser(c); ok {
		c.Redirect(http.StatusFound, redirectTarget(next, dashboardPath))
		return
	}
	h.renderLogin(c, http.StatusOK, next, "", "")
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	next := safeNext(c.PostForm("next"))

	user, err := h.accounts.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			h.logger.Warn("password login rejected", zap.String("username", username))
			h.renderLogin(c, http.StatusUnauthorized, next, username, invalidLoginMessage)
			return
		}
		h.logger.Error("password login failed", zap.String("username", username), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Signing in failed. Please try again.")
		return
	}

	if !h.startSession(c, user) {
		return
	}
	c.Redirect(http.StatusFound, redirectTarget(next, dashboardPath))
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	if user, ok := currentUser(c); ok {
		h.logger.Info("user logged out", zap.String("user_id", user.ID))
	}
	auth.ClearCookie(c.Writer, h.sessionCookie)
	c.Redirect(http.StatusFound, "/")
}

func (h *httpHandler) renderLogin(c *gin.Context, status int, next, username, message string) {
	data := pageData(c, "Log in")
	data["next"] = next
	data["username"] = username
	data["providers"] = h.providers.Enabled()
	if message != "" {
		data["error"] = message
	}
	c.HTML(status, "login.html", data)
}

// startSession issues the session cookie. It renders an error page and returns false on failure.
func (h *httpHandler) startSession(c *gin.Context, user users.User) bool {
	token, expiresAt, err := h.sessions.Issue(user.ID, user.Username)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.String("user_id", user.ID), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Signing in failed. Please try again.")
		return false
	}
	auth.SetCookie(c.Writer, h.sessionCookie, token, expiresAt)
	h.logger.Info("session started", zap.String("user_id", user.ID))
	return true
}

func (h *httpHandler) renderError(c *gin.Context, status int, message string) {
	data := pageData(c, http.StatusText(status))
	data["status"] = status
	data["message"] = message
	c.HTML(status, "error.html", data)
}

// safeNext keeps only same-site absolute paths. Browsers drop tabs and newlines inside
// URLs, so any control character could turn the path into a protocol-relative one.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if strings.ContainsFunc(next, unicode.IsControl) || strings.Contains(next, `\`) {
		return ""
	}
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return ""
	}
	parsed, err := url.Parse(next)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" {
		return ""
	}
	return next
}

func redirectTarget(next, fallback string) string {
	if next == "" {
		return fallback
	}
	return next
}
