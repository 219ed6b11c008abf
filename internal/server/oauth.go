package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/auth"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/oauth"
	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) lookupProvider(c *gin.Context) (oauth.Provider, bool) {
	name, err := users.ParseProvider(c.Param("provider"))
	if err != nil {
		h.renderError(c, http.StatusNotFound, "Unknown sign-in provider.")
		return nil, false
	}
	provider, ok := h.providers.Get(name)
	if !ok {
		h.renderError(c, http.StatusNotFound, "This sign-in provider is not available.")
		return nil, false
	}
	return provider, true
}

func (h *httpHandler) handleOAuthBegin(c *gin.Context) {
	provider, ok := h.lookupProvider(c)
	if !ok {
		return
	}

	verifier := oauth.GenerateVerifier()
	state, err := h.states.Begin(provider.Name().String(), verifier, safeNext(c.Query("next")))
	if err != nil {
		h.logger.Error("failed to start oauth handshake", zap.String("provider", provider.Name().String()), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Could not contact the sign-in provider.")
		return
	}
	token, err := h.states.Encode(state)
	if err != nil {
		h.logger.Error("failed to encode oauth state", zap.String("provider", provider.Name().String()), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Could not contact the sign-in provider.")
		return
	}

	auth.SetCookie(c.Writer, h.stateCookie, token, h.states.ExpiresAt())
	c.Redirect(http.StatusFound, provider.AuthCodeURL(state.Nonce, verifier))
}

func (h *httpHandler) handleOAuthComplete(c *gin.Context) {
	provider, ok := h.lookupProvider(c)
	if !ok {
		return
	}
	name := provider.Name()
	auth.ClearCookie(c.Writer, h.stateCookie)

	if providerErr := c.Query("error"); providerErr != "" {
		h.logger.Warn("oauth provider returned an error",
			zap.String("provider", name.String()),
			zap.String("error", providerErr),
			zap.String("description", c.Query("error_description")),
		)
		c.Redirect(http.StatusFound, loginPath)
		return
	}

	stateToken, _ := c.Cookie(stateCookieName)
	state, err := h.states.Decode(stateToken, name.String(), c.Query("state"))
	if err != nil {
		h.logger.Warn("oauth state rejected", zap.String("provider", name.String()), zap.Error(err))
		h.renderError(c, http.StatusBadRequest, "The sign-in request expired or was tampered with. Please try again.")
		return
	}
	code := c.Query("code")
	if code == "" {
		h.logger.Warn("oauth callback without code", zap.String("provider", name.String()))
		h.renderError(c, http.StatusBadRequest, "The sign-in provider did not return an authorization code.")
		return
	}

	profile, err := provider.Exchange(c.Request.Context(), code, state.Verifier)
	if err != nil {
		h.logger.Warn("oauth exchange failed", zap.String("provider", name.String()), zap.Error(err))
		h.renderError(c, http.StatusBadGateway, "The sign-in provider could not confirm your account.")
		return
	}

	current, linking := currentUser(c)
	user, err := h.accounts.ResolveOAuthUser(c.Request.Context(), profile, current.ID)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrIdentityConflict):
			h.logger.Warn("oauth identity conflict", zap.String("provider", name.String()), zap.String("user_id", current.ID))
			h.renderError(c, http.StatusConflict, "This account is already connected to another user, or you already connected a different one.")
		case errors.Is(err, users.ErrInvalidCredentials):
			h.logger.Warn("oauth login for inactive user", zap.String("provider", name.String()))
			h.renderError(c, http.StatusForbidden, "This account is disabled.")
		case errors.Is(err, users.ErrInvalidIdentity):
			h.logger.Warn("oauth profile without identifier", zap.String("provider", name.String()))
			h.renderError(c, http.StatusBadGateway, "The sign-in provider could not confirm your account.")
		default:
			h.logger.Error("failed to resolve oauth user", zap.String("provider", name.String()), zap.Error(err))
			h.renderError(c, http.StatusInternalServerError, "Signing in failed. Please try again.")
		}
		return
	}

	if !h.startSession(c, user) {
		return
	}
	h.logger.Info("oauth login completed",
		zap.String("provider", name.String()),
		zap.String("user_id", user.ID),
		zap.Bool("linked", linking),
	)
	fallback := dashboardPath
	if linking {
		fallback = settingsPath
	}
	c.Redirect(http.StatusFound, redirectTarget(safeNext(state.Next), fallback))
}

func (h *httpHandler) handleOAuthDisconnect(c *gin.Context) {
	user, _ := currentUser(c)
	provider, err := users.ParseProvider(c.Param("provider"))
	if err != nil {
		h.renderError(c, http.StatusNotFound, "Unknown sign-in provider.")
		return
	}

	err = h.accounts.DisconnectIdentity(c.Request.Context(), user, provider)
	switch {
	case errors.Is(err, users.ErrLastCredential):
		h.logger.Warn("disconnect refused", zap.String("user_id", user.ID), zap.String("provider", provider.String()))
		h.renderError(c, http.StatusConflict, "Set a password or connect another account before disconnecting this one.")
	case err != nil:
		h.logger.Error("failed to disconnect identity", zap.String("user_id", user.ID), zap.String("provider", provider.String()), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "The account could not be disconnected.")
	default:
		c.Redirect(http.StatusFound, settingsPath)
	}
}
