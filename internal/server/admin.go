package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/linkdeck/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type adminUserRow struct {
	User          users.User
	IdentityCount int
}

func (h *httpHandler) handleAdminUsers(c *gin.Context) {
	ctx := c.Request.Context()
	accounts, err := h.accounts.ListUsers(ctx)
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Users could not be loaded.")
		return
	}

	rows := make([]adminUserRow, 0, len(accounts))
	for _, account := range accounts {
		linked, err := h.accounts.ListIdentities(ctx, account.ID)
		if err != nil {
			h.logger.Error("failed to list identities", zap.String("user_id", account.ID), zap.Error(err))
			h.renderError(c, http.StatusInternalServerError, "Users could not be loaded.")
			return
		}
		rows = append(rows, adminUserRow{User: account, IdentityCount: len(linked)})
	}

	data := pageData(c, "Users")
	data["rows"] = rows
	c.HTML(http.StatusOK, "admin_users.html", data)
}

func (h *httpHandler) handleAdminUser(c *gin.Context) {
	ctx := c.Request.Context()
	account, err := h.accounts.GetUser(ctx, c.Param("id"))
	if errors.Is(err, users.ErrUserNotFound) {
		h.renderError(c, http.StatusNotFound, "No such user.")
		return
	}
	if err != nil {
		h.logger.Error("failed to load user", zap.String("user_id", c.Param("id")), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "The user could not be loaded.")
		return
	}
	linked, err := h.accounts.ListIdentities(ctx, account.ID)
	if err != nil {
		h.logger.Error("failed to list identities", zap.String("user_id", account.ID), zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "The user could not be loaded.")
		return
	}

	data := pageData(c, account.Username)
	data["account"] = account
	data["identities"] = linked
	c.HTML(http.StatusOK, "admin_user.html", data)
}
