package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	store store.UserStore
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		log:   logger,
	}
}

// LookupUser resolves a username to its public profile, which carries the
// id clients put in receiverId.
// GET /api/users?username=bob
func (h *UserHandlers) LookupUser(c *gin.Context) {
	username := strings.TrimSpace(c.Query("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, APIResponse{Message: "username query parameter is required"})
		return
	}

	user, err := h.store.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, APIResponse{Message: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("username", username).Msg("failed to look up user")
		c.JSON(http.StatusInternalServerError, APIResponse{Message: "internal server error"})
		return
	}

	profile := userResponse(user)
	profile.Email = ""

	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "User fetched",
		Data:    profile,
	})
}
