package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type AuthHandlers struct {
	identity IdentitySource
}

func NewAuthHandlers(identity IdentitySource) *AuthHandlers {
	return &AuthHandlers{identity: identity}
}

// Me asks the backend who the stored token belongs to.
func (h *AuthHandlers) Me(c *gin.Context) {
	user, err := h.identity.Me(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"email":        user.Email,
		"display_name": user.DisplayName(),
	})
}
