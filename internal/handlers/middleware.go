package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey        = "userId"
	tokenQueryParam  = "access_token"
	errMissingHeader = "missing Authorization header"
	errBadHeader     = "invalid Authorization header format"
	errBadToken      = "invalid or expired token"
)

// userIdMiddleware authenticates the request with a bearer token. WebSocket
// clients that cannot set headers may pass the token as ?access_token=.
func (h *Handler) userIdMiddleware(c *gin.Context) {
	token, msg := bearerToken(c)
	if msg != "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: msg})
		return
	}

	userId, err := h.services.ParseToken(token)
	if err != nil {
		if h.log != nil {
			h.log.Debugw("auth_token_rejected", "path", c.FullPath(), "err", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: errBadToken})
		return
	}

	c.Set(userIDKey, userId)
	c.Next()
}

// bearerToken extracts the token or returns the rejection message.
func bearerToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if q := c.Query(tokenQueryParam); q != "" && c.Request.Method == http.MethodGet {
			return q, ""
		}
		return "", errMissingHeader
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errBadHeader
	}
	return parts[1], ""
}
