package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey = "userId"

	// browsers cannot set headers on a websocket handshake
	accessTokenParam = "access_token"
)

// userIdMiddleware authenticates the app user by its JWT and stores the id under userIDKey.
func (h *Handler) userIdMiddleware(c *gin.Context) {
	token, msg := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
		return
	}

	id, err := h.services.ParseToken(token)
	if err != nil {
		if h.log != nil {
			h.log.Debugw("auth_token_rejected", "path", c.FullPath(), "err", err)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	c.Set(userIDKey, id)
	c.Next()
}

// bearerToken reads the token from the Authorization header, falling back to
// the access_token query parameter. On failure it returns the reason.
func bearerToken(c *gin.Context) (string, string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if q := c.Query(accessTokenParam); q != "" {
			return q, ""
		}
		return "", "missing Authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", "invalid Authorization header format"
	}
	return token, ""
}

// userID returns the id stored by userIdMiddleware.
func userID(c *gin.Context) (int, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok
}
