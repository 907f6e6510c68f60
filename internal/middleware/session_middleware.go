package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// SessionHeader carries the client's booking session identifier
	SessionHeader = "X-Session-ID"

	// SessionContextKey is the key used to store the session ID in Gin context
	SessionContextKey = "session_id"

	maxSessionIDLength = 128
)

// RequireSession rejects requests without a usable X-Session-ID header. The
// session ID owns every seat lock and booking made through it.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := strings.TrimSpace(c.GetHeader(SessionHeader))
		if sessionID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "missing_session",
				"message": SessionHeader + " header is required",
				"code":    "MISSING_SESSION_ID",
			})
			return
		}
		if len(sessionID) > maxSessionIDLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_session",
				"message": SessionHeader + " header is too long",
				"code":    "INVALID_SESSION_ID",
			})
			return
		}

		c.Set(SessionContextKey, sessionID)
		c.Next()
	}
}

// OptionalSession records X-Session-ID when the client sends one. A malformed
// header is still rejected.
func OptionalSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := strings.TrimSpace(c.GetHeader(SessionHeader))
		if sessionID == "" {
			c.Next()
			return
		}
		if len(sessionID) > maxSessionIDLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_session",
				"message": SessionHeader + " header is too long",
				"code":    "INVALID_SESSION_ID",
			})
			return
		}
		c.Set(SessionContextKey, sessionID)
		c.Next()
	}
}

// GetSessionID returns the session ID set by RequireSession or OptionalSession
func GetSessionID(c *gin.Context) string {
	return c.GetString(SessionContextKey)
}
