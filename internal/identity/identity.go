// Package identity resolves the calling user from request headers.
//
// The API trusts an upstream gateway to authenticate callers and forward
// the resulting user ID in the X-Actor-ID header. This package only
// extracts that identity and makes it available to handlers; credential
// verification happens before traffic reaches this service.
package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderActorID carries the authenticated caller's user ID.
	HeaderActorID = "X-Actor-ID"

	// ContextKeyActorID is the gin context key holding the caller identity.
	ContextKeyActorID = "actorID"
)

// Middleware extracts the caller identity from the request headers and
// stores it in the gin context. Requests without an identity pass through;
// use Require on routes that need one.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := strings.TrimSpace(c.GetHeader(HeaderActorID)); actor != "" {
			c.Set(ContextKeyActorID, actor)
		}
		c.Next()
	}
}

// Require rejects requests that carry no caller identity.
func Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(ContextKeyActorID); !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "caller identity required. Include the X-Actor-ID header.",
			})
			return
		}
		c.Next()
	}
}

// Actor returns the caller's user ID, or "" if the request is anonymous.
func Actor(c *gin.Context) string {
	return c.GetString(ContextKeyActorID)
}
