package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware extracts and decodes a bearer token in fixed order (query
// "token", cookie "x-session-token", Authorization: Bearer), and
// attaches userId/username to the gin.Context. Missing or invalid
// tokens abort the request with HTTP 401.
func Middleware(decoder TokenDecoder) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := ExtractToken(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authentication token"})
			return
		}
		claims, err := decoder.Decode(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("userId", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}
