package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminAuth enforces the admin bearer token. Missing, malformed, expired
// and bad-signature tokens all get the same response body so nothing leaks
// about why a token was rejected.
func AdminAuth(g *Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		claims, err := g.Verify(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set("claims", claims)
		c.Next()
	}
}
