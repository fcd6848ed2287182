package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// contextKey for the authenticated username inside gin.
const ContextUserKey = "auth_user"

// Middleware returns a gin middleware enforcing bearer-token auth.
// When the service is disabled it passes everything through.
func Middleware(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Enabled() {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := s.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			status := http.StatusUnauthorized
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}

		c.Set(ContextUserKey, claims.Username)
		c.Next()
	}
}
