package middleware

import (
	"net/http"
	"strings"

	"github.com/SocialGouv/champollion-go/internal/infrastructure/observability/logging"
	"github.com/SocialGouv/champollion-go/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
)

// InspectorKey is the gin context key holding the authenticated inspector's claims.
const InspectorKey = "inspector"

// InspectorAuthMiddleware requires a bearer token signed with jwtSecret. With
// an empty secret every request is let through.
func InspectorAuthMiddleware(jwtSecret string, logger *logging.ChanneledLogger) gin.HandlerFunc {
	if jwtSecret == "" {
		logger.Auth().Warn("JWT_SECRET is empty, inspector authentication is disabled")
	}
	return func(c *gin.Context) {
		if jwtSecret == "" {
			c.Next() // No secret set, allow access
			return
		}

		authHeader := c.GetHeader("Authorization")
		token := ""
		if len(authHeader) > 7 && strings.HasPrefix(authHeader, "Bearer ") {
			token = authHeader[7:]
		}
		// EventSource and WebSocket clients cannot set headers.
		if token == "" {
			token = c.Query("access_token")
		}

		claims, err := security.ValidateJWT(token, jwtSecret)
		if err != nil {
			logger.WithContext(logging.ChannelAuth, c.Request.Context()).Debug("Rejected inspector token",
				"path", c.Request.URL.Path, "error", err.Error())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		c.Set(InspectorKey, claims)
		c.Next()
	}
}
