package delivery

import (
	"net/http"
	"strings"

	authdomain "mailvault-backend/internal/auth/domain"
	"mailvault-backend/internal/auth/usecase"
	ingestdomain "mailvault-backend/internal/ingest/domain"

	"github.com/gin-gonic/gin"
)

const (
	contextSessionKey = "session"
	contextSourceKey  = "mailSource"
)

func AuthMiddleware(authUsecase usecase.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			// SSE clients cannot set headers from EventSource, allow a
			// token query parameter as a fallback.
			token = c.Query("token")
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		session, source, err := authUsecase.ResolveToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			c.Abort()
			return
		}

		c.Set(contextSessionKey, session)
		c.Set(contextSourceKey, source)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// SessionFromContext returns the authenticated session set by AuthMiddleware.
func SessionFromContext(c *gin.Context) *authdomain.Session {
	if v, ok := c.Get(contextSessionKey); ok {
		if session, ok := v.(*authdomain.Session); ok {
			return session
		}
	}
	return nil
}

// SourceFromContext returns the mail source bound to the authenticated session.
func SourceFromContext(c *gin.Context) ingestdomain.MailSource {
	if v, ok := c.Get(contextSourceKey); ok {
		if source, ok := v.(ingestdomain.MailSource); ok {
			return source
		}
	}
	return nil
}
