package middlewares

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmined/padsync/internal/server/handlers/api"
)

const HeaderSession = "X-Padsync-Session"

type TokenAuthConfig struct {
	Token string
}

// TokenAuth checks a bearer token in the Authorization header or the `token` query
// parameter. An empty token disables the check.
func TokenAuth(config TokenAuthConfig) gin.HandlerFunc {
	if config.Token == "" {
		slog.Info("auth disabled")
		return func(c *gin.Context) {
			c.Next()
		}
	}
	slog.Info("auth enabled")

	want := []byte(config.Token)
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			slog.Debug("invalid auth token", "ip", c.ClientIP(), "path", c.FullPath())
			api.AbortWithError(c, http.StatusUnauthorized, api.CodeUnauthorized, errors.New("unauthorized"))
			return
		}

		c.Set("authenticated", true)
		c.Next()
	}
}

// SessionID returns the session that originated a write request, if the client sent one.
func SessionID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(HeaderSession))
}
