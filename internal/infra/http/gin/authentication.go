package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"bazaar/internal/app/identity"
)

const principalContextKey = "bazaar.principal"

// PrincipalResolver turns a bearer token into the caller's identity.
type PrincipalResolver interface {
	Principal(token string) (identity.Principal, error)
}

type AuthMiddleware struct {
	Resolver PrincipalResolver
	Logger   *slog.Logger
}

// Handle attaches the principal when the request carries a valid token. Websocket clients may
// pass it as the access_token query parameter. Anonymous requests continue and are rejected by
// the handlers that need a caller.
func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" || m.Resolver == nil {
		c.Next()
		return
	}
	p, err := m.Resolver.Principal(token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	c.Set(principalContextKey, p)
	c.Next()
}

func currentPrincipal(c *gin.Context) (identity.Principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return identity.Principal{}, false
	}
	p, ok := val.(identity.Principal)
	return p, ok && p.Authenticated()
}

// requireUser answers 401 when the request is anonymous.
func requireUser(c *gin.Context) (identity.Principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return identity.Principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
