package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/knowledge-indexer/internal/http/response"
	"github.com/yungbote/knowledge-indexer/internal/pkg/ctxutil"
	"github.com/yungbote/knowledge-indexer/internal/platform/logger"
	"github.com/yungbote/knowledge-indexer/internal/services"
)

const (
	HeaderServiceKey     = "x-internal-service-key"
	HeaderProjectID      = "x-project-id"
	HeaderOrganizationID = "x-organization-id"
)

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("Middleware", "AuthMiddleware"), authService: authService}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		creds := services.Credentials{
			Bearer:         bearerToken(c),
			ServiceKey:     strings.TrimSpace(c.GetHeader(HeaderServiceKey)),
			ProjectID:      strings.TrimSpace(c.GetHeader(HeaderProjectID)),
			OrganizationID: strings.TrimSpace(c.GetHeader(HeaderOrganizationID)),
		}
		p, err := am.authService.Authenticate(creds)
		if err != nil {
			am.log.Debug("request rejected", "path", c.Request.URL.Path, "error", err)
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
