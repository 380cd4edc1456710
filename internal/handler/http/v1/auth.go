package v1

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/incident_reporting_system/internal/apperr"
	"github.com/shenikar/incident_reporting_system/internal/service"
)

// ClientIPMiddleware сохраняет IP клиента в контексте запроса для журнала действий
func ClientIPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(service.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// AuthMiddleware - middleware для аутентификации по токену доступа (Authorization: Bearer)
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := h.logger.WithField("path", c.FullPath())

		authHeader := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			h.respondError(c, log, apperr.Unauthenticated("access token required"))
			return
		}

		user, err := h.users.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.respondError(c, log, err)
			return
		}

		c.Set(actorKey, user)
		c.Set(tokenKey, token)
		c.Next()
	}
}
