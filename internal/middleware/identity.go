package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medscribe/medscribe-backend/internal/platform/logger"
)

const (
	// UserIDHeader is set by the gateway after it authenticates the caller.
	UserIDHeader = "X-User-ID"
	userIDKey    = "user_id"
)

// IdentityMiddleware resolves the caller's identity from the gateway header.
// This service trusts its edge; requests without a valid id never reach the
// handlers.
type IdentityMiddleware struct {
	log *logger.Logger
}

func NewIdentityMiddleware(log *logger.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{log: log.With("middleware", "Identity")}
}

func (m *IdentityMiddleware) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserIDHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"message": "missing " + UserIDHeader + " header",
				"code":    "unauthenticated",
			}})
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"message": "invalid " + UserIDHeader + " header",
				"code":    "unauthenticated",
			}})
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

// UserID pulls the caller id set by RequireUser.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
