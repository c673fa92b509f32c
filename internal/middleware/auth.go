package middleware

import (
	"net/http"
	"strings"

	"wallet_ledger/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const userIDKey = "userID"

type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// JWTAuth rejects requests without a valid bearer token and stores the
// caller's user id on the context.
func JWTAuth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "fail", "error": "missing or invalid Authorization header"})
			return
		}
		claims, err := parser.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "fail", "error": "invalid or expired token"})
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}
