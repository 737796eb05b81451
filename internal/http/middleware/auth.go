// Package middleware holds the gin.HandlerFunc chain shared by every route:
// request identity, CORS, and structured request logging.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ridgeline-labs/review-orchestrator/internal/logger"
)

// ServiceClaims is the bearer token's payload: an actor name used to
// attribute admin writes (human_decision), not a user identity system.
type ServiceClaims struct {
	Actor string `json:"actor"`
	jwt.RegisteredClaims
}

// Auth validates a service-level bearer token against a single shared
// secret (spec.md's Non-goals exclude authentication as a product
// feature; this exists only so admin writes have an actor to attribute,
// per SPEC_FULL.md §4). Permissive by design: any token signed with the
// configured secret is accepted, there is no per-actor authorization.
type Auth struct {
	log    *logger.Logger
	secret []byte
}

func NewAuth(log *logger.Logger, secret string) *Auth {
	return &Auth{log: log.With("component", "AuthMiddleware"), secret: []byte(secret)}
}

// RequireServiceToken rejects requests without a valid bearer token. If no
// secret is configured, auth is a no-op (local/dev convenience) and the
// actor defaults to "anonymous".
func (a *Auth) RequireServiceToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(a.secret) == 0 {
			c.Set("actor", "anonymous")
			c.Next()
			return
		}

		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing bearer token", "code": "unauthorized"},
			})
			return
		}

		claims := &ServiceClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			a.log.Debug("rejected service token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "invalid or expired token", "code": "unauthorized"},
			})
			return
		}

		actor := claims.Actor
		if actor == "" {
			actor = claims.Subject
		}
		if actor == "" {
			actor = "service"
		}
		c.Set("actor", actor)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if q := c.Query("token"); q != "" {
		return q
	}
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return ""
}
