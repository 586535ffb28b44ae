package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/cache"
	"github.com/kasuganosora/farmquest/config"
)

const (
	UserIDKey = "user_id"
	RoleKey   = "role"
	TokenKey  = "token"
)

var (
	ErrMissingToken   = errors.New("missing token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionExpired = errors.New("session expired")
)

// SessionKey is the cache key holding a live login session.
func SessionKey(token string) string { return "session:" + token }

// VerifySession checks the JWT signature and that the session has not been
// logged out. SSE and WebSocket handlers use it with the ?token= parameter.
func VerifySession(ctx context.Context, c cache.Cache, secret, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims, err := ParseToken(token, secret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	exists, err := c.Exists(cacheCtx, SessionKey(token))
	if err != nil || !exists {
		return nil, ErrSessionExpired
	}
	return claims, nil
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := BearerToken(ctx)
		claims, err := VerifySession(ctx.Request.Context(), c, sec.JWTSecret, token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		ctx.Set(UserIDKey, claims.UserID)
		ctx.Set(RoleKey, claims.Role)
		ctx.Set(TokenKey, token)
		ctx.Next()
	}
}

// RequireRole aborts with 403 unless Auth stored the given role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// GetUserID retrieves the authenticated user ID from the Gin context.
func GetUserID(c *gin.Context) string { return c.GetString(UserIDKey) }

// GetRole retrieves the authenticated user's role from the Gin context.
func GetRole(c *gin.Context) string { return c.GetString(RoleKey) }

// GetToken retrieves the raw bearer token accepted by Auth.
func GetToken(c *gin.Context) string { return c.GetString(TokenKey) }
