package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/farmquest/cache"
	"github.com/kasuganosora/farmquest/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSec = config.SecurityConfig{JWTSecret: "secret", JWTTTLH: time.Hour}

func setupTestCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewCache(config.CacheConfig{})
	require.NoError(t, err)
	return c
}

func newProtectedRouter(c cache.Cache) *gin.Engine {
	r := gin.New()
	r.Use(Auth(testSec, c))
	r.GET("/protected", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, GetUserID(ctx)+"|"+GetRole(ctx))
	})
	r.GET("/admin", RequireRole("admin"), func(ctx *gin.Context) {
		ctx.Status(http.StatusOK)
	})
	return r
}

func login(t *testing.T, c cache.Cache, userID, role string) string {
	t.Helper()
	token, err := GenerateToken(userID, role, testSec.JWTSecret, time.Hour)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), SessionKey(token), userID, time.Hour))
	return token
}

func get(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingAuthHeader(t *testing.T) {
	r := newProtectedRouter(setupTestCache(t))
	w := get(r, "/protected", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing token")
}

func TestAuth_NoBearer(t *testing.T) {
	r := newProtectedRouter(setupTestCache(t))
	assert.Equal(t, http.StatusUnauthorized, get(r, "/protected", "Token abc123").Code)
}

func TestAuth_InvalidToken(t *testing.T) {
	r := newProtectedRouter(setupTestCache(t))
	w := get(r, "/protected", "Bearer notavalidtoken")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid token")
}

func TestAuth_SessionExpired(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(c)

	// valid JWT but no session entry (logged out)
	token, err := GenerateToken("farmer1", "farmer", testSec.JWTSecret, time.Hour)
	require.NoError(t, err)

	w := get(r, "/protected", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "session expired")
}

func TestAuth_ValidTokenSetsIdentity(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(c)
	token := login(t, c, "farmer1", "farmer")

	w := get(r, "/protected", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "farmer1|farmer", w.Body.String())
}

func TestRequireRole(t *testing.T) {
	c := setupTestCache(t)
	r := newProtectedRouter(c)

	farmer := login(t, c, "farmer1", "farmer")
	admin := login(t, c, "admin", "admin")

	assert.Equal(t, http.StatusForbidden, get(r, "/admin", "Bearer "+farmer).Code)
	assert.Equal(t, http.StatusOK, get(r, "/admin", "Bearer "+admin).Code)
}

func TestVerifySession(t *testing.T) {
	c := setupTestCache(t)
	token := login(t, c, "farmer2", "farmer")

	claims, err := VerifySession(context.Background(), c, testSec.JWTSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "farmer2", claims.UserID)

	_, err = VerifySession(context.Background(), c, testSec.JWTSecret, "")
	assert.ErrorIs(t, err, ErrMissingToken)

	require.NoError(t, c.Del(context.Background(), SessionKey(token)))
	_, err = VerifySession(context.Background(), c, testSec.JWTSecret, token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestGetters_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", GetUserID(c))
	assert.Equal(t, "", GetRole(c))
	assert.Equal(t, "", GetToken(c))
}

func TestRecovery_CatchesPanic(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	r := gin.New()
	r.Use(TraceID())
	r.Use(Recovery(logger))
	r.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := get(r, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "trace_id")
}

func TestRecovery_NoPanic_PassesThrough(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	r := gin.New()
	r.Use(Recovery(logger))
	r.GET("/ok", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, get(r, "/ok", "").Code)
}

func TestLogger_StatusClasses(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	r := gin.New()
	r.Use(TraceID())
	r.Use(Logger(logger))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	assert.Equal(t, http.StatusOK, get(r, "/ping", "").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/bad", "").Code)
	assert.Equal(t, http.StatusInternalServerError, get(r, "/fail", "").Code)
}
