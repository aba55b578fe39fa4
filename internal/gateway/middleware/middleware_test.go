package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"warehouse-system/internal/database/models"
	"warehouse-system/internal/utils"
)

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAndRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zap.NewNop()))
	r.GET("/me", JWTAuth(), func(c *gin.Context) {
		claims, ok := Claims(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Email)
	})
	r.GET("/admin", JWTAuth(), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/unguarded", RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	manager, _, err := utils.GenerateToken(7, "m@example.com", string(models.RoleManager), time.Hour)
	require.NoError(t, err)
	admin, _, err := utils.GenerateToken(1, "a@example.com", string(models.RoleAdmin), time.Hour)
	require.NoError(t, err)
	expired, _, err := utils.GenerateToken(1, "a@example.com", string(models.RoleAdmin), -time.Minute)
	require.NoError(t, err)

	rec := serve(r, http.MethodGet, "/me", manager)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "m@example.com", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", expired).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin", manager).Code)
	assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/admin", admin).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/unguarded", "").Code)
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	_, err := RateLimit("lots")
	assert.Error(t, err)

	limit, err := RateLimit("2-M")
	require.NoError(t, err)
	r := gin.New()
	r.Use(limit)
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/", "").Code)
	rec := serve(r, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Too many requests"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS())
	r.OPTIONS("/x", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	rec := serve(r, http.MethodOptions, "/x", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
