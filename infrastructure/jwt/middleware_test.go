package jwt_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/jwt"
)

const secret = "test-secret"

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(jwt.Middleware(secret))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api", func(c *gin.Context) { c.String(http.StatusOK, jwt.Subject(c)) })
	return r
}

func TestMiddleware(t *testing.T) {
	valid, err := jwt.Sign(secret, "operator", gojwt.RegisteredClaims{
		ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	expired, err := jwt.Sign(secret, "operator", gojwt.RegisteredClaims{
		ExpiresAt: gojwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)
	wrongKey, err := jwt.Sign("other", "operator", gojwt.RegisteredClaims{})
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantBody string
	}{
		{name: "health bypasses auth", path: "/health", wantCode: http.StatusOK},
		{name: "missing header", path: "/api", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/api", header: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "expired", path: "/api", header: "Bearer " + expired, wantCode: http.StatusUnauthorized},
		{name: "wrong key", path: "/api", header: "Bearer " + wrongKey, wantCode: http.StatusUnauthorized},
		{name: "valid", path: "/api", header: "Bearer " + valid, wantCode: http.StatusOK, wantBody: "operator"},
	}

	router := newRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}
