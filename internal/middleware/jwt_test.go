package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/chat-relay/internal/auth"
	"github.com/stretchr/testify/require"
)

func TestJWTAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := auth.NewTokenService("secret", time.Hour)
	valid, err := tokens.Issue("u1")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", JWTAuth(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, "u1"},
		{"missing", "", http.StatusUnauthorized, `{"error":"unauthorized"}`},
		{"wrong scheme", "Token " + valid, http.StatusUnauthorized, `{"error":"unauthorized"}`},
		{"bad token", "Bearer nope", http.StatusUnauthorized, `{"error":"unauthorized"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, tt.body, rec.Body.String())
		})
	}
}
