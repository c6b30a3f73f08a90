package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, role string, expires time.Time) string {
	t.Helper()
	claims := tokenClaims{
		Role:      role,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7",
			Issuer:    "nitz",
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newGuardedRouter(verifier *TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.PUT("/edit", RequireRole(verifier, []string{"moderator", "admin"}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestRequireRole(t *testing.T) {
	router := newGuardedRouter(NewTokenVerifier(testSecret, "nitz"))
	cases := []struct {
		name   string
		header string
		status int
	}{
		{"moderator allowed", "Bearer " + signToken(t, testSecret, "moderator", time.Now().Add(time.Hour)), http.StatusNoContent},
		{"user forbidden", "Bearer " + signToken(t, testSecret, "user", time.Now().Add(time.Hour)), http.StatusForbidden},
		{"expired token", "Bearer " + signToken(t, testSecret, "admin", time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", "admin", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"missing token", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPut, "/edit", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestRequireRoleDisabledWithoutSecret(t *testing.T) {
	router := newGuardedRouter(NewTokenVerifier("", ""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/edit", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected open route, got %d", rec.Code)
	}
}
