package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/renderq/renderq/internal/auth"
	"github.com/renderq/renderq/pkg/domain"
)

type stubValidator struct {
	claims *auth.Claims
	err    error
}

func (s *stubValidator) Validate(context.Context, string) (*auth.Claims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

func newAuthRouter(v auth.Validator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(v))
	r.GET("/protected", func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "claims missing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"subject": claims.Subject})
	})
	return r
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	r := newAuthRouter(&stubValidator{claims: &auth.Claims{Subject: "client-1"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		validator  auth.Validator
		wantStatus int
	}{
		{
			"missing header",
			"",
			&stubValidator{claims: &auth.Claims{}},
			http.StatusUnauthorized,
		},
		{
			"malformed header",
			"Token abc",
			&stubValidator{claims: &auth.Claims{}},
			http.StatusUnauthorized,
		},
		{
			"expired token",
			"Bearer expired",
			&stubValidator{err: &domain.AuthError{Reason: domain.AuthExpiredSignature}},
			http.StatusUnauthorized,
		},
		{
			"invalid signature",
			"Bearer forged",
			&stubValidator{err: &domain.AuthError{Reason: domain.AuthInvalidSignature}},
			http.StatusUnauthorized,
		},
		{
			"auth service unavailable",
			"Bearer anything",
			&stubValidator{err: &domain.AuthError{Reason: domain.AuthUnavailable}},
			http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newAuthRouter(tt.validator)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}
