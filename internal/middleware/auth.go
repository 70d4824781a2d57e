package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/renderq/renderq/internal/auth"
	"github.com/renderq/renderq/internal/metrics"
	"github.com/renderq/renderq/pkg/domain"
)

const claimsKey = "userClaims"

// AuthMiddleware verifies the bearer token before any handler runs. Auth
// failures answer 401 with the classified reason; a secret-store outage
// answers 500 so clients can tell their token is not at fault.
func AuthMiddleware(validator auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearer(c.GetHeader("Authorization"))
		if err != nil {
			abortAuth(c, err)
			return
		}
		claims, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			abortAuth(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the validated claims stored by AuthMiddleware.
func ClaimsFrom(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

func abortAuth(c *gin.Context, err error) {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		metrics.AuthFailuresTotal.WithLabelValues(string(authErr.Reason)).Inc()
		c.AbortWithStatusJSON(authErr.HTTPStatus(), gin.H{"error": authErr.Error()})
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}
