package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/renderq/renderq/internal/secrets"
	"github.com/renderq/renderq/pkg/domain"
)

// Claims is the decoded claim set handed to downstream authorization.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Scopes    []string
	Raw       map[string]interface{}
}

// Validator verifies bearer tokens.
type Validator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// HMACValidator verifies HS256 tokens against a secret kept warm in a
// secrets.Cache. A failed secret fetch surfaces as AuthUnavailable so callers
// can answer 500 instead of 401.
type HMACValidator struct {
	secret    *secrets.Cache
	issuer    string
	clockSkew time.Duration
}

func NewHMACValidator(secret *secrets.Cache, issuer string, clockSkew time.Duration) *HMACValidator {
	return &HMACValidator{secret: secret, issuer: issuer, clockSkew: clockSkew}
}

func (v *HMACValidator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	key, err := v.secret.Get(ctx)
	if err != nil {
		return nil, &domain.AuthError{Reason: domain.AuthUnavailable}
	}

	opts := []jwt.ParserOption{jwt.WithLeeway(v.clockSkew)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(key), nil
	}, opts...)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !token.Valid {
		return nil, &domain.AuthError{Reason: domain.AuthInvalidSignature}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, &domain.AuthError{Reason: domain.AuthMalformedToken}
	}
	return buildClaims(claims), nil
}

func classifyParseError(err error) *domain.AuthError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return &domain.AuthError{Reason: domain.AuthExpiredSignature}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &domain.AuthError{Reason: domain.AuthInvalidSignature}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &domain.AuthError{Reason: domain.AuthMalformedToken}
	default:
		// Issuer mismatch, not-yet-valid and every other verification failure
		// collapses into the invalid-signature reason to avoid leaking detail.
		return &domain.AuthError{Reason: domain.AuthInvalidSignature}
	}
}

func buildClaims(claims jwt.MapClaims) *Claims {
	result := &Claims{
		Subject: getStringClaim(claims, "sub"),
		Issuer:  getStringClaim(claims, "iss"),
		Raw:     claims,
	}
	switch aud := claims["aud"].(type) {
	case string:
		result.Audience = []string{aud}
	case []interface{}:
		for _, a := range aud {
			if s, ok := a.(string); ok {
				result.Audience = append(result.Audience, s)
			}
		}
	}
	if exp, ok := claims["exp"].(float64); ok {
		result.ExpiresAt = time.Unix(int64(exp), 0)
	}
	if iat, ok := claims["iat"].(float64); ok {
		result.IssuedAt = time.Unix(int64(iat), 0)
	}
	if scope, ok := claims["scope"].(string); ok {
		result.Scopes = strings.Fields(scope)
	}
	return result
}

func getStringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ExtractBearer pulls the credential out of an Authorization header value.
// The header must be exactly two space-separated tokens with the first equal
// to "bearer", case-insensitively.
func ExtractBearer(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", &domain.AuthError{Reason: domain.AuthMissingToken}
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") ||
		parts[1] == "" || strings.ContainsAny(parts[1], " \t") {
		return "", &domain.AuthError{Reason: domain.AuthMalformedToken}
	}
	return parts[1], nil
}
