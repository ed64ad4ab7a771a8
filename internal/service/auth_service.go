package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pulseworks/pulse-api/internal/models"
	appErrors "github.com/pulseworks/pulse-api/pkg/errors"
)

// AuthConfig defines token verification settings. Identity is issued by
// an external provider; this service only verifies what it presents.
type AuthConfig struct {
	Secret string
	Issuer string
}

// AuthService validates bearer tokens minted by the identity provider.
type AuthService struct {
	config AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(config AuthConfig) *AuthService {
	return &AuthService{config: config}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if s.config.Issuer != "" {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer != s.config.Issuer {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token issuer")
		}
	}

	return claims, nil
}
