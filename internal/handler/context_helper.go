package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/pulseworks/pulse-api/internal/middleware"
	"github.com/pulseworks/pulse-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// identityFromContext returns the authenticated identity or nil for an
// anonymous caller.
func identityFromContext(c *gin.Context) *string {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		return nil
	}
	id := claims.UserID
	return &id
}
