package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseworks/pulse-api/internal/models"
	"github.com/pulseworks/pulse-api/internal/service"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, role models.UserRole) string {
	t.Helper()
	claims := &models.JWTClaims{
		UserID: "user-1",
		Email:  "user@example.com",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func authRouter(authSvc *service.AuthService, protect gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/probe", protect, func(c *gin.Context) {
		if _, exists := c.Get(ContextUserKey); exists {
			c.String(http.StatusOK, "authed")
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	return router
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	authSvc := service.NewAuthService(service.AuthConfig{Secret: testSecret})
	router := authRouter(authSvc, JWT(authSvc))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAcceptsValidToken(t *testing.T) {
	authSvc := service.NewAuthService(service.AuthConfig{Secret: testSecret})
	router := authRouter(authSvc, JWT(authSvc))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, models.RoleMember))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "authed", w.Body.String())
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	authSvc := service.NewAuthService(service.AuthConfig{Secret: "other-secret"})
	router := authRouter(authSvc, JWT(authSvc))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, models.RoleMember))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalJWTPassesAnonymous(t *testing.T) {
	authSvc := service.NewAuthService(service.AuthConfig{Secret: testSecret})
	router := authRouter(authSvc, OptionalJWT(authSvc))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())
}

func TestOptionalJWTAttachesClaimsWhenPresent(t *testing.T) {
	authSvc := service.NewAuthService(service.AuthConfig{Secret: testSecret})
	router := authRouter(authSvc, OptionalJWT(authSvc))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, models.RoleMember))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "authed", w.Body.String())
}
