package auth

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// APIClaims represents the claims in our JWT token
type APIClaims struct {
	Subject string `json:"sub_name,omitempty"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

const apiRole = "api"

// secret returns the signing key. BUZZY_JWT_SECRET must be set in
// production; the fallback exists for local development only.
func secret() []byte {
	if s := os.Getenv("BUZZY_JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("buzzy-dev-secret")
}

// GenerateAPIToken generates a JWT token for the history API.
func GenerateAPIToken(subject string) (string, error) {
	claims := &APIClaims{
		Subject: subject,
		Role:    apiRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*APIClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &APIClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret(), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*APIClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}

// RequireAPIToken is echo middleware that rejects requests without a
// valid bearer token.
func RequireAPIToken() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "bearer token required")
			}

			claims, err := ValidateToken(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			if claims.Role != apiRole {
				return echo.NewHTTPError(http.StatusForbidden, "token not valid for this API")
			}

			c.Set("auth_subject", claims.Subject)
			return next(c)
		}
	}
}
