// Package auth verifies bearer JWTs and exposes the caller's user id.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ContextKey is where the middleware stores the parsed token.
const ContextKey = "user"

var supportedAlgorithms = map[string]jwt.SigningMethod{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// ValidateAlgorithm normalizes a configured HMAC algorithm name.
func ValidateAlgorithm(alg string) (string, error) {
	alg = strings.ToUpper(strings.TrimSpace(alg))
	if alg == "" {
		return "HS256", nil
	}
	if _, ok := supportedAlgorithms[alg]; !ok {
		return "", fmt.Errorf("unsupported jwt algorithm: %s", alg)
	}
	return alg, nil
}

// JWTMiddleware rejects requests without a valid bearer token unless skipper
// returns true.
func JWTMiddleware(secret, algorithm string, skipper middleware.Skipper) echo.MiddlewareFunc {
	alg, err := ValidateAlgorithm(algorithm)
	if err != nil {
		alg = "HS256"
	}
	return echojwt.WithConfig(echojwt.Config{
		Skipper:       skipper,
		SigningKey:    []byte(secret),
		SigningMethod: alg,
		ContextKey:    ContextKey,
		NewClaimsFunc: func(echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
		ErrorHandler: func(_ echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing token").SetInternal(err)
		},
	})
}

// UserIDFromContext returns the subject of the verified token.
func UserIDFromContext(c echo.Context) (string, error) {
	token, ok := c.Get(ContextKey).(*jwt.Token)
	if !ok || token == nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing token")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject").SetInternal(err)
	}
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
	}
	return sub, nil
}

// GenerateToken signs a token for userID valid for expiresIn.
func GenerateToken(userID, secret, algorithm string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, errors.New("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, errors.New("token expiry must be positive")
	}
	alg, err := ValidateAlgorithm(algorithm)
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now()
	expiresAt := now.Add(expiresIn)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(supportedAlgorithms[alg], claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}
