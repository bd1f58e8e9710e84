package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by the auth middleware.
const (
	ctxStaffID = "staff_id"
	ctxRole    = "role"
)

var (
	errNoBearer      = errors.New("missing bearer token")
	errInvalidToken  = errors.New("invalid token")
	errInvalidClaims = errors.New("invalid claims")
)

// JWTAuth validates a Bearer staff token and stores its subject and role in
// the context.  Requests without a valid token get 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := bearerClaims(c, secret)
			if err != nil {
				return unauthorized(c, err)
			}
			setIdentity(c, claims)
			return next(c)
		}
	}
}

// OptionalJWT is JWTAuth for routes the kiosk may call anonymously.  A
// missing header passes through; a present but invalid token is still
// rejected.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := bearerClaims(c, secret)
			switch {
			case errors.Is(err, errNoBearer):
				return next(c)
			case err != nil:
				return unauthorized(c, err)
			}
			setIdentity(c, claims)
			return next(c)
		}
	}
}

func bearerClaims(c echo.Context, secret string) (jwt.MapClaims, error) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil, errNoBearer
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return nil, errInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errInvalidClaims
	}
	if sub, _ := claims["sub"].(string); sub == "" {
		return nil, errInvalidClaims
	}
	return claims, nil
}

func setIdentity(c echo.Context, claims jwt.MapClaims) {
	c.Set(ctxStaffID, claims["sub"])
	c.Set(ctxRole, claims["role"])
}

func unauthorized(c echo.Context, err error) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": err.Error()})
}
