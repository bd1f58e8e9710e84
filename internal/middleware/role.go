package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Staff roles carried in the token's role claim.
const (
	RoleStaff   = "STAFF"
	RoleManager = "MANAGER"
)

// RequireRole rejects authenticated requests whose role claim is not one of
// roles.  It must run after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(ctxRole).(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "FORBIDDEN", "message": "role not allowed"})
			}
			return next(c)
		}
	}
}
