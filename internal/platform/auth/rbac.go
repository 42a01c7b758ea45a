package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole admits callers holding any of roles; admins always pass.
// A request with no subject at all is rejected as unauthenticated.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	denied := "required role: " + strings.Join(roles, " or ")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			subject := SubjectFromContext(c.Request().Context())
			if subject.ID == "" && len(subject.Roles) == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if subject.HasRole(RoleAdmin) || slices.ContainsFunc(roles, subject.HasRole) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, denied)
		}
	}
}
