package middleware

import (
	"github.com/labstack/echo/v4"
)

var apiHeaders = [...]struct{ name, value string }{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Referrer-Policy", "no-referrer"},
	// claim and caregiver data differ per caller and must not be cached
	{"Cache-Control", "no-store"},
}

// SecurityHeaders sets the headers every JSON response carries and marks
// responses as varying by Authorization.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, hdr := range apiHeaders {
				h.Set(hdr.name, hdr.value)
			}
			h.Add(echo.HeaderVary, echo.HeaderAuthorization)
			return next(c)
		}
	}
}
