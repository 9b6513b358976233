package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trainer-booking/internal/utils"
)

// AdminKeyHeader carries the operator API key.
const AdminKeyHeader = "X-Admin-Key"

// AdminKey guards the operator endpoints with a shared key whose bcrypt
// hash is configured.  An empty hash turns the endpoints off.
func AdminKey(hash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if hash == "" {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
			}
			key := c.Request().Header.Get(AdminKeyHeader)
			if key == "" || !utils.VerifyKey(hash, key) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid admin key"})
			}
			c.Set(ctxRole, RoleAdmin)
			return next(c)
		}
	}
}
