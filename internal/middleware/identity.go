package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth and AdminKey.
const (
	ctxCustomerID = "customer_id"
	ctxRole       = "role"
)

// Roles carried in the JWT "role" claim.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// CustomerID returns the authenticated customer's ID.  ok is false for
// anonymous requests and for admin requests.
func CustomerID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxCustomerID).(uint64)
	return id, ok && id != 0
}

// principal names the caller for rate limiting and request logs.
func principal(c echo.Context) string {
	if id, ok := CustomerID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	if role, _ := c.Get(ctxRole).(string); role == RoleAdmin {
		return RoleAdmin
	}
	return "anon"
}
