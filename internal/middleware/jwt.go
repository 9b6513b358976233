package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// JWTAuth validates a Bearer access token signed with secret (HS256) and
// stores the customer ID and role claims in the request context.  The
// subject claim carries the numeric customer ID; tokens without one are
// rejected.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				// reject anything but HMAC so a token cannot pick its own algorithm
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			id, err := subjectID(claims["sub"])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
			}

			c.Set(ctxCustomerID, id)
			c.Set(ctxRole, claims["role"])
			return next(c)
		}
	}
}

// subjectID accepts the subject as a JSON number or a decimal string.
func subjectID(v any) (uint64, error) {
	switch s := v.(type) {
	case float64:
		if s > 0 && s == float64(uint64(s)) {
			return uint64(s), nil
		}
	case string:
		if n, err := strconv.ParseUint(s, 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("unusable subject %v", v)
}
