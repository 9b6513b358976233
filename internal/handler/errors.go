package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/apperr"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindLockTimeout:
		return http.StatusServiceUnavailable
	case apperr.KindExternal:
		return http.StatusBadGateway
	case apperr.KindTransactionFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON.  Unclassified errors are logged and
// reported as a generic 500 so internals never reach the client.
func respondError(c echo.Context, l *zap.Logger, err error) error {
	e, ok := apperr.As(err)
	if !ok {
		l.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	status := statusFor(e.Kind)
	body := echo.Map{"error": e.Message, "code": e.Kind}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	if e.Kind == apperr.KindTransactionFailed || e.Kind == apperr.KindPartialRollback {
		if cause, ok := apperr.As(e.Err); ok {
			body["cause"] = echo.Map{"code": cause.Kind, "error": cause.Message}
		}
	}
	if status >= 500 {
		l.Error("request failed", zap.String("path", c.Path()), zap.Int("status", status), zap.Error(err))
	}
	if e.Kind == apperr.KindLockTimeout {
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(status, body)
}
