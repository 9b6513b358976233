package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/logger"
)

// RequestIDHeader is echoed back on every response.
const RequestIDHeader = "X-Request-ID"

var skipLogPaths = map[string]bool{"/health": true, "/metrics": true}

// RequestLogger writes one structured line per request.  Server errors log
// at error level and client errors at warn.
func RequestLogger(l *zap.Logger) echo.MiddlewareFunc {
	l = logger.Named(l, "http")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if skipLogPaths[req.URL.Path] {
				return next(c)
			}
			requestID := req.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(RequestIDHeader, requestID)

			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo write the response so the status below is final
				c.Error(err)
			}

			status := c.Response().Status
			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.String("path", req.URL.Path),
				zap.Int("status", status),
				zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
				zap.String("client_ip", c.RealIP()),
				zap.String("principal", principal(c)),
				zap.Int64("response_size", c.Response().Size),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			switch {
			case status >= 500:
				l.Error("HTTP request failed", fields...)
			case status >= 400:
				l.Warn("HTTP request client error", fields...)
			default:
				l.Info("HTTP request completed", fields...)
			}
			return nil
		}
	}
}
