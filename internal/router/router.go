// Package router wires handlers and middleware onto the Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/trainer-booking/internal/handler"
	"github.com/iliyamo/trainer-booking/internal/middleware"
)

// RegisterRoutes registers the unauthenticated probes and the Prometheus
// scrape endpoint.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler, g prometheus.Gatherer) {
	e.GET("/health", h.Health)
	e.GET("/ready", h.Ready)
	if g != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
}

// RegisterPublic registers read-only endpoints guests may call.
func RegisterPublic(e *echo.Echo, b *handler.BookingHandler) {
	e.GET("/v1/trainers/:id/availability", b.Availability)
}

// RegisterCustomer registers the booking endpoints.  They need a customer
// JWT; limit, when non-nil, runs after authentication so buckets can be
// keyed by customer.
func RegisterCustomer(e *echo.Echo, b *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	mw := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	}
	if limit != nil {
		mw = append(mw, limit)
	}
	g := e.Group("/v1", mw...)
	g.POST("/slots/hold", b.Hold)
	g.POST("/reservations", b.Book)
	g.GET("/reservations/:id/cancellation-quote", b.CancellationQuote)
	g.POST("/reservations/:id/cancel", b.Cancel)
}

// RegisterAdmin registers the operator endpoints behind the admin key.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, adminKeyHash string) {
	g := e.Group("/v1/admin", middleware.AdminKey(adminKeyHash))
	g.GET("/transactions", a.ListTransactions)
	g.GET("/transactions/stats", a.TransactionStats)
	g.GET("/retries/stats", a.RetryStats)
	g.GET("/cancellations", a.ListCancellations)
	g.POST("/cancellations/:id/approve", a.ApproveCancellation)
	g.POST("/cancellations/:id/reject", a.RejectCancellation)
}
