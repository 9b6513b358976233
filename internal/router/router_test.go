package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/booking"
	"github.com/iliyamo/trainer-booking/internal/handler"
	"github.com/iliyamo/trainer-booking/internal/metrics"
	"github.com/iliyamo/trainer-booking/internal/model"
)

type nilBooker struct{}

func (nilBooker) Book(context.Context, booking.BookRequest) (*booking.BookResult, error) {
	return nil, nil
}

func (nilBooker) HoldSlot(context.Context, booking.HoldRequest) (*model.SlotHold, error) {
	return nil, nil
}

func (nilBooker) Availability(context.Context, string, int, int, bool) (*booking.MonthAvailability, error) {
	return nil, nil
}

func (nilBooker) QuoteCancellation(context.Context, uint64, string) (*booking.CancellationQuote, error) {
	return nil, nil
}

func (nilBooker) Cancel(context.Context, booking.CancelRequest) (*booking.CancelResult, error) {
	return nil, nil
}

func TestRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg).ObserveLock("acquired")

	e := echo.New()
	RegisterRoutes(e, &handler.HealthHandler{}, reg)
	RegisterCustomer(e, handler.NewBookingHandler(nilBooker{}, zap.NewNop()), "secret", nil)
	RegisterAdmin(e, handler.NewAdminHandler(nil, nil, nil, zap.NewNop()), "")

	registered := map[string]bool{}
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"POST /v1/reservations",
		"POST /v1/slots/hold",
		"GET /v1/reservations/:id/cancellation-quote",
		"POST /v1/reservations/:id/cancel",
		"GET /v1/admin/transactions",
		"GET /v1/admin/transactions/stats",
		"GET /v1/admin/retries/stats",
		"GET /v1/admin/cancellations",
		"POST /v1/admin/cancellations/:id/approve",
		"POST /v1/admin/cancellations/:id/reject",
	} {
		assert.True(t, registered[want], want)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "booking_lock_acquisitions_total")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/reservations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/transactions", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "admin endpoints are off without a key hash")
}
