package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/booking"
	"github.com/iliyamo/trainer-booking/internal/logger"
	"github.com/iliyamo/trainer-booking/internal/model"
	"github.com/iliyamo/trainer-booking/internal/retry"
	"github.com/iliyamo/trainer-booking/internal/saga"
)

// TransactionHistory is implemented by repository.TransactionLogRepo.
type TransactionHistory interface {
	List(ctx context.Context, f saga.HistoryFilter) ([]saga.LogEntry, error)
	Since(ctx context.Context, t time.Time) ([]saga.LogEntry, error)
}

// RetryHistory is implemented by repository.RetryLogRepo.
type RetryHistory interface {
	Since(ctx context.Context, t time.Time) ([]retry.LogEntry, error)
}

// CancellationReviewer is implemented by booking.Service.
type CancellationReviewer interface {
	PendingCancellations(ctx context.Context) ([]booking.PendingCancellation, error)
	ApproveCancellation(ctx context.Context, d booking.ReviewDecision) (*booking.CancelResult, error)
	RejectCancellation(ctx context.Context, d booking.ReviewDecision) error
}

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
	maxStatsDays        = 365
)

// AdminHandler serves the operator endpoints behind the admin key.
type AdminHandler struct {
	Transactions  TransactionHistory
	Retries       RetryHistory
	Cancellations CancellationReviewer
	Now           func() time.Time
	log           *zap.Logger
}

func NewAdminHandler(tx TransactionHistory, rt RetryHistory, cr CancellationReviewer, l *zap.Logger) *AdminHandler {
	return &AdminHandler{Transactions: tx, Retries: rt, Cancellations: cr, Now: time.Now, log: logger.Named(l, "admin")}
}

// ListTransactions handles GET /v1/admin/transactions?status=&from=&to=&limit=.
// from and to accept RFC 3339 timestamps or plain dates.
func (h *AdminHandler) ListTransactions(c echo.Context) error {
	f := saga.HistoryFilter{Limit: defaultHistoryLimit}
	if s := c.QueryParam("status"); s != "" {
		f.Status = saga.Status(s)
		if !f.Status.Terminal() {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be COMMITTED, ROLLED_BACK or PARTIAL_ROLLBACK"})
		}
	}
	var ok bool
	if f.From, ok = parseTimeParam(c.QueryParam("from")); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid from"})
	}
	if f.To, ok = parseTimeParam(c.QueryParam("to")); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid to"})
	}
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxHistoryLimit {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be between 1 and 1000"})
		}
		f.Limit = n
	}

	entries, err := h.Transactions.List(c.Request().Context(), f)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if entries == nil {
		entries = []saga.LogEntry{}
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": entries, "count": len(entries)})
}

// TransactionStats handles GET /v1/admin/transactions/stats?days=.
func (h *AdminHandler) TransactionStats(c echo.Context) error {
	days, ok := parseDays(c.QueryParam("days"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "days must be between 1 and 365"})
	}
	entries, err := h.Transactions.Since(c.Request().Context(), h.Now().AddDate(0, 0, -days))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, saga.FailureStatistics(entries, days))
}

// RetryStats handles GET /v1/admin/retries/stats?days=.
func (h *AdminHandler) RetryStats(c echo.Context) error {
	days, ok := parseDays(c.QueryParam("days"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "days must be between 1 and 365"})
	}
	entries, err := h.Retries.Since(c.Request().Context(), h.Now().AddDate(0, 0, -days))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, retry.Statistics(entries, days))
}

// ListCancellations handles GET /v1/admin/cancellations.
func (h *AdminHandler) ListCancellations(c echo.Context) error {
	pending, err := h.Cancellations.PendingCancellations(c.Request().Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"cancellations": pending, "count": len(pending)})
}

// ApproveCancellation handles POST /v1/admin/cancellations/:id/approve.
// Without a refund amount the customer is refunded in full.
func (h *AdminHandler) ApproveCancellation(c echo.Context) error {
	var body struct {
		Refund *int64 `json:"refund"`
		Note   string `json:"note"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	out, err := h.Cancellations.ApproveCancellation(c.Request().Context(), booking.ReviewDecision{
		ReservationID: c.Param("id"),
		RefundCents:   body.Refund,
		Note:          body.Note,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, out)
}

// RejectCancellation handles POST /v1/admin/cancellations/:id/reject.
func (h *AdminHandler) RejectCancellation(c echo.Context) error {
	var body struct {
		Note string `json:"note"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	id := c.Param("id")
	if err := h.Cancellations.RejectCancellation(c.Request().Context(), booking.ReviewDecision{ReservationID: id, Note: body.Note}); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation_id": id, "status": model.CancellationRejected})
}

// parseDays defaults to a week.
func parseDays(s string) (int, bool) {
	if s == "" {
		return 7, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxStatsDays {
		return 0, false
	}
	return n, true
}

func parseTimeParam(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
