package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/booking"
	"github.com/iliyamo/trainer-booking/internal/cancellation"
	"github.com/iliyamo/trainer-booking/internal/logger"
	"github.com/iliyamo/trainer-booking/internal/middleware"
	"github.com/iliyamo/trainer-booking/internal/model"
)

// Booker is the part of booking.Service the HTTP layer uses.
type Booker interface {
	Book(ctx context.Context, req booking.BookRequest) (*booking.BookResult, error)
	HoldSlot(ctx context.Context, req booking.HoldRequest) (*model.SlotHold, error)
	Availability(ctx context.Context, trainerID string, year, month int, multipleDogs bool) (*booking.MonthAvailability, error)
	QuoteCancellation(ctx context.Context, customerID uint64, reservationID string) (*booking.CancellationQuote, error)
	Cancel(ctx context.Context, req booking.CancelRequest) (*booking.CancelResult, error)
}

// BookingHandler serves the customer facing booking endpoints.  All
// methods except Availability expect JWTAuth to have run.
type BookingHandler struct {
	svc Booker
	log *zap.Logger
}

func NewBookingHandler(svc Booker, l *zap.Logger) *BookingHandler {
	if svc == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	return &BookingHandler{svc: svc, log: logger.Named(l, "handler")}
}

type slotBody struct {
	TrainerID    string `json:"trainer_id"`
	Start        string `json:"start"`
	MultipleDogs bool   `json:"multiple_dogs"`
}

func (b slotBody) startTime() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(b.Start))
	return t, err == nil
}

// Availability handles GET /v1/trainers/:id/availability?year=&month=.
// multiple_dogs=true asks for the longer lesson.
func (h *BookingHandler) Availability(c echo.Context) error {
	year, err := strconv.Atoi(c.QueryParam("year"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid year"})
	}
	month, err := strconv.Atoi(c.QueryParam("month"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid month"})
	}
	multi, _ := strconv.ParseBool(c.QueryParam("multiple_dogs"))

	out, err := h.svc.Availability(c.Request().Context(), c.Param("id"), year, month, multi)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Hold handles POST /v1/slots/hold.  It returns 201 with the hold token
// and its expiry.
func (h *BookingHandler) Hold(c echo.Context) error {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body slotBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	start, ok := body.startTime()
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start must be an RFC 3339 timestamp"})
	}
	hold, err := h.svc.HoldSlot(c.Request().Context(), booking.HoldRequest{
		CustomerID:   customerID,
		TrainerID:    body.TrainerID,
		Start:        start,
		MultipleDogs: body.MultipleDogs,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"hold_id":    hold.ID,
		"hold_token": hold.HoldToken,
		"trainer_id": hold.TrainerID,
		"start":      hold.StartAt,
		"end":        hold.EndAt,
		"expires_at": hold.ExpiresAt,
	})
}

// Book handles POST /v1/reservations.
func (h *BookingHandler) Book(c echo.Context) error {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		slotBody
		SourceToken string `json:"source_token"`
		Note        string `json:"note"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	start, ok := body.startTime()
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start must be an RFC 3339 timestamp"})
	}
	res, err := h.svc.Book(c.Request().Context(), booking.BookRequest{
		CustomerID:   customerID,
		TrainerID:    body.TrainerID,
		Start:        start,
		MultipleDogs: body.MultipleDogs,
		SourceToken:  body.SourceToken,
		Note:         body.Note,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// CancellationQuote handles GET /v1/reservations/:id/cancellation-quote.
func (h *BookingHandler) CancellationQuote(c echo.Context) error {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	q, err := h.svc.QuoteCancellation(c.Request().Context(), customerID, c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, q)
}

// Cancel handles POST /v1/reservations/:id/cancel.  A request that needs
// review is answered with 202.
func (h *BookingHandler) Cancel(c echo.Context) error {
	customerID, ok := middleware.CustomerID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Reason string `json:"reason"`
		Detail string `json:"detail"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	out, err := h.svc.Cancel(c.Request().Context(), booking.CancelRequest{
		CustomerID:    customerID,
		ReservationID: c.Param("id"),
		Reason:        cancellation.Reason(strings.ToUpper(strings.TrimSpace(body.Reason))),
		Detail:        body.Detail,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	if out.ManualReview {
		return c.JSON(http.StatusAccepted, out)
	}
	return c.JSON(http.StatusOK, out)
}
