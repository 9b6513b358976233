package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/apperr"
	"github.com/iliyamo/trainer-booking/internal/cancellation"
	"github.com/iliyamo/trainer-booking/internal/gateway"
	"github.com/iliyamo/trainer-booking/internal/model"
	"github.com/iliyamo/trainer-booking/internal/notify"
	"github.com/iliyamo/trainer-booking/internal/repository"
	"github.com/iliyamo/trainer-booking/internal/retry"
	"github.com/iliyamo/trainer-booking/internal/saga"
)

// CancellationQuote is a fee quote for one reservation.
type CancellationQuote struct {
	cancellation.Quote
	ReservationID string `json:"reservation_id"`
	AmountCents   int64  `json:"amount"`
	FeeCents      int64  `json:"fee"`
	RefundCents   int64  `json:"refund"`
}

type CancelRequest struct {
	CustomerID    uint64
	ReservationID string
	Reason        cancellation.Reason
	Detail        string
}

// Outcome values of a cancel request.
const (
	CancelCompleted = "CANCELLED"
	CancelRequested = "REQUESTED"
)

type CancelResult struct {
	ReservationID string            `json:"reservation_id"`
	Status        string            `json:"status"`
	ManualReview  bool              `json:"manual_review"`
	ReviewReason  string            `json:"review_reason,omitempty"`
	Quote         CancellationQuote `json:"quote"`
	RefundID      string            `json:"refund_id,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
}

// QuoteCancellation prices a cancellation made now.
func (s *Service) QuoteCancellation(ctx context.Context, customerID uint64, reservationID string) (*CancellationQuote, error) {
	res, err := s.loadCancellable(ctx, customerID, reservationID)
	if err != nil {
		return nil, err
	}
	q := s.quote(res)
	return &q, nil
}

func (s *Service) quote(res model.Reservation) CancellationQuote {
	q := s.Fees.Quote(res.StartAt, s.Now())
	fee, refund := cancellation.FeeAmounts(res.AmountCents, q.FeeRate)
	return CancellationQuote{Quote: q, ReservationID: res.ID, AmountCents: res.AmountCents, FeeCents: fee, RefundCents: refund}
}

func (s *Service) loadCancellable(ctx context.Context, customerID uint64, id string) (model.Reservation, error) {
	res, err := s.loadOwned(ctx, customerID, id)
	if err != nil {
		return res, err
	}
	if res.Status != model.ReservationConfirmed {
		return res, apperr.Validation("reservation %s is %s and cannot be cancelled", id, res.Status)
	}
	if res.CancellationStatus != nil && *res.CancellationStatus == model.CancellationRequested {
		return res, apperr.Validation("cancellation of %s is already awaiting review", id)
	}
	return res, nil
}

// Cancel handles a customer's cancellation.  Frequent cancellers and every
// reason except a booking mistake are recorded for an admin to confirm.
// A mistake is cancelled on the spot: fee kept, remainder refunded.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	if err := cancellation.ValidateRequest(req.Reason, req.Detail); err != nil {
		return nil, err
	}
	res, err := s.loadCancellable(ctx, req.CustomerID, req.ReservationID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	q := s.quote(res)
	l := s.log.With(zap.String("reservation_id", res.ID))

	count, err := s.Reservations.CountCancelledSince(ctx, req.CustomerID, s.Frequency.Since(now))
	if err != nil {
		return nil, fmt.Errorf("count cancellations: %w", err)
	}
	review := ""
	switch {
	case s.Frequency.IsFrequent(count):
		review = "frequent_canceller"
	case cancellation.RequiresManualReview(req.Reason):
		review = "reason_requires_review"
	}
	if review != "" {
		if err := s.Reservations.MarkCancellationRequested(ctx, res.ID, string(req.Reason), req.Detail, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return nil, apperr.Validation("reservation %s can no longer be cancelled", res.ID)
			}
			return nil, fmt.Errorf("record cancellation request: %w", err)
		}
		l.Info("cancellation sent to review", zap.String("review", review), zap.Int("recent_cancellations", count))
		s.notify(ctx, l, notify.AdminRecipient, fmt.Sprintf("Cancellation request for reservation %s (%s, %s): %s",
			res.ID, req.Reason, review, req.Detail))
		s.notify(ctx, l, strconv.FormatUint(req.CustomerID, 10), "We received your cancellation request and will get back to you.")
		return &CancelResult{ReservationID: res.ID, Status: CancelRequested, ManualReview: true, ReviewReason: review, Quote: q}, nil
	}

	out := s.Coordinator.Execute(ctx, map[string]any{
		"operation":      "cancel_reservation",
		"reservation_id": res.ID,
		"customer_id":    req.CustomerID,
		"reason":         string(req.Reason),
		"fee_rate":       q.FeeRate,
	}, func(ctx context.Context, tx *saga.Transaction) (any, error) {
		return s.cancelSteps(ctx, tx, l, res, q, now)
	})
	if !out.Success {
		return nil, out.AsError()
	}
	result := out.Result.(*CancelResult)
	result.TransactionID = out.TransactionID
	return result, nil
}

func (s *Service) cancelSteps(ctx context.Context, tx *saga.Transaction, l *zap.Logger, res model.Reservation, q CancellationQuote, now time.Time) (*CancelResult, error) {
	if err := s.Reservations.MarkCancelled(ctx, res.ID, q.FeeCents, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Validation("reservation %s was already cancelled", res.ID)
		}
		return nil, fmt.Errorf("mark reservation cancelled: %w", err)
	}
	tx.RegisterRollback("restore reservation", func(ctx context.Context) error {
		return s.Reservations.UpdateStatus(ctx, res.ID, model.ReservationConfirmed)
	})
	tx.RecordOperation("mark reservation cancelled", map[string]any{"fee": q.FeeCents})

	result := &CancelResult{ReservationID: res.ID, Status: CancelCompleted, Quote: q}
	if q.RefundCents > 0 {
		pay, err := s.Payments.GetByReservationID(ctx, res.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.NotFound("payment for reservation %s not found", res.ID)
			}
			return nil, fmt.Errorf("load payment: %w", err)
		}
		if pay.GatewayPaymentID == nil {
			return nil, apperr.Validation("payment %s was never captured", pay.ID)
		}
		// one refund per payment; a retried cancellation reuses the key
		refundKey := refundIdempotencyKey(pay.ID)
		refund, rr, err := retry.Do(ctx, s.Retry, retry.Options{
			Operation: retry.OpPaymentRefund,
			Context:   map[string]any{"payment_id": pay.ID, "reservation_id": res.ID, "transaction_id": tx.ID},
		}, func(ctx context.Context, _ int) (*gateway.Refund, error) {
			return s.Gateway.Refund(ctx, gateway.RefundRequest{
				PaymentID:      *pay.GatewayPaymentID,
				Amount:         q.RefundCents,
				Currency:       pay.Currency,
				IdempotencyKey: refundKey,
				Reason:         "Cancellation",
			})
		})
		if err != nil {
			return nil, apperr.External("payment gateway", err).WithDetail("retry_id", rr.RetryID)
		}
		tx.RecordOperation("refund payment", map[string]any{"refund_id": refund.RefundID, "amount": q.RefundCents})
		result.RefundID = refund.RefundID

		status := model.PaymentRefunded
		if q.RefundCents < pay.AmountCents {
			status = model.PaymentPartiallyRefunded
		}
		// the money has moved; a stale payment row is reconciled by hand
		s.bestEffort(l, "mark payment refunded", s.Payments.MarkRefunded(ctx, pay.ID, q.RefundCents, status))
	}

	if n, err := s.Sales.CancelByReservation(ctx, res.ID); err != nil {
		s.bestEffort(l, "cancel sale", err)
	} else {
		tx.RecordOperation("cancel sale", map[string]any{"rows": n})
	}
	if res.CalendarEventID != nil {
		s.bestEffort(l, "delete calendar event", s.Calendar.DeleteEvent(ctx, *res.CalendarEventID))
	}
	s.notify(ctx, l, strconv.FormatUint(res.CustomerID, 10), fmt.Sprintf(
		"Your lesson on %s is cancelled. Fee: %d, refund: %d.",
		res.StartAt.In(s.location()).Format("2006-01-02 15:04"), q.FeeCents, q.RefundCents))
	return result, nil
}

func refundIdempotencyKey(paymentID string) string { return "refund-" + paymentID }
