package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/trainer-booking/internal/apperr"
	"github.com/iliyamo/trainer-booking/internal/model"
	"github.com/iliyamo/trainer-booking/internal/repository"
	"github.com/iliyamo/trainer-booking/internal/saga"
)

// PendingCancellation is a cancellation request waiting for an admin.
// PolicyQuote is what the fee schedule would charge if it were approved now.
type PendingCancellation struct {
	ReservationID string            `json:"reservation_id"`
	CustomerID    uint64            `json:"customer_id"`
	TrainerID     string            `json:"trainer_id"`
	Start         time.Time         `json:"start"`
	AmountCents   int64             `json:"amount"`
	Reason        string            `json:"reason"`
	Detail        string            `json:"detail,omitempty"`
	RequestedAt   *time.Time        `json:"requested_at,omitempty"`
	PolicyQuote   CancellationQuote `json:"policy_quote"`
}

// ReviewDecision is an admin's answer to a cancellation request.
// RefundCents sets the refund on approval; nil refunds the full amount.
type ReviewDecision struct {
	ReservationID string
	RefundCents   *int64
	Note          string
}

// PendingCancellations lists open cancellation requests, newest first.
func (s *Service) PendingCancellations(ctx context.Context) ([]PendingCancellation, error) {
	rows, err := s.Reservations.ListCancellationRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cancellation requests: %w", err)
	}
	out := make([]PendingCancellation, 0, len(rows))
	for _, r := range rows {
		p := PendingCancellation{
			ReservationID: r.ID,
			CustomerID:    r.CustomerID,
			TrainerID:     r.TrainerID,
			Start:         r.StartAt,
			AmountCents:   r.AmountCents,
			RequestedAt:   r.CancellationRequestedAt,
			PolicyQuote:   s.quote(r),
		}
		if r.CancellationReason != nil {
			p.Reason = *r.CancellationReason
		}
		if r.CancellationDetail != nil {
			p.Detail = *r.CancellationDetail
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) loadPendingRequest(ctx context.Context, id string) (model.Reservation, error) {
	res, err := s.Reservations.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return res, apperr.NotFound("reservation %s not found", id)
	}
	if err != nil {
		return res, err
	}
	if res.Status != model.ReservationConfirmed || res.CancellationStatus == nil ||
		*res.CancellationStatus != model.CancellationRequested {
		return res, apperr.Validation("reservation %s has no open cancellation request", id)
	}
	return res, nil
}

// ApproveCancellation cancels a reservation whose request was reviewed.
// It runs the same steps as an automatic cancellation, with the refund
// chosen by the admin instead of the fee schedule.
func (s *Service) ApproveCancellation(ctx context.Context, d ReviewDecision) (*CancelResult, error) {
	res, err := s.loadPendingRequest(ctx, d.ReservationID)
	if err != nil {
		return nil, err
	}
	refund := res.AmountCents
	if d.RefundCents != nil {
		if *d.RefundCents < 0 || *d.RefundCents > res.AmountCents {
			return nil, apperr.Validation("refund must be between 0 and %d", res.AmountCents)
		}
		refund = *d.RefundCents
	}
	q := s.quote(res)
	q.FeeCents, q.RefundCents = res.AmountCents-refund, refund
	q.Label = "fee set on review"
	now := s.Now()
	l := s.log.With(zap.String("reservation_id", res.ID))

	out := s.Coordinator.Execute(ctx, map[string]any{
		"operation":      "approve_cancellation",
		"reservation_id": res.ID,
		"customer_id":    res.CustomerID,
		"refund":         refund,
		"note":           d.Note,
	}, func(ctx context.Context, tx *saga.Transaction) (any, error) {
		return s.cancelSteps(ctx, tx, l, res, q, now)
	})
	if !out.Success {
		return nil, out.AsError()
	}
	s.bestEffort(l, "close cancellation request",
		s.Reservations.ResolveCancellationRequest(ctx, res.ID, model.CancellationApproved))
	l.Info("cancellation approved", zap.Int64("refund", refund))

	result := out.Result.(*CancelResult)
	result.TransactionID = out.TransactionID
	return result, nil
}

// RejectCancellation closes a request and keeps the booking.  The customer
// may ask again later.
func (s *Service) RejectCancellation(ctx context.Context, d ReviewDecision) error {
	res, err := s.loadPendingRequest(ctx, d.ReservationID)
	if err != nil {
		return err
	}
	if err := s.Reservations.ResolveCancellationRequest(ctx, res.ID, model.CancellationRejected); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperr.Validation("reservation %s has no open cancellation request", res.ID)
		}
		return fmt.Errorf("reject cancellation request: %w", err)
	}
	l := s.log.With(zap.String("reservation_id", res.ID))
	l.Info("cancellation rejected")

	msg := fmt.Sprintf("Your cancellation request for the lesson on %s was declined and the booking stands.",
		res.StartAt.In(s.location()).Format("2006-01-02 15:04"))
	if d.Note != "" {
		msg += " " + d.Note
	}
	s.notify(ctx, l, strconv.FormatUint(res.CustomerID, 10), msg)
	return nil
}
