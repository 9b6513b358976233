package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/trainer-booking/internal/model"
)

// PaymentRepo provides access to the payments table.
type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// Create inserts a PENDING payment row.  The idempotency key is unique, so a
// second row for the same logical charge is rejected with ErrConflict.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	const q = `INSERT INTO payments (id, reservation_id, customer_id, amount_cents, currency, status, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, p.ID, p.ReservationID, p.CustomerID, p.AmountCents, p.Currency, p.Status, p.IdempotencyKey)
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// MarkCaptured stores the gateway id and moves the row to CAPTURED.
func (r *PaymentRepo) MarkCaptured(ctx context.Context, id, gatewayPaymentID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = 'CAPTURED', gateway_payment_id = ? WHERE id = ?`, gatewayPaymentID, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// MarkRefunded records a refund and the resulting status.
func (r *PaymentRepo) MarkRefunded(ctx context.Context, id string, refundedCents int64, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, refunded_cents = refunded_cents + ? WHERE id = ?`, status, refundedCents, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// Delete removes the row; a missing row is not an error.
func (r *PaymentRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id)
	return err
}

// GetByReservationID returns the payment of a reservation or ErrNotFound.
func (r *PaymentRepo) GetByReservationID(ctx context.Context, reservationID string) (model.Payment, error) {
	const q = `SELECT id, reservation_id, customer_id, amount_cents, currency, status, gateway_payment_id,
		idempotency_key, refunded_cents, created_at, updated_at
		FROM payments WHERE reservation_id = ? ORDER BY created_at DESC LIMIT 1`
	var (
		p         model.Payment
		gatewayID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, reservationID).Scan(&p.ID, &p.ReservationID, &p.CustomerID, &p.AmountCents,
		&p.Currency, &p.Status, &gatewayID, &p.IdempotencyKey, &p.RefundedCents, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	p.GatewayPaymentID = fromNullString(gatewayID)
	return p, err
}
