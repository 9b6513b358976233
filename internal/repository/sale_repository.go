package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/trainer-booking/internal/model"
)

// SaleRepo provides access to the sales ledger.
type SaleRepo struct {
	db *sql.DB
}

func NewSaleRepo(db *sql.DB) *SaleRepo { return &SaleRepo{db: db} }

func (r *SaleRepo) Create(ctx context.Context, s *model.Sale) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sales (id, reservation_id, payment_id, customer_id, amount_cents, status) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.ReservationID, s.PaymentID, s.CustomerID, s.AmountCents, s.Status)
	return err
}

// MarkCancelled flags one ledger row as cancelled.  Ledger rows are never
// deleted.
func (r *SaleRepo) MarkCancelled(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sales SET status = 'CANCELLED' WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// CancelByReservation flags every ledger row of a reservation as cancelled
// and returns how many were touched.
func (r *SaleRepo) CancelByReservation(ctx context.Context, reservationID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sales SET status = 'CANCELLED' WHERE reservation_id = ? AND status <> 'CANCELLED'`, reservationID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
