package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/trainer-booking/internal/model"
)

// ReservationRepo provides access to the reservations table.  All
// timestamps are stored and returned in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, customer_id, trainer_id, start_at, end_at, multiple_dogs, status, amount_cents,
	calendar_event_id, cancellation_status, cancellation_reason, cancellation_detail,
	cancellation_requested_at, cancellation_fee_cents, cancelled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (model.Reservation, error) {
	var (
		r                                  model.Reservation
		eventID, cStatus, cReason, cDetail sql.NullString
		requestedAt, cancelledAt           sql.NullTime
	)
	err := s.Scan(&r.ID, &r.CustomerID, &r.TrainerID, &r.StartAt, &r.EndAt, &r.MultipleDogs, &r.Status, &r.AmountCents,
		&eventID, &cStatus, &cReason, &cDetail, &requestedAt, &r.CancellationFeeCents, &cancelledAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.CalendarEventID = fromNullString(eventID)
	r.CancellationStatus = fromNullString(cStatus)
	r.CancellationReason = fromNullString(cReason)
	r.CancellationDetail = fromNullString(cDetail)
	r.CancellationRequestedAt = fromNullTime(requestedAt)
	r.CancelledAt = fromNullTime(cancelledAt)
	return r, nil
}

// Create inserts a reservation.  The caller supplies the ID.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	const q = `INSERT INTO reservations (id, customer_id, trainer_id, start_at, end_at, multiple_dogs, status, amount_cents)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, res.ID, res.CustomerID, res.TrainerID, res.StartAt.UTC(), res.EndAt.UTC(),
		res.MultipleDogs, res.Status, res.AmountCents)
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// GetByID returns the reservation or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (model.Reservation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return res, ErrNotFound
	}
	return res, err
}

// AttachCalendarEvent records the calendar event created for a reservation.
func (r *ReservationRepo) AttachCalendarEvent(ctx context.Context, id, eventID string) error {
	return r.exec(ctx, `UPDATE reservations SET calendar_event_id = ? WHERE id = ?`, eventID, id)
}

// UpdateStatus overwrites the status.
func (r *ReservationRepo) UpdateStatus(ctx context.Context, id, status string) error {
	return r.exec(ctx, `UPDATE reservations SET status = ? WHERE id = ?`, status, id)
}

// Delete removes the row.  Deleting a missing row is not an error so that
// compensations can be replayed.
func (r *ReservationRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	return err
}

// ListActiveByTrainer returns PENDING and CONFIRMED reservations of a
// trainer overlapping [from, to).
func (r *ReservationRepo) ListActiveByTrainer(ctx context.Context, trainerID string, from, to time.Time) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
		WHERE trainer_id = ? AND status IN ('PENDING', 'CONFIRMED') AND start_at < ? AND end_at > ?
		ORDER BY start_at`
	rows, err := r.db.QueryContext(ctx, q, trainerID, to.UTC(), from.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// CountCancelledSince counts a customer's cancelled reservations whose
// cancellation (or cancellation request, for rows cancelled after review)
// is at or after since.
func (r *ReservationRepo) CountCancelledSince(ctx context.Context, customerID uint64, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM reservations
		WHERE customer_id = ? AND status = 'CANCELLED'
		AND COALESCE(cancelled_at, cancellation_requested_at) >= ?`
	var n int
	err := r.db.QueryRowContext(ctx, q, customerID, since.UTC()).Scan(&n)
	return n, err
}

// MarkCancelled cancels a CONFIRMED reservation and records the fee kept.
// It returns ErrConflict when the row is no longer CONFIRMED, so only one
// of two concurrent cancellations gets to refund.
func (r *ReservationRepo) MarkCancelled(ctx context.Context, id string, feeCents int64, at time.Time) error {
	return r.compareAndSet(ctx, id,
		`UPDATE reservations SET status = 'CANCELLED', cancellation_fee_cents = ?, cancelled_at = ?
		WHERE id = ? AND status = 'CONFIRMED'`,
		feeCents, at.UTC(), id)
}

// MarkCancellationRequested records a request that an admin has to confirm.
// It returns ErrConflict when the reservation is not CONFIRMED or a request
// is already open.
func (r *ReservationRepo) MarkCancellationRequested(ctx context.Context, id, reason, detail string, at time.Time) error {
	return r.compareAndSet(ctx, id,
		`UPDATE reservations SET cancellation_status = 'REQUESTED', cancellation_reason = ?, cancellation_detail = ?,
		cancellation_requested_at = ?
		WHERE id = ? AND status = 'CONFIRMED' AND (cancellation_status IS NULL OR cancellation_status <> 'REQUESTED')`,
		reason, detail, at.UTC(), id)
}

// ListCancellationRequests returns CONFIRMED reservations with an open
// cancellation request, most recent request first.
func (r *ReservationRepo) ListCancellationRequests(ctx context.Context) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
		WHERE cancellation_status = 'REQUESTED' AND status = 'CONFIRMED'
		ORDER BY cancellation_requested_at DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// ResolveCancellationRequest closes an open request with status APPROVED
// or REJECTED.  It returns ErrConflict when no request is open.
func (r *ReservationRepo) ResolveCancellationRequest(ctx context.Context, id, status string) error {
	return r.compareAndSet(ctx, id,
		`UPDATE reservations SET cancellation_status = ? WHERE id = ? AND cancellation_status = 'REQUESTED'`,
		status, id)
}

// compareAndSet runs a guarded UPDATE.  Zero rows means ErrNotFound when
// the reservation does not exist and ErrConflict when the guard failed.
func (r *ReservationRepo) compareAndSet(ctx context.Context, id, q string, args ...any) error {
	err := r.exec(ctx, q, args...)
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM reservations WHERE id = ?`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return err
	}
	return ErrConflict
}

// exec runs an UPDATE that must touch exactly one row.
func (r *ReservationRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// requireOneRow maps a zero-row update to ErrNotFound.  database.Open sets
// clientFoundRows, so a matched row counts even when nothing changed.
func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
