package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/iliyamo/trainer-booking/internal/model"
)

// SlotHoldRepo provides access to the slot_holds table.  Expiry is compared
// against UTC_TIMESTAMP() so the database clock is authoritative.
type SlotHoldRepo struct {
	db *sql.DB
}

// NewSlotHoldRepo returns a new SlotHoldRepo bound to the provided database.
func NewSlotHoldRepo(db *sql.DB) *SlotHoldRepo { return &SlotHoldRepo{db: db} }

// randomToken returns n random bytes hex encoded.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Create inserts a hold, filling in HoldToken when it is empty.  The table
// has a unique key on (trainer_id, start_at); a second live hold on the
// same slot yields ErrConflict.  An expired hold on the slot is cleared
// first.
func (r *SlotHoldRepo) Create(ctx context.Context, h *model.SlotHold) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM slot_holds WHERE trainer_id = ? AND start_at = ? AND expires_at <= UTC_TIMESTAMP()`,
		h.TrainerID, h.StartAt.UTC()); err != nil {
		return err
	}
	if h.HoldToken == "" {
		tok, err := randomToken(32)
		if err != nil {
			return err
		}
		h.HoldToken = tok
	}
	const q = `INSERT INTO slot_holds (customer_id, trainer_id, start_at, end_at, hold_token, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, h.CustomerID, h.TrainerID, h.StartAt.UTC(), h.EndAt.UTC(), h.HoldToken, h.ExpiresAt.UTC())
	if isDuplicate(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = uint64(id)
	return nil
}

// ReleaseForSlot removes the customer's holds on a trainer's slot and
// reports how many were removed.
func (r *SlotHoldRepo) ReleaseForSlot(ctx context.Context, customerID uint64, trainerID string, start time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM slot_holds WHERE customer_id = ? AND trainer_id = ? AND start_at = ?`,
		customerID, trainerID, start.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ActiveOverlapping returns unexpired holds of a trainer overlapping
// [from, to).
func (r *SlotHoldRepo) ActiveOverlapping(ctx context.Context, trainerID string, from, to time.Time) ([]model.SlotHold, error) {
	const q = `SELECT id, customer_id, trainer_id, start_at, end_at, hold_token, expires_at, created_at
		FROM slot_holds
		WHERE trainer_id = ? AND start_at < ? AND end_at > ? AND expires_at > UTC_TIMESTAMP()`
	rows, err := r.db.QueryContext(ctx, q, trainerID, to.UTC(), from.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var holds []model.SlotHold
	for rows.Next() {
		var h model.SlotHold
		if err := rows.Scan(&h.ID, &h.CustomerID, &h.TrainerID, &h.StartAt, &h.EndAt, &h.HoldToken, &h.ExpiresAt, &h.CreatedAt); err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return holds, nil
}

// DeleteExpired purges holds past their expiry.
func (r *SlotHoldRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM slot_holds WHERE expires_at <= UTC_TIMESTAMP()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
