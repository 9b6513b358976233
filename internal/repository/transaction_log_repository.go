package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/iliyamo/trainer-booking/internal/saga"
)

// TransactionLogRepo persists terminal saga transactions to
// transaction_logs.  It implements saga.LogStore.
type TransactionLogRepo struct {
	db *sql.DB
}

func NewTransactionLogRepo(db *sql.DB) *TransactionLogRepo { return &TransactionLogRepo{db: db} }

// SaveTransaction writes one row per transaction.  Structured fields are
// stored as JSON documents.
func (r *TransactionLogRepo) SaveTransaction(ctx context.Context, tx *saga.Transaction) error {
	e := tx.Entry()
	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		return err
	}
	opsJSON, err := json.Marshal(e.Operations)
	if err != nil {
		return err
	}
	var rbJSON, resultJSON []byte
	if e.Rollback != nil {
		if rbJSON, err = json.Marshal(e.Rollback); err != nil {
			return err
		}
	}
	if e.Result != nil {
		if resultJSON, err = json.Marshal(e.Result); err != nil {
			return err
		}
	}
	const q = `INSERT INTO transaction_logs
		(transaction_id, status, context, operations, rollback, result, error, start_time, end_time, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q, e.TransactionID, string(e.Status), ctxJSON, opsJSON,
		nullBytes(rbJSON), nullBytes(resultJSON), e.Error, e.StartedAt.UTC(), e.EndedAt.UTC(), e.DurationMillis)
	return err
}

// List returns entries matching f, newest first.
func (r *TransactionLogRepo) List(ctx context.Context, f saga.HistoryFilter) ([]saga.LogEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "start_time >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "start_time <= ?")
		args = append(args, f.To.UTC())
	}
	q := `SELECT transaction_id, status, context, operations, rollback, error, start_time, end_time, duration_ms
		FROM transaction_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY start_time DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []saga.LogEntry
	for rows.Next() {
		var (
			e                  saga.LogEntry
			status             string
			ctxJSON, opsJSON   []byte
			rbJSON             []byte
			errMsg             sql.NullString
			startTime, endTime time.Time
		)
		if err := rows.Scan(&e.TransactionID, &status, &ctxJSON, &opsJSON, &rbJSON, &errMsg, &startTime, &endTime, &e.DurationMillis); err != nil {
			return nil, err
		}
		e.Status = saga.Status(status)
		e.Error = errMsg.String
		e.StartedAt, e.EndedAt = startTime, endTime
		if len(ctxJSON) > 0 {
			_ = json.Unmarshal(ctxJSON, &e.Context)
		}
		if len(opsJSON) > 0 {
			_ = json.Unmarshal(opsJSON, &e.Operations)
		}
		if len(rbJSON) > 0 {
			e.Rollback = &saga.RollbackOutcome{}
			_ = json.Unmarshal(rbJSON, e.Rollback)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Since returns every entry started at or after t.
func (r *TransactionLogRepo) Since(ctx context.Context, t time.Time) ([]saga.LogEntry, error) {
	return r.List(ctx, saga.HistoryFilter{From: t})
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
