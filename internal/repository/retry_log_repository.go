package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/iliyamo/trainer-booking/internal/retry"
)

// RetryLogRepo persists retry sessions to retry_logs.  It implements
// retry.LogStore.
type RetryLogRepo struct {
	db *sql.DB
}

func NewRetryLogRepo(db *sql.DB) *RetryLogRepo { return &RetryLogRepo{db: db} }

func (r *RetryLogRepo) SaveRetryLog(ctx context.Context, l *retry.Log) error {
	ctxJSON, err := json.Marshal(l.Context)
	if err != nil {
		return err
	}
	attempts := make([]map[string]any, 0, len(l.Attempts))
	for _, a := range l.Attempts {
		attempts = append(attempts, map[string]any{
			"attempt_number": a.Number,
			"status":         a.Status,
			"error":          a.Error,
			"start_time":     a.StartedAt.UTC(),
			"duration_ms":    a.Duration.Milliseconds(),
		})
	}
	attemptsJSON, err := json.Marshal(attempts)
	if err != nil {
		return err
	}
	const q = `INSERT INTO retry_logs
		(retry_id, operation, context, max_retries, start_time, end_time, total_duration_ms, status,
		attempts_count, successful_attempt, final_error, attempts_detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, q, l.ID, l.Operation.String(), ctxJSON, l.MaxAttempts,
		l.StartedAt.UTC(), l.EndedAt.UTC(), l.EndedAt.Sub(l.StartedAt).Milliseconds(), string(l.Status),
		len(l.Attempts), l.SuccessfulAttempt(), l.FinalError, attemptsJSON)
	return err
}

// Since returns every session started at or after t, newest first.
func (r *RetryLogRepo) Since(ctx context.Context, t time.Time) ([]retry.LogEntry, error) {
	const q = `SELECT retry_id, operation, context, max_retries, start_time, end_time, total_duration_ms, status,
		attempts_count, successful_attempt, final_error, attempts_detail
		FROM retry_logs WHERE start_time >= ? ORDER BY start_time DESC`
	rows, err := r.db.QueryContext(ctx, q, t.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []retry.LogEntry
	for rows.Next() {
		var (
			e          retry.LogEntry
			ctxJSON    sql.NullString
			finalError sql.NullString
			detail     sql.NullString
		)
		if err := rows.Scan(&e.RetryID, &e.Operation, &ctxJSON, &e.MaxRetries, &e.StartTime, &e.EndTime,
			&e.TotalDurationMS, &e.Status, &e.AttemptsCount, &e.SuccessfulAttempt, &finalError, &detail); err != nil {
			return nil, err
		}
		e.Context = ctxJSON.String
		e.FinalError = finalError.String
		e.AttemptsDetail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}
