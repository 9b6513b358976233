package retry

import (
	"sort"
	"time"
)

// LogStatus is the state of a retry session.
type LogStatus string

const (
	StatusStarted LogStatus = "STARTED"
	StatusSuccess LogStatus = "SUCCESS"
	StatusFailed  LogStatus = "FAILED"
)

// Attempt is one call made within a session.  It is immutable once
// appended to a Log.
type Attempt struct {
	Number    int           `json:"attempt_number"`
	Status    LogStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration_ms"`
}

// Log records one bounded retry session.
type Log struct {
	ID          string
	Operation   Operation
	Context     map[string]any
	MaxAttempts int
	Attempts    []Attempt
	Status      LogStatus
	StartedAt   time.Time
	EndedAt     time.Time
	FinalError  string
}

// SuccessfulAttempt returns the number of the attempt that succeeded, or 0.
func (l *Log) SuccessfulAttempt() int {
	if l.Status != StatusSuccess || len(l.Attempts) == 0 {
		return 0
	}
	return l.Attempts[len(l.Attempts)-1].Number
}

// IsCriticalFailure reports whether a session is a payment-class operation
// that exhausted every attempt.  Such sessions warrant an operator alert.
func IsCriticalFailure(l *Log) bool {
	if l == nil {
		return false
	}
	return l.Operation.IsPaymentClass() &&
		l.Status == StatusFailed &&
		len(l.Attempts) >= l.MaxAttempts
}

// LogEntry is the flattened form of a Log as persisted by a LogStore.
type LogEntry struct {
	RetryID           string
	Operation         string
	Context           string
	MaxRetries        int
	StartTime         time.Time
	EndTime           time.Time
	TotalDurationMS   int64
	Status            string
	AttemptsCount     int
	SuccessfulAttempt int
	FinalError        string
	AttemptsDetail    string
}

// OperationStats is the per-operation slice of Stats.
type OperationStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Stats summarizes retry sessions over a period.
type Stats struct {
	PeriodDays  int                       `json:"period_days"`
	Total       int                       `json:"total_retries"`
	Successful  int                       `json:"successful"`
	Failed      int                       `json:"failed"`
	SuccessRate float64                   `json:"success_rate"`
	AvgAttempts float64                   `json:"avg_attempts"`
	ByOperation map[string]OperationStats `json:"by_operation"`
	TopErrors   []ErrorCount              `json:"top_errors"`
}

// ErrorCount is one row of an error histogram.
type ErrorCount struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}

// Statistics aggregates entries.  Callers are expected to have filtered the
// entries to the period already.
func Statistics(entries []LogEntry, periodDays int) Stats {
	s := Stats{PeriodDays: periodDays, Total: len(entries), ByOperation: map[string]OperationStats{}}
	errs := map[string]int{}
	attempts := 0
	for _, e := range entries {
		op := e.Operation
		if op == "" {
			op = "unknown"
		}
		os := s.ByOperation[op]
		os.Total++
		if e.Status == string(StatusSuccess) {
			s.Successful++
			os.Successful++
		} else {
			os.Failed++
			if e.Status == string(StatusFailed) {
				s.Failed++
				if e.FinalError != "" {
					errs[e.FinalError]++
				}
			}
		}
		s.ByOperation[op] = os
		attempts += e.AttemptsCount
	}
	if s.Total > 0 {
		s.SuccessRate = round2(float64(s.Successful) / float64(s.Total) * 100)
		s.AvgAttempts = round2(float64(attempts) / float64(s.Total))
	}
	s.TopErrors = topErrors(errs, 10)
	return s
}

func topErrors(counts map[string]int, limit int) []ErrorCount {
	out := make([]ErrorCount, 0, len(counts))
	for msg, n := range counts {
		out = append(out, ErrorCount{Error: msg, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Error < out[j].Error
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
