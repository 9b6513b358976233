package saga

import (
	"sort"
	"time"
)

// LogEntry is the persisted form of a terminal transaction.
type LogEntry struct {
	TransactionID  string           `json:"transaction_id"`
	Status         Status           `json:"status"`
	Context        map[string]any   `json:"context,omitempty"`
	Operations     []Operation      `json:"operations"`
	Rollback       *RollbackOutcome `json:"rollback,omitempty"`
	Result         any              `json:"result,omitempty"`
	Error          string           `json:"error,omitempty"`
	StartedAt      time.Time        `json:"start_time"`
	EndedAt        time.Time        `json:"end_time"`
	DurationMillis int64            `json:"duration_ms"`
}

// Entry flattens tx for storage.
func (t *Transaction) Entry() LogEntry {
	e := LogEntry{
		TransactionID:  t.ID,
		Status:         t.Status,
		Context:        t.Context,
		Operations:     t.Operations,
		Rollback:       t.Rollback,
		Result:         t.Result,
		StartedAt:      t.StartedAt,
		EndedAt:        t.EndedAt,
		DurationMillis: t.Duration().Milliseconds(),
	}
	if t.Err != nil {
		e.Error = t.Err.Error()
	}
	return e
}

// HistoryFilter narrows a history listing.  Zero fields match everything.
type HistoryFilter struct {
	Status Status
	From   time.Time
	To     time.Time
	Limit  int
}

// FailureStats summarizes transactions over a period.
type FailureStats struct {
	PeriodDays      int            `json:"period_days"`
	Total           int            `json:"total_transactions"`
	Committed       int            `json:"committed"`
	Failed          int            `json:"failed"`
	RolledBack      int            `json:"rolled_back"`
	PartialRollback int            `json:"partial_rollback"`
	FailureRate     float64        `json:"failure_rate"`
	AvgDurationMS   float64        `json:"avg_duration_ms"`
	ErrorTypes      map[string]int `json:"error_types"`
	TopErrors       []ErrorCount   `json:"top_errors"`
}

type ErrorCount struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}

// FailureStatistics aggregates entries already filtered to the period.
// A transaction counts as failed whether its rollback was clean or not.
func FailureStatistics(entries []LogEntry, periodDays int) FailureStats {
	s := FailureStats{PeriodDays: periodDays, Total: len(entries), ErrorTypes: map[string]int{}}
	var totalMS int64
	for _, e := range entries {
		totalMS += e.DurationMillis
		switch e.Status {
		case StatusCommitted:
			s.Committed++
			continue
		case StatusRolledBack:
			s.RolledBack++
		case StatusPartialRollback:
			s.PartialRollback++
		}
		s.Failed++
		if e.Error != "" {
			s.ErrorTypes[e.Error]++
		}
	}
	if s.Total > 0 {
		s.FailureRate = round2(float64(s.Failed) / float64(s.Total) * 100)
		s.AvgDurationMS = round2(float64(totalMS) / float64(s.Total))
	}

	s.TopErrors = make([]ErrorCount, 0, len(s.ErrorTypes))
	for msg, n := range s.ErrorTypes {
		s.TopErrors = append(s.TopErrors, ErrorCount{Error: msg, Count: n})
	}
	sort.Slice(s.TopErrors, func(i, j int) bool {
		if s.TopErrors[i].Count != s.TopErrors[j].Count {
			return s.TopErrors[i].Count > s.TopErrors[j].Count
		}
		return s.TopErrors[i].Error < s.TopErrors[j].Error
	})
	if len(s.TopErrors) > 10 {
		s.TopErrors = s.TopErrors[:10]
	}
	return s
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
