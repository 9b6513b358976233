package cancellation

import (
	"strings"
	"time"

	"github.com/iliyamo/trainer-booking/internal/apperr"
)

// Reason is the customer-selected cancellation reason.
type Reason string

const (
	ReasonHealth   Reason = "HEALTH"
	ReasonMistake  Reason = "MISTAKE"
	ReasonSchedule Reason = "SCHEDULE"
	ReasonOther    Reason = "OTHER"
)

func (r Reason) valid() bool {
	switch r {
	case ReasonHealth, ReasonMistake, ReasonSchedule, ReasonOther:
		return true
	}
	return false
}

// ValidateRequest checks a cancellation request.  Health and other reasons
// need a free-text detail.
func ValidateRequest(reason Reason, detail string) error {
	if reason == "" {
		return apperr.Validation("cancellation reason is required")
	}
	if !reason.valid() {
		return apperr.Validation("invalid cancellation reason %q", string(reason))
	}
	if (reason == ReasonHealth || reason == ReasonOther) && strings.TrimSpace(detail) == "" {
		return apperr.Validation("detail is required for reason %s", string(reason))
	}
	return nil
}

// RequiresManualReview reports whether the request goes to an admin
// instead of being cancelled on the spot.  Only a booking made by mistake
// is cancelled automatically.
func RequiresManualReview(reason Reason) bool {
	return reason != ReasonMistake
}

// FrequencyPolicy diverts customers who cancel often to manual handling.
type FrequencyPolicy struct {
	WindowMonths int
	Threshold    int
}

func DefaultFrequencyPolicy() FrequencyPolicy {
	return FrequencyPolicy{WindowMonths: 6, Threshold: 5}
}

// Since is the start of the counting window ending at now.
func (p FrequencyPolicy) Since(now time.Time) time.Time {
	return now.AddDate(0, -p.WindowMonths, 0)
}

// IsFrequent reports whether count cancellations in the window reach the
// threshold.
func (p FrequencyPolicy) IsFrequent(count int) bool {
	return p.Threshold > 0 && count >= p.Threshold
}
