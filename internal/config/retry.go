package config

import (
	"os"

	"github.com/iliyamo/trainer-booking/internal/retry"
)

// LoadRetryPolicies starts from retry.DefaultPolicies and applies
// RETRY_<CLASS>_MAX_ATTEMPTS, RETRY_<CLASS>_DELAY and RETRY_<CLASS>_MULTIPLIER
// overrides.  PAYMENT covers both charge and refund.  CALENDAR only gets its
// own entry when one of its variables is set.
func LoadRetryPolicies() retry.PolicyTable {
	t := retry.DefaultPolicies()
	classes := []struct {
		prefix string
		ops    []retry.Operation
	}{
		{"RETRY_DEFAULT_", []retry.Operation{retry.OpUnclassified}},
		{"RETRY_PAYMENT_", []retry.Operation{retry.OpPaymentCharge, retry.OpPaymentRefund}},
		{"RETRY_NOTIFICATION_", []retry.Operation{retry.OpNotificationSend}},
		{"RETRY_CALENDAR_", []retry.Operation{retry.OpCalendarSync}},
	}
	for _, c := range classes {
		for _, op := range c.ops {
			if _, ok := t[op]; !ok && !anySet(c.prefix) {
				continue
			}
			p := t.Resolve(op)
			p.MaxAttempts = envInt(c.prefix+"MAX_ATTEMPTS", p.MaxAttempts)
			p.Delay = envDur(c.prefix+"DELAY", p.Delay)
			p.Multiplier = envFloat(c.prefix+"MULTIPLIER", p.Multiplier)
			if p.MaxAttempts < 1 {
				p.MaxAttempts = 1
			}
			t[op] = p
		}
	}
	return t
}

func anySet(prefix string) bool {
	for _, k := range []string{"MAX_ATTEMPTS", "DELAY", "MULTIPLIER"} {
		if os.Getenv(prefix+k) != "" {
			return true
		}
	}
	return false
}
