package domain

import "time"

// The quota period is a rolling absolute-time window recomputed on read.
// No scheduled job ever advances ResetAt; once a reset instant passes, the
// window stays open and grows until an administrator writes a new ResetAt
// (and typically a new CreatedAt).

// PeriodStart returns the start of the role's current tracking window.
// While the configured reset is still pending, the cycle is the one that
// began at CreatedAt. Once ResetAt has passed, the current cycle is
// anchored at ResetAt itself.
func PeriodStart(cfg *QuotaRoleConfig, now time.Time) time.Time {
	if cfg.ResetAt.After(now) {
		return cfg.CreatedAt
	}
	return cfg.ResetAt
}

// PeriodEnd returns the exclusive end of the role's current tracking
// window. While the reset is pending, the window ends at ResetAt. Once
// ResetAt has passed, the window end is the supplied now, so the window is
// perpetually open until an administrator moves ResetAt forward.
func PeriodEnd(cfg *QuotaRoleConfig, now time.Time) time.Time {
	if cfg.ResetAt.After(now) {
		return cfg.ResetAt
	}
	return now
}
