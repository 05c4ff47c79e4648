package models

import "time"

// HoldStatus tracks a hold through HELD -> COMMITTED | RELEASED | EXPIRED.
type HoldStatus string

const (
	HoldStatusHeld      HoldStatus = "HELD"
	HoldStatusCommitted HoldStatus = "COMMITTED"
	HoldStatusReleased  HoldStatus = "RELEASED"
	HoldStatusExpired   HoldStatus = "EXPIRED"
)

// Hold reserves Quantity units of one resource across [StartDate, EndDate).
type Hold struct {
	ID             string
	ResourceID     string
	StartDate      time.Time
	EndDate        time.Time
	Quantity       int
	Status         HoldStatus
	IdempotencyKey string
	CreatedAt      time.Time
	ExpiresAt      *time.Time
	UpdatedAt      time.Time
}

// DueAt reports whether a HELD hold has passed its expiry deadline at now.
func (h Hold) DueAt(now time.Time) bool {
	return h.Status == HoldStatusHeld && h.ExpiresAt != nil && !h.ExpiresAt.After(now)
}
