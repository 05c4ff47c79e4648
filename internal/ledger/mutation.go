package ledger

import (
	"inventory/internal/domain"
	"inventory/internal/domain/models"
)

// Mutation is a change to one availability record. Zero-valued fields leave the
// record untouched.
type Mutation struct {
	// BookedDelta is added to booked: +qty on hold, -qty on release.
	BookedDelta int
	// RejectBlocked makes positive deltas fail on blocked dates.
	RejectBlocked bool

	TotalCapacity      *int
	PriceOverride      *int64
	ClearPriceOverride bool
	Blocked            *bool
}

// Hold consumes qty units on every date and refuses blackout dates.
func Hold(qty int) Mutation {
	return Mutation{BookedDelta: qty, RejectBlocked: true}
}

// Restore gives qty units back.
func Restore(qty int) Mutation {
	return Mutation{BookedDelta: -qty}
}

func (m Mutation) validate() error {
	if m.TotalCapacity != nil && *m.TotalCapacity < 0 {
		return domain.ValidationError{Field: "totalCapacity", Msg: "tidak boleh negatif"}
	}
	if m.PriceOverride != nil && *m.PriceOverride < 0 {
		return domain.ValidationError{Field: "priceOverride", Msg: "tidak boleh negatif"}
	}
	if m.PriceOverride != nil && m.ClearPriceOverride {
		return domain.ValidationError{Field: "priceOverride", Msg: "tidak bisa set dan hapus sekaligus"}
	}
	return nil
}

// Apply returns the mutated record, or false when the result would break
// 0 <= booked <= total (or would book onto a blocked date when RejectBlocked).
// rec is never modified.
func (m Mutation) Apply(rec models.AvailabilityRecord) (models.AvailabilityRecord, bool) {
	next := rec
	if m.TotalCapacity != nil {
		next.TotalCapacity = *m.TotalCapacity
	}
	if m.PriceOverride != nil {
		price := *m.PriceOverride
		next.PriceOverride = &price
	}
	if m.ClearPriceOverride {
		next.PriceOverride = nil
	}
	if m.Blocked != nil {
		next.Blocked = *m.Blocked
	}
	if m.BookedDelta > 0 && m.RejectBlocked && next.Blocked {
		return rec, false
	}
	next.Booked += m.BookedDelta
	if next.Booked < 0 || next.Booked > next.TotalCapacity {
		return rec, false
	}
	return next, true
}
