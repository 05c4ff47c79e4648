// Package ledger is the single source of truth for "can N units be sold on date D".
//
// Rows are keyed by (resource, date) and created lazily: an absent row means full
// capacity, no price override, not blocked. Every mutation keeps 0 <= booked <= total.
package ledger

import (
	"context"
	"slices"
	"time"

	"inventory/internal/calendar"
	"inventory/internal/domain"
	"inventory/internal/domain/models"
)

// Store persists availability rows. Implementations must serialize mutations per
// (resource, date) and must not block mutations of other keys.
type Store interface {
	// WithTx runs fn in one atomic unit. Nested calls join the outer unit.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// ReadDays returns the stored rows among days without locking, keyed by YYYY-MM-DD.
	ReadDays(ctx context.Context, resourceID string, days []time.Time) (map[string]models.AvailabilityRecord, error)

	// LockDays locks every (res.ID, day) key in ascending date order and returns the
	// current records, defaults included, in that order. Must run inside WithTx; the
	// locks are held until the unit ends.
	LockDays(ctx context.Context, res models.Resource, days []time.Time) ([]models.AvailabilityRecord, error)

	// SaveDays writes records previously returned by LockDays in the same unit.
	SaveDays(ctx context.Context, recs []models.AvailabilityRecord) error
}

// Ledger applies validated mutations on top of a Store.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Store exposes the backing store so callers can share its transaction boundary.
func (l *Ledger) Store() Store {
	return l.store
}

// GetOrDefault returns the stored record for (res, day) or the synthesized default.
func (l *Ledger) GetOrDefault(ctx context.Context, res models.Resource, day time.Time) (models.AvailabilityRecord, error) {
	recs, err := l.Range(ctx, res, []time.Time{day})
	if err != nil {
		return models.AvailabilityRecord{}, err
	}
	return recs[0], nil
}

// Range reads every day without locking; results follow the order of days.
// Reads may be slightly stale, writers re-validate under lock.
func (l *Ledger) Range(ctx context.Context, res models.Resource, days []time.Time) ([]models.AvailabilityRecord, error) {
	keys := normalizeDays(days)
	stored, err := l.store.ReadDays(ctx, res.ID, keys)
	if err != nil {
		return nil, err
	}
	out := make([]models.AvailabilityRecord, 0, len(days))
	for _, d := range days {
		d = calendar.Truncate(d)
		if rec, ok := stored[calendar.FormatDay(d)]; ok {
			out = append(out, rec)
			continue
		}
		out = append(out, models.DefaultRecord(res, d))
	}
	return out, nil
}

// Upsert applies m to a single (res, day) key, creating the row from its default.
func (l *Ledger) Upsert(ctx context.Context, res models.Resource, day time.Time, m Mutation) (models.AvailabilityRecord, error) {
	recs, err := l.ApplyRange(ctx, res, []time.Time{day}, m)
	if err != nil {
		return models.AvailabilityRecord{}, err
	}
	return recs[0], nil
}

// ApplyRange applies m to every day or to none. All keys are locked in ascending date
// order before anything is written; if any day would break the capacity invariant the
// unit is abandoned and CapacityExceededError lists every failing day.
func (l *Ledger) ApplyRange(ctx context.Context, res models.Resource, days []time.Time, m Mutation) ([]models.AvailabilityRecord, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	keys := normalizeDays(days)
	if len(keys) == 0 {
		return nil, domain.InvalidRangeError{Field: "dateRange", Msg: "rentang tanggal kosong"}
	}

	var out []models.AvailabilityRecord
	err := l.store.WithTx(ctx, func(txCtx context.Context) error {
		current, err := l.store.LockDays(txCtx, res, keys)
		if err != nil {
			return err
		}

		next := make([]models.AvailabilityRecord, 0, len(current))
		var failed []string
		for _, rec := range current {
			updated, ok := m.Apply(rec)
			if !ok {
				failed = append(failed, calendar.FormatDay(rec.Date))
				continue
			}
			next = append(next, updated)
		}
		if len(failed) > 0 {
			return domain.CapacityExceededError{ResourceID: res.ID, Dates: failed}
		}

		if err := l.store.SaveDays(txCtx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeDays truncates, sorts and dedupes so locks are always taken in one order.
func normalizeDays(days []time.Time) []time.Time {
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		out = append(out, calendar.Truncate(d))
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(out, func(a, b time.Time) bool { return a.Equal(b) })
}
