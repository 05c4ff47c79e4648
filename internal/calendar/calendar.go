// Package calendar turns check-in/check-out pairs into the per-day keys used by the
// availability ledger.
package calendar

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"inventory/internal/domain"
)

const (
	// LayoutDay is the wire and storage format for calendar days.
	LayoutDay = "2006-01-02"

	// MaxNights bounds a single range so one request cannot lock an unbounded key set.
	MaxNights = 366
)

// Truncate drops the time-of-day and zone of t, keeping its civil date as UTC midnight.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses YYYY-MM-DD into a UTC midnight.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(LayoutDay, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("format tanggal tidak valid (YYYY-MM-DD): %q", s)
	}
	return t, nil
}

// FormatDay renders a day key.
func FormatDay(t time.Time) string {
	return Truncate(t).Format(LayoutDay)
}

// Range is a half-open [Start, End) interval of days.
type Range struct {
	Start time.Time
	End   time.Time
}

// NewRange builds a range from check-in (inclusive) and check-out (exclusive).
func NewRange(start, end time.Time) Range {
	return Range{Start: Truncate(start), End: Truncate(end)}
}

// Single covers exactly one day, used for per-departure resources.
func Single(day time.Time) Range {
	d := Truncate(day)
	return Range{Start: d, End: d.AddDate(0, 0, 1)}
}

// ParseRange parses two YYYY-MM-DD strings into a range.
func ParseRange(start, end string) (Range, error) {
	s, err := ParseDay(start)
	if err != nil {
		return Range{}, domain.InvalidRangeError{Field: "startDate", Msg: err.Error()}
	}
	e, err := ParseDay(end)
	if err != nil {
		return Range{}, domain.InvalidRangeError{Field: "endDate", Msg: err.Error()}
	}
	return NewRange(s, e), nil
}

// Empty reports whether the range covers no day.
func (r Range) Empty() bool {
	return !Truncate(r.End).After(Truncate(r.Start))
}

// Nights is the number of days in the range.
func (r Range) Nights() int {
	if r.Empty() {
		return 0
	}
	return int(Truncate(r.End).Sub(Truncate(r.Start)).Hours() / 24)
}

// Validate rejects empty and oversized ranges.
func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return domain.InvalidRangeError{Field: "dateRange", Msg: "startDate dan endDate wajib diisi"}
	}
	if r.Empty() {
		return domain.InvalidRangeError{Field: "endDate", Msg: "endDate harus setelah startDate"}
	}
	if r.Nights() > MaxNights {
		return domain.InvalidRangeError{Field: "dateRange", Msg: fmt.Sprintf("maksimal %d malam", MaxNights)}
	}
	return nil
}

// Days returns start, start+1, ..., end-1. Every call returns a new slice.
func (r Range) Days() []time.Time {
	n := r.Nights()
	out := make([]time.Time, 0, n)
	for d := range r.All() {
		out = append(out, d)
	}
	return out
}

// All yields the days of the range in ascending order.
func (r Range) All() iter.Seq[time.Time] {
	start, end := Truncate(r.Start), Truncate(r.End)
	return func(yield func(time.Time) bool) {
		for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}

// Contains reports whether day falls inside the range.
func (r Range) Contains(day time.Time) bool {
	d := Truncate(day)
	return !d.Before(Truncate(r.Start)) && d.Before(Truncate(r.End))
}

func (r Range) String() string {
	return "[" + FormatDay(r.Start) + "," + FormatDay(r.End) + ")"
}
