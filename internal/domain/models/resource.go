package models

import "time"

// ResourceKind describes what is being sold.
type ResourceKind string

const (
	ResourceKindRoom      ResourceKind = "room"
	ResourceKindSeatBlock ResourceKind = "seat_block"
)

// CapacityUnit tells how capacity is consumed over time.
type CapacityUnit string

const (
	// UnitPerNight: hotel room types, holds span [checkIn, checkOut).
	UnitPerNight CapacityUnit = "per_night"
	// UnitPerDeparture: flight seat blocks, holds cover a single departure date.
	UnitPerDeparture CapacityUnit = "per_departure"
)

// Resource is a sellable unit type owned by the catalog. Read-only to the engine.
type Resource struct {
	ID            string       `json:"id" yaml:"id"`
	Name          string       `json:"name" yaml:"name"`
	Kind          ResourceKind `json:"kind" yaml:"kind"`
	Unit          CapacityUnit `json:"unit" yaml:"unit"`
	Capacity      int          `json:"capacity" yaml:"capacity"`
	BasePrice     int64        `json:"basePrice" yaml:"base_price"`
	Currency      string       `json:"currency" yaml:"currency"`
	BlackoutDates []time.Time  `json:"blackoutDates,omitempty" yaml:"-"`
}

// SingleDay reports whether holds on this resource must cover exactly one date.
func (r Resource) SingleDay() bool {
	return r.Unit == UnitPerDeparture
}
