package models

import "time"

// AvailabilityRecord mirrors one availability row keyed by (resource, date).
// Persisted is false for synthesized defaults that have no row yet.
type AvailabilityRecord struct {
	ResourceID    string
	Date          time.Time
	TotalCapacity int
	Booked        int
	PriceOverride *int64
	Blocked       bool
	Persisted     bool
}

// DefaultRecord is the record implied by an absent row: full capacity, no override, open.
func DefaultRecord(res Resource, day time.Time) AvailabilityRecord {
	return AvailabilityRecord{
		ResourceID:    res.ID,
		Date:          day,
		TotalCapacity: res.Capacity,
	}
}

// Available is the number of units still sellable on this date.
func (r AvailabilityRecord) Available() int {
	return r.TotalCapacity - r.Booked
}

// EffectivePrice returns the override when present, else the resource base price.
func (r AvailabilityRecord) EffectivePrice(base int64) int64 {
	if r.PriceOverride != nil {
		return *r.PriceOverride
	}
	return base
}

// Sellable reports whether qty units can be sold on this date.
func (r AvailabilityRecord) Sellable(qty int) bool {
	return !r.Blocked && r.Available() >= qty
}

// DateAvailability is the per-date projection returned by availability queries.
type DateAvailability struct {
	Date          string `json:"date"`
	TotalCapacity int    `json:"totalCapacity"`
	Booked        int    `json:"booked"`
	Available     int    `json:"available"`
	Blocked       bool   `json:"blocked"`
	Price         int64  `json:"price"`
	PriceOverride bool   `json:"priceOverride"`
	Sellable      bool   `json:"sellable"`
}

// AvailabilityResult answers "can quantity units be sold for every date in the range".
type AvailabilityResult struct {
	ResourceID       string             `json:"resourceId"`
	Quantity         int                `json:"quantity"`
	PerDate          []DateAvailability `json:"dates"`
	IsFullyAvailable bool               `json:"available"`
	PricePerUnit     int64              `json:"pricePerUnit"`
	TotalPrice       int64              `json:"totalPrice"`
	Currency         string             `json:"currency,omitempty"`
	UnavailableDates []string           `json:"unavailableDates"`
}
