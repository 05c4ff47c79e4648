package handlers

import (
	"inventory/internal/holdtoken"
	"inventory/internal/services"
)

// Inventory bundles what the availability and hold endpoints need.
type Inventory struct {
	Availability *services.AvailabilityService
	Holds        *services.HoldService
	// Tokens signs hold receipts; nil disables receipts.
	Tokens *holdtoken.Issuer
	Store  Pinger
}
