package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"inventory/internal/calendar"
	"inventory/internal/catalog"
	"inventory/internal/domain"
	"inventory/internal/domain/models"
	"inventory/internal/ledger"
	"inventory/internal/observability"
)

// HoldStore persists holds. Calls made with a context from ledger.Store.WithTx
// join that transaction.
type HoldStore interface {
	CreateHold(ctx context.Context, h models.Hold) error
	FindHoldByIdempotencyKey(ctx context.Context, resourceID, key string) (*models.Hold, error)
	GetHold(ctx context.Context, id string) (models.Hold, error)
	// GetHoldForUpdate must run inside WithTx; the hold stays locked until the unit ends.
	GetHoldForUpdate(ctx context.Context, id string) (models.Hold, error)
	UpdateHoldStatus(ctx context.Context, id string, status models.HoldStatus, at time.Time) error
	// ListDueHolds returns HELD holds whose deadline is at or before now, oldest first.
	// Ids in skip are left out.
	ListDueHolds(ctx context.Context, now time.Time, limit int, skip []string) ([]string, error)
}

// InventoryStore is one backend holding both availability rows and holds, so a
// hold and its ledger effect commit together.
type InventoryStore interface {
	ledger.Store
	HoldStore
	Ping(ctx context.Context) error
}

const tracerName = "inventory/services"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// finish closes span and records metrics for op.
func finish(span trace.Span, m *observability.InventoryMetrics, op string, began time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.Code(err))
	}
	span.End()
	m.Observe(op, time.Since(began), err)
}

// resolve validates a request range against the resource's capacity unit.
func resolve(ctx context.Context, cat catalog.Catalog, resourceID string, rng calendar.Range, quantity int) (models.Resource, error) {
	if quantity <= 0 {
		return models.Resource{}, domain.InvalidRangeError{Field: "quantity", Msg: "quantity harus lebih dari 0"}
	}
	if err := rng.Validate(); err != nil {
		return models.Resource{}, err
	}
	if resourceID == "" {
		return models.Resource{}, domain.ValidationError{Field: "resourceId", Msg: "wajib diisi"}
	}
	res, err := cat.Resource(ctx, resourceID)
	if err != nil {
		return models.Resource{}, err
	}
	if res.SingleDay() && rng.Nights() != 1 {
		return models.Resource{}, domain.InvalidRangeError{Field: "endDate", Msg: "seat block hanya untuk satu tanggal keberangkatan"}
	}
	return res, nil
}

func project(rec models.AvailabilityRecord, res models.Resource, qty int) models.DateAvailability {
	return models.DateAvailability{
		Date:          calendar.FormatDay(rec.Date),
		TotalCapacity: rec.TotalCapacity,
		Booked:        rec.Booked,
		Available:     rec.Available(),
		Blocked:       rec.Blocked,
		Price:         rec.EffectivePrice(res.BasePrice),
		PriceOverride: rec.PriceOverride != nil,
		Sellable:      rec.Sellable(qty),
	}
}
