package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"inventory/internal/calendar"
	"inventory/internal/catalog"
	"inventory/internal/domain"
	"inventory/internal/domain/models"
	"inventory/internal/ledger"
	"inventory/internal/observability"
	"inventory/internal/utils"
)

// AvailabilityService menjawab "apakah N unit bisa dijual untuk setiap tanggal" tanpa
// mengubah ledger. Reads are unlocked and may be slightly stale.
type AvailabilityService struct {
	Catalog catalog.Catalog
	Ledger  *ledger.Ledger
	Metrics *observability.InventoryMetrics
}

func NewAvailabilityService(cat catalog.Catalog, l *ledger.Ledger, m *observability.InventoryMetrics) *AvailabilityService {
	return &AvailabilityService{Catalog: cat, Ledger: l, Metrics: m}
}

// CheckAvailability marks a date unavailable when it is blocked or has fewer than
// quantity free units. The stay is available only when no date is.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, resourceID string, rng calendar.Range, quantity int) (models.AvailabilityResult, error) {
	began := time.Now()
	ctx, span := tracer().Start(ctx, "availability.check", trace.WithAttributes(
		attribute.String("resource.id", resourceID),
		attribute.String("range", rng.String()),
		attribute.Int("quantity", quantity),
	))
	result, err := s.check(ctx, resourceID, rng, quantity)
	finish(span, s.Metrics, "check_availability", began, err)
	return result, err
}

func (s *AvailabilityService) check(ctx context.Context, resourceID string, rng calendar.Range, quantity int) (models.AvailabilityResult, error) {
	res, err := resolve(ctx, s.Catalog, resourceID, rng, quantity)
	if err != nil {
		return models.AvailabilityResult{}, err
	}
	recs, err := s.Ledger.Range(ctx, res, rng.Days())
	if err != nil {
		return models.AvailabilityResult{}, err
	}

	out := models.AvailabilityResult{
		ResourceID:       res.ID,
		Quantity:         quantity,
		PerDate:          make([]models.DateAvailability, 0, len(recs)),
		IsFullyAvailable: true,
		Currency:         res.Currency,
		UnavailableDates: []string{},
	}
	for _, rec := range recs {
		day := project(rec, res, quantity)
		out.PerDate = append(out.PerDate, day)
		out.PricePerUnit += day.Price
		if !day.Sellable {
			out.IsFullyAvailable = false
			out.UnavailableDates = append(out.UnavailableDates, day.Date)
		}
	}
	out.TotalPrice = out.PricePerUnit * int64(quantity)

	utils.LogEvent(utils.RequestID(ctx), "availability", "check",
		fmt.Sprintf("resource=%s range=%s qty=%d available=%t total=%s", res.ID, rng, quantity, out.IsFullyAvailable, utils.FormatAmount(out.TotalPrice, out.Currency)))
	return out, nil
}

// Calendar returns the per-date ledger view of a resource for back-office display.
func (s *AvailabilityService) Calendar(ctx context.Context, resourceID string, rng calendar.Range) ([]models.DateAvailability, error) {
	began := time.Now()
	ctx, span := tracer().Start(ctx, "availability.calendar", trace.WithAttributes(
		attribute.String("resource.id", resourceID),
		attribute.String("range", rng.String()),
	))
	out, err := s.calendar(ctx, resourceID, rng)
	finish(span, s.Metrics, "calendar", began, err)
	return out, err
}

func (s *AvailabilityService) calendar(ctx context.Context, resourceID string, rng calendar.Range) ([]models.DateAvailability, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	res, err := s.Catalog.Resource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	recs, err := s.Ledger.Range(ctx, res, rng.Days())
	if err != nil {
		return nil, err
	}
	out := make([]models.DateAvailability, 0, len(recs))
	for _, rec := range recs {
		out = append(out, project(rec, res, 1))
	}
	return out, nil
}

// DayUpdate is an out-of-band administrative change to one date.
type DayUpdate struct {
	TotalCapacity      *int
	PriceOverride      *int64
	ClearPriceOverride bool
	Blocked            *bool
}

func (u DayUpdate) empty() bool {
	return u.TotalCapacity == nil && u.PriceOverride == nil && !u.ClearPriceOverride && u.Blocked == nil
}

// UpdateDay applies an administrative change through the ledger. Lowering capacity
// below what is already booked fails with CapacityExceeded and changes nothing.
func (s *AvailabilityService) UpdateDay(ctx context.Context, resourceID string, day time.Time, u DayUpdate) (models.DateAvailability, error) {
	began := time.Now()
	ctx, span := tracer().Start(ctx, "availability.update_day", trace.WithAttributes(
		attribute.String("resource.id", resourceID),
		attribute.String("date", calendar.FormatDay(day)),
	))
	out, err := s.updateDay(ctx, resourceID, day, u)
	finish(span, s.Metrics, "update_day", began, err)
	return out, err
}

func (s *AvailabilityService) updateDay(ctx context.Context, resourceID string, day time.Time, u DayUpdate) (models.DateAvailability, error) {
	if day.IsZero() {
		return models.DateAvailability{}, domain.InvalidRangeError{Field: "date", Msg: "tanggal wajib diisi"}
	}
	if u.empty() {
		return models.DateAvailability{}, domain.ValidationError{Msg: "tidak ada perubahan"}
	}
	res, err := s.Catalog.Resource(ctx, resourceID)
	if err != nil {
		return models.DateAvailability{}, err
	}
	rec, err := s.Ledger.Upsert(ctx, res, day, ledger.Mutation{
		TotalCapacity:      u.TotalCapacity,
		PriceOverride:      u.PriceOverride,
		ClearPriceOverride: u.ClearPriceOverride,
		Blocked:            u.Blocked,
	})
	if err != nil {
		return models.DateAvailability{}, err
	}
	utils.LogEvent(utils.RequestID(ctx), "availability", "update_day",
		fmt.Sprintf("resource=%s date=%s total=%d blocked=%t", res.ID, calendar.FormatDay(rec.Date), rec.TotalCapacity, rec.Blocked))
	return project(rec, res, 1), nil
}
