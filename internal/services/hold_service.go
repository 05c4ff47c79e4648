package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"inventory/internal/calendar"
	"inventory/internal/catalog"
	"inventory/internal/clock"
	"inventory/internal/domain"
	"inventory/internal/domain/models"
	"inventory/internal/ledger"
	"inventory/internal/observability"
	"inventory/internal/utils"
)

const (
	maxIdempotencyKeyLen = 128
	maxParkedHolds       = 1000
)

// HoldService owns the hold lifecycle HELD -> COMMITTED | RELEASED | EXPIRED.
// Every transition that touches capacity runs in one store transaction together with
// the hold row, so a hold and its ledger effect are never observed apart.
type HoldService struct {
	store      InventoryStore
	ledger     *ledger.Ledger
	catalog    catalog.Catalog
	clock      clock.Clock
	defaultTTL time.Duration
	maxTTL     time.Duration
	metrics    *observability.InventoryMetrics

	// parked holds failed to expire and are left out of sweeps until their time passes.
	parkMu    sync.Mutex
	parked    map[string]time.Time
	retryWait time.Duration
}

type HoldServiceOption func(*HoldService)

// WithDefaultTTL sets the expiry for holds placed without one. Zero keeps such holds
// open until committed or released.
func WithDefaultTTL(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d >= 0 {
			s.defaultTTL = d
		}
	}
}

// WithMaxTTL caps caller-supplied TTLs. Zero disables the cap.
func WithMaxTTL(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d >= 0 {
			s.maxTTL = d
		}
	}
}

// WithExpiryRetryDelay sets how long a hold that failed to expire is left out of later
// sweeps before it is tried again.
func WithExpiryRetryDelay(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.retryWait = d
		}
	}
}

func WithMetrics(m *observability.InventoryMetrics) HoldServiceOption {
	return func(s *HoldService) {
		s.metrics = m
	}
}

func NewHoldService(store InventoryStore, cat catalog.Catalog, clk clock.Clock, opts ...HoldServiceOption) *HoldService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	svc := &HoldService{
		store:     store,
		ledger:    ledger.New(store),
		catalog:   cat,
		clock:     clk,
		maxTTL:    24 * time.Hour,
		parked:    map[string]time.Time{},
		retryWait: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// PlaceHoldInput describes a hold request. TTL zero means the service default.
type PlaceHoldInput struct {
	ResourceID     string
	Range          calendar.Range
	Quantity       int
	TTL            time.Duration
	IdempotencyKey string
}

// PlaceHold consumes Quantity units on every date of Range or on none. Capacity is
// re-validated under the row locks, so a stale availability check cannot oversell.
// A repeated IdempotencyKey returns the hold created by the first request.
func (s *HoldService) PlaceHold(ctx context.Context, in PlaceHoldInput) (models.Hold, error) {
	began := time.Now()
	ctx, span := tracer().Start(ctx, "hold.place", trace.WithAttributes(
		attribute.String("resource.id", in.ResourceID),
		attribute.String("range", in.Range.String()),
		attribute.Int("quantity", in.Quantity),
	))
	h, err := s.placeHold(ctx, in)
	if err == nil {
		span.SetAttributes(attribute.String("hold.id", h.ID))
	}
	finish(span, s.metrics, "place_hold", began, err)
	return h, err
}

var errIdempotentRace = errors.New("idempotency key taken concurrently")

func (s *HoldService) placeHold(ctx context.Context, in PlaceHoldInput) (models.Hold, error) {
	res, err := resolve(ctx, s.catalog, strings.TrimSpace(in.ResourceID), in.Range, in.Quantity)
	if err != nil {
		return models.Hold{}, err
	}
	ttl, err := s.ttl(in.TTL)
	if err != nil {
		return models.Hold{}, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return models.Hold{}, domain.ValidationError{Field: "idempotencyKey", Msg: fmt.Sprintf("maksimal %d karakter", maxIdempotencyKeyLen)}
	}

	now := s.clock.Now()
	hold := models.Hold{
		ID:             uuid.NewString(),
		ResourceID:     res.ID,
		StartDate:      calendar.Truncate(in.Range.Start),
		EndDate:        calendar.Truncate(in.Range.End),
		Quantity:       in.Quantity,
		Status:         models.HoldStatusHeld,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if ttl > 0 {
		deadline := now.Add(ttl)
		hold.ExpiresAt = &deadline
	}

	var result models.Hold
	replayed := false
	err = s.store.WithTx(ctx, func(txCtx context.Context) error {
		if key != "" {
			existing, err := s.store.FindHoldByIdempotencyKey(txCtx, res.ID, key)
			if err != nil {
				return err
			}
			if existing != nil {
				if !sameRequest(*existing, hold) {
					return domain.ConflictError{Resource: "hold", Msg: "idempotency key dipakai untuk permintaan lain"}
				}
				result, replayed = *existing, true
				return nil
			}
		}

		if _, err := s.ledger.ApplyRange(txCtx, res, in.Range.Days(), ledger.Hold(in.Quantity)); err != nil {
			return err
		}
		if err := s.store.CreateHold(txCtx, hold); err != nil {
			if key != "" && domain.IsConflict(err) {
				return errIdempotentRace
			}
			return err
		}
		result = hold
		return nil
	})

	// Another request with the same key won the race; its transaction is committed,
	// ours was rolled back, so answering with its hold is safe.
	if key != "" && (errors.Is(err, errIdempotentRace) || domain.IsConflict(err)) {
		existing, findErr := s.store.FindHoldByIdempotencyKey(ctx, res.ID, key)
		if findErr != nil {
			return models.Hold{}, findErr
		}
		if existing != nil && sameRequest(*existing, hold) {
			result, replayed, err = *existing, true, nil
		} else if errors.Is(err, errIdempotentRace) {
			err = domain.ConflictError{Resource: "hold", Msg: "idempotency key dipakai untuk permintaan lain"}
		}
	}
	if err != nil {
		if domain.IsCapacityExceeded(err) {
			utils.LogEvent(utils.RequestID(ctx), "hold", "place_rejected",
				fmt.Sprintf("resource=%s range=%s qty=%d dates=%s", res.ID, in.Range, in.Quantity, strings.Join(domain.UnavailableDates(err), ",")))
		}
		return models.Hold{}, err
	}

	if replayed {
		utils.LogEvent(utils.RequestID(ctx), "hold", "place_replayed", "hold_id="+result.ID)
		return result, nil
	}
	s.metrics.Transition(string(models.HoldStatusHeld), result.Quantity*in.Range.Nights())
	utils.LogEvent(utils.RequestID(ctx), "hold", "place",
		fmt.Sprintf("hold_id=%s resource=%s range=%s qty=%d", result.ID, res.ID, in.Range, in.Quantity))
	return result, nil
}

func (s *HoldService) ttl(requested time.Duration) (time.Duration, error) {
	if requested < 0 {
		return 0, domain.ValidationError{Field: "holdTtlSeconds", Msg: "tidak boleh negatif"}
	}
	ttl := requested
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if s.maxTTL > 0 && ttl > s.maxTTL {
		return 0, domain.ValidationError{Field: "holdTtlSeconds", Msg: fmt.Sprintf("maksimal %s", s.maxTTL)}
	}
	return ttl, nil
}

func sameRequest(existing, req models.Hold) bool {
	return existing.ResourceID == req.ResourceID &&
		existing.Quantity == req.Quantity &&
		existing.StartDate.Equal(req.StartDate) &&
		existing.EndDate.Equal(req.EndDate)
}

// Get returns a hold by id.
func (s *HoldService) Get(ctx context.Context, id string) (models.Hold, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Hold{}, domain.ValidationError{Field: "holdId", Msg: "wajib diisi"}
	}
	return s.store.GetHold(ctx, id)
}

// Commit finalizes a HELD hold without touching the ledger. A hold whose deadline has
// already passed is expired instead and the commit fails with InvalidState.
func (s *HoldService) Commit(ctx context.Context, id string) (models.Hold, error) {
	began := time.Now()
	ctx, span := tracer().Start(ctx, "hold.commit", trace.WithAttributes(attribute.String("hold.id", id)))
	h, err := s.commit(ctx, strings.TrimSpace(id))
	finish(span, s.metrics, "commit", began, err)
	return h, err
}

func (s *HoldService) commit(ctx context.Context, id string) (models.Hold, error) {
	if id == "" {
		return models.Hold{}, domain.ValidationError{Field: "holdId", Msg: "wajib diisi"}
	}

	var out models.Hold
	lapsed := false
	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		h, err := s.store.GetHoldForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if h.Status != models.HoldStatusHeld {
			return domain.InvalidStateError{HoldID: id, Status: string(h.Status), Op: "commit"}
		}

		now := s.clock.Now()
		if h.DueAt(now) {
			out, err = s.restore(txCtx, h, models.HoldStatusExpired, now)
			lapsed = true
			return err
		}
		if err := s.store.UpdateHoldStatus(txCtx, id, models.HoldStatusCommitted, now); err != nil {
			return err
		}
		h.Status = models.HoldStatusCommitted
		h.UpdatedAt = now
		out = h
		return nil
	})
	if err != nil {
		return models.Hold{}, err
	}

	if lapsed {
		s.metrics.Transition(string(models.HoldStatusExpired), out.Quantity*nights(out))
		utils.LogEvent(utils.RequestID(ctx), "hold", "commit_expired", "hold_id="+id)
		return out, domain.InvalidStateError{HoldID: id, Status: string(models.HoldStatusExpired), Op: "commit"}
	}
	s.metrics.Transition(string(models.HoldStatusCommitted), 0)
	utils.LogEvent(utils.RequestID(ctx), "hold", "commit", "hold_id="+id)
	return out, nil
}

// Release gives a HELD hold's capacity back exactly once. Releasing a hold that is
// already RELEASED, EXPIRED or COMMITTED changes nothing and returns it as is.
func (s *HoldService) Release(ctx context.Context, id string) (models.Hold, error) {
	began := time.Now()
	ctx, span := tracer().Start(ctx, "hold.release", trace.WithAttributes(attribute.String("hold.id", id)))
	h, _, err := s.finalize(ctx, strings.TrimSpace(id), models.HoldStatusReleased)
	finish(span, s.metrics, "release", began, err)
	return h, err
}

// Expire is Release with the EXPIRED terminal status, used by the sweeper.
func (s *HoldService) Expire(ctx context.Context, id string) (models.Hold, error) {
	began := time.Now()
	ctx, span := tracer().Start(ctx, "hold.expire", trace.WithAttributes(attribute.String("hold.id", id)))
	h, _, err := s.finalize(ctx, strings.TrimSpace(id), models.HoldStatusExpired)
	finish(span, s.metrics, "expire", began, err)
	return h, err
}

// finalize reports whether this call performed the transition.
func (s *HoldService) finalize(ctx context.Context, id string, target models.HoldStatus) (models.Hold, bool, error) {
	if id == "" {
		return models.Hold{}, false, domain.ValidationError{Field: "holdId", Msg: "wajib diisi"}
	}

	var out models.Hold
	changed := false
	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		h, err := s.store.GetHoldForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if h.Status != models.HoldStatusHeld {
			out = h
			return nil
		}
		out, err = s.restore(txCtx, h, target, s.clock.Now())
		changed = err == nil
		return err
	})
	if err != nil {
		return models.Hold{}, false, err
	}

	action := strings.ToLower(string(target))
	if !changed {
		utils.LogEvent(utils.RequestID(ctx), "hold", action+"_noop", fmt.Sprintf("hold_id=%s status=%s", id, out.Status))
		return out, false, nil
	}
	s.metrics.Transition(string(target), out.Quantity*nights(out))
	utils.LogEvent(utils.RequestID(ctx), "hold", action, fmt.Sprintf("hold_id=%s resource=%s qty=%d", id, out.ResourceID, out.Quantity))
	return out, true, nil
}

// restore gives h's units back on every date and moves it to status. Must run inside
// the transaction that locked h. The hold created every row it touches; restore reads
// nothing outside that transaction.
func (s *HoldService) restore(txCtx context.Context, h models.Hold, status models.HoldStatus, now time.Time) (models.Hold, error) {
	res := models.Resource{ID: h.ResourceID}
	rng := calendar.NewRange(h.StartDate, h.EndDate)
	if _, err := s.ledger.ApplyRange(txCtx, res, rng.Days(), ledger.Restore(h.Quantity)); err != nil {
		return models.Hold{}, err
	}
	if err := s.store.UpdateHoldStatus(txCtx, h.ID, status, now); err != nil {
		return models.Hold{}, err
	}
	h.Status = status
	h.UpdatedAt = now
	return h, nil
}

// ExpireDue expires up to limit HELD holds whose deadline has passed and returns how
// many it expired. Holds finalized concurrently by another instance are skipped.
func (s *HoldService) ExpireDue(ctx context.Context, limit int) (int, error) {
	began := time.Now()
	ctx, span := tracer().Start(ctx, "hold.expire_due", trace.WithAttributes(attribute.Int("limit", limit)))
	n, err := s.expireDue(ctx, limit)
	span.SetAttributes(attribute.Int("expired", n))
	finish(span, s.metrics, "expire_due", began, err)
	return n, err
}

func (s *HoldService) expireDue(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	ids, err := s.store.ListDueHolds(ctx, now, limit, s.parkedIDs(now))
	if err != nil {
		return 0, err
	}
	expired := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, changed, err := s.finalize(ctx, id, models.HoldStatusExpired)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", id, err))
			// An unreachable store fails every hold alike; only park holds that fail on their own.
			if !domain.IsStorageUnavailable(err) {
				s.park(id, now)
			}
			continue
		}
		s.unpark(id)
		if changed {
			expired++
		}
	}
	return expired, errors.Join(errs...)
}

// parkedIDs returns the holds still parked at now and drops the ones whose wait is over.
func (s *HoldService) parkedIDs(now time.Time) []string {
	s.parkMu.Lock()
	defer s.parkMu.Unlock()
	ids := make([]string, 0, len(s.parked))
	for id, until := range s.parked {
		if !now.Before(until) {
			delete(s.parked, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *HoldService) park(id string, now time.Time) {
	s.parkMu.Lock()
	defer s.parkMu.Unlock()
	if _, ok := s.parked[id]; !ok && len(s.parked) >= maxParkedHolds {
		return
	}
	s.parked[id] = now.Add(s.retryWait)
	utils.LogEvent("", "hold", "expire_parked", fmt.Sprintf("hold_id=%s retry_after=%s", id, s.retryWait))
}

func (s *HoldService) unpark(id string) {
	s.parkMu.Lock()
	delete(s.parked, id)
	s.parkMu.Unlock()
}

func nights(h models.Hold) int {
	return calendar.NewRange(h.StartDate, h.EndDate).Nights()
}
