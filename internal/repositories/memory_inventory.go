package repositories

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"inventory/internal/calendar"
	"inventory/internal/domain"
	"inventory/internal/domain/models"
)

type dayKey struct {
	resourceID string
	day        string
}

func compareDayKeys(a, b dayKey) int {
	if a.resourceID != b.resourceID {
		if a.resourceID < b.resourceID {
			return -1
		}
		return 1
	}
	switch {
	case a.day < b.day:
		return -1
	case a.day > b.day:
		return 1
	}
	return 0
}

// MemoryInventory keeps availability rows and holds in process memory.
//
// Each (resource, date) key and each hold id has its own lock. A unit of work takes
// day locks in ascending (resource, date) order, stages its writes, and applies them
// under mu only when the unit succeeds, so a failed unit leaves nothing behind.
// Hold locks are always taken before day locks.
type MemoryInventory struct {
	mu        sync.Mutex
	records   map[dayKey]models.AvailabilityRecord
	holds     map[string]models.Hold
	idem      map[string]string
	dayLocks  map[dayKey]chan struct{}
	holdLocks map[string]chan struct{}
}

func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{
		records:   map[dayKey]models.AvailabilityRecord{},
		holds:     map[string]models.Hold{},
		idem:      map[string]string{},
		dayLocks:  map[dayKey]chan struct{}{},
		holdLocks: map[string]chan struct{}{},
	}
}

type memTxKey struct{}

type memTx struct {
	held        []chan struct{}
	lockedDays  map[dayKey]bool
	lockedHolds map[string]bool
	days        map[dayKey]models.AvailabilityRecord
	holds       map[string]models.Hold
	holdOrder   []string
}

func memTxFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

func idemKey(resourceID, key string) string {
	return resourceID + "|" + key
}

// WithTx runs fn as one unit; nested calls join the outer unit.
func (s *MemoryInventory) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if memTxFrom(ctx) != nil {
		return fn(ctx)
	}
	tx := &memTx{
		lockedDays:  map[dayKey]bool{},
		lockedHolds: map[string]bool{},
		days:        map[dayKey]models.AvailabilityRecord{},
		holds:       map[string]models.Hold{},
	}
	defer s.unlockAll(tx)

	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryInventory) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range tx.holdOrder {
		h := tx.holds[id]
		if h.IdempotencyKey == "" {
			continue
		}
		if owner, ok := s.idem[idemKey(h.ResourceID, h.IdempotencyKey)]; ok && owner != id {
			return domain.ConflictError{Resource: "hold", Msg: "idempotency key sudah dipakai"}
		}
	}

	for k, rec := range tx.days {
		rec.Persisted = true
		s.records[k] = rec
	}
	for _, id := range tx.holdOrder {
		h := tx.holds[id]
		s.holds[id] = h
		if h.IdempotencyKey != "" {
			s.idem[idemKey(h.ResourceID, h.IdempotencyKey)] = id
		}
	}
	return nil
}

func (s *MemoryInventory) unlockAll(tx *memTx) {
	for i := len(tx.held) - 1; i >= 0; i-- {
		<-tx.held[i]
	}
	tx.held = nil
}

func (s *MemoryInventory) dayLock(k dayKey) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.dayLocks[k]
	if !ok {
		ch = make(chan struct{}, 1)
		s.dayLocks[k] = ch
	}
	return ch
}

func (s *MemoryInventory) holdLock(id string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.holdLocks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.holdLocks[id] = ch
	}
	return ch
}

func acquire(ctx context.Context, ch chan struct{}, op string) error {
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return domain.StorageUnavailableError{Op: op, Err: ctx.Err()}
	}
}

func requireTx(ctx context.Context, op string) (*memTx, error) {
	tx := memTxFrom(ctx)
	if tx == nil {
		return nil, domain.InternalError{Msg: op + " harus dipanggil di dalam transaksi"}
	}
	return tx, nil
}

// ReadDays returns committed rows overlaid with the caller's staged writes, if any.
func (s *MemoryInventory) ReadDays(ctx context.Context, resourceID string, days []time.Time) (map[string]models.AvailabilityRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.StorageUnavailableError{Op: "read availability", Err: err}
	}
	tx := memTxFrom(ctx)
	out := make(map[string]models.AvailabilityRecord, len(days))

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range days {
		k := dayKey{resourceID: resourceID, day: calendar.FormatDay(d)}
		if tx != nil {
			if rec, ok := tx.days[k]; ok {
				out[k.day] = rec
				continue
			}
		}
		if rec, ok := s.records[k]; ok {
			out[k.day] = rec
		}
	}
	return out, nil
}

// LockDays takes the per-day locks in ascending order and returns current records.
func (s *MemoryInventory) LockDays(ctx context.Context, res models.Resource, days []time.Time) ([]models.AvailabilityRecord, error) {
	tx, err := requireTx(ctx, "LockDays")
	if err != nil {
		return nil, err
	}

	keys := make([]dayKey, 0, len(days))
	for _, d := range days {
		keys = append(keys, dayKey{resourceID: res.ID, day: calendar.FormatDay(d)})
	}
	slices.SortFunc(keys, compareDayKeys)
	keys = slices.Compact(keys)

	for _, k := range keys {
		if tx.lockedDays[k] {
			continue
		}
		ch := s.dayLock(k)
		if err := acquire(ctx, ch, "lock availability"); err != nil {
			return nil, err
		}
		tx.held = append(tx.held, ch)
		tx.lockedDays[k] = true
	}

	out := make([]models.AvailabilityRecord, 0, len(keys))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if rec, ok := tx.days[k]; ok {
			out = append(out, rec)
			continue
		}
		if rec, ok := s.records[k]; ok {
			out = append(out, rec)
			continue
		}
		day, _ := calendar.ParseDay(k.day)
		out = append(out, models.DefaultRecord(res, day))
	}
	return out, nil
}

// SaveDays stages records; they become visible to others when the unit commits.
func (s *MemoryInventory) SaveDays(ctx context.Context, recs []models.AvailabilityRecord) error {
	tx, err := requireTx(ctx, "SaveDays")
	if err != nil {
		return err
	}
	for _, rec := range recs {
		k := dayKey{resourceID: rec.ResourceID, day: calendar.FormatDay(rec.Date)}
		if !tx.lockedDays[k] {
			return domain.InternalError{Msg: "SaveDays tanpa lock untuk " + k.resourceID + " " + k.day}
		}
		tx.days[k] = rec
	}
	return nil
}

func (s *MemoryInventory) stageHold(tx *memTx, h models.Hold) {
	if _, ok := tx.holds[h.ID]; !ok {
		tx.holdOrder = append(tx.holdOrder, h.ID)
	}
	tx.holds[h.ID] = h
}

// CreateHold stages a new hold row.
func (s *MemoryInventory) CreateHold(ctx context.Context, h models.Hold) error {
	return s.WithTx(ctx, func(txCtx context.Context) error {
		tx := memTxFrom(txCtx)
		s.mu.Lock()
		_, exists := s.holds[h.ID]
		owner, taken := "", false
		if h.IdempotencyKey != "" {
			owner, taken = s.idem[idemKey(h.ResourceID, h.IdempotencyKey)]
		}
		s.mu.Unlock()

		if _, staged := tx.holds[h.ID]; exists || staged {
			return domain.ConflictError{Resource: "hold", Msg: "id sudah ada"}
		}
		if taken && owner != h.ID {
			return domain.ConflictError{Resource: "hold", Msg: "idempotency key sudah dipakai"}
		}
		s.stageHold(tx, h)
		return nil
	})
}

// FindHoldByIdempotencyKey returns nil when the key was never used for the resource.
func (s *MemoryInventory) FindHoldByIdempotencyKey(ctx context.Context, resourceID, key string) (*models.Hold, error) {
	if tx := memTxFrom(ctx); tx != nil {
		for _, id := range tx.holdOrder {
			h := tx.holds[id]
			if h.ResourceID == resourceID && h.IdempotencyKey == key {
				return &h, nil
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idem[idemKey(resourceID, key)]
	if !ok {
		return nil, nil
	}
	h := s.holds[id]
	return &h, nil
}

// GetHold reads a hold without locking it.
func (s *MemoryInventory) GetHold(ctx context.Context, id string) (models.Hold, error) {
	if tx := memTxFrom(ctx); tx != nil {
		if h, ok := tx.holds[id]; ok {
			return h, nil
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[id]
	if !ok {
		return models.Hold{}, domain.NotFoundError{Resource: "hold"}
	}
	return h, nil
}

// GetHoldForUpdate locks the hold for the rest of the unit and returns it.
func (s *MemoryInventory) GetHoldForUpdate(ctx context.Context, id string) (models.Hold, error) {
	tx, err := requireTx(ctx, "GetHoldForUpdate")
	if err != nil {
		return models.Hold{}, err
	}
	if _, err := s.GetHold(ctx, id); err != nil {
		return models.Hold{}, err
	}
	if !tx.lockedHolds[id] {
		ch := s.holdLock(id)
		if err := acquire(ctx, ch, "lock hold"); err != nil {
			return models.Hold{}, err
		}
		tx.held = append(tx.held, ch)
		tx.lockedHolds[id] = true
	}
	return s.GetHold(ctx, id)
}

// UpdateHoldStatus stages a status change on a hold locked by this unit.
func (s *MemoryInventory) UpdateHoldStatus(ctx context.Context, id string, status models.HoldStatus, at time.Time) error {
	tx, err := requireTx(ctx, "UpdateHoldStatus")
	if err != nil {
		return err
	}
	if !tx.lockedHolds[id] {
		return domain.InternalError{Msg: "UpdateHoldStatus tanpa lock untuk hold " + id}
	}
	h, err := s.GetHold(ctx, id)
	if err != nil {
		return err
	}
	h.Status = status
	h.UpdatedAt = at
	s.stageHold(tx, h)
	return nil
}

// ListDueHolds returns ids of HELD holds whose deadline is at or before now, oldest first.
// Ids in skip are left out.
func (s *MemoryInventory) ListDueHolds(ctx context.Context, now time.Time, limit int, skip []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.StorageUnavailableError{Op: "list due holds", Err: err}
	}
	skipped := make(map[string]bool, len(skip))
	for _, id := range skip {
		skipped[id] = true
	}
	s.mu.Lock()
	due := make([]models.Hold, 0)
	for _, h := range s.holds {
		if h.DueAt(now) && !skipped[h.ID] {
			due = append(due, h)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(*due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]string, 0, len(due))
	for _, h := range due {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

// Ping satisfies the health check contract shared with the MySQL backend.
func (s *MemoryInventory) Ping(ctx context.Context) error {
	return ctx.Err()
}
