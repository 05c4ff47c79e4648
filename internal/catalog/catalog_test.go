package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inventory/internal/domain"
	"inventory/internal/domain/models"
	"inventory/internal/ledger"
	"inventory/internal/repositories"
)

const sample = `
resources:
  - id: R1
    name: Deluxe Twin
    capacity: 2
    base_price: 750000
    currency: IDR
    blackout_dates: ["2024-12-31", "2025-01-01"]
  - id: FL-1
    name: CGK-DPS seat block
    kind: seat_block
    capacity: 40
    base_price: 1200000
`

func TestParse(t *testing.T) {
	cat, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	r1, err := cat.Resource(context.Background(), "R1")
	if err != nil {
		t.Fatalf("R1: %v", err)
	}
	if r1.Kind != models.ResourceKindRoom || r1.Unit != models.UnitPerNight {
		t.Fatalf("defaults not applied: %+v", r1)
	}
	if r1.BasePrice != 750000 || len(r1.BlackoutDates) != 2 {
		t.Fatalf("unexpected R1: %+v", r1)
	}

	fl, _ := cat.Resource(context.Background(), "FL-1")
	if fl.Unit != models.UnitPerDeparture {
		t.Fatalf("seat blocks default to per_departure, got %s", fl.Unit)
	}

	list, _ := cat.Resources(context.Background())
	if len(list) != 2 || list[0].ID != "FL-1" {
		t.Fatalf("resources should be sorted by id: %+v", list)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"bad date":  "resources:\n  - id: R1\n    capacity: 1\n    blackout_dates: [\"31-12-2024\"]\n",
		"duplicate": "resources:\n  - id: R1\n    capacity: 1\n  - id: R1\n    capacity: 2\n",
		"negative":  "resources:\n  - id: R1\n    capacity: -1\n",
		"no id":     "resources:\n  - name: x\n    capacity: 1\n",
		"bad unit":  "resources:\n  - id: R1\n    unit: per_hour\n",
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cat, err := LoadFile(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := cat.Resource(context.Background(), "missing"); !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSeedBlocksBlackoutDatesIdempotently(t *testing.T) {
	cat, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	l := ledger.New(repositories.NewMemoryInventory())
	ctx := context.Background()

	n, err := Seed(ctx, cat, l)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 dates, got %d", n)
	}
	if n, err = Seed(ctx, cat, l); err != nil || n != 0 {
		t.Fatalf("second seed should change nothing, got %d (%v)", n, err)
	}

	r1, _ := cat.Resource(ctx, "R1")
	rec, err := l.GetOrDefault(ctx, r1, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.Blocked || rec.Booked != 0 || rec.TotalCapacity != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestSeedKeepsAdminUnblock(t *testing.T) {
	cat, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	l := ledger.New(repositories.NewMemoryInventory())
	ctx := context.Background()
	r1, _ := cat.Resource(ctx, "R1")
	nye := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	if _, err := Seed(ctx, cat, l); err != nil {
		t.Fatalf("seed: %v", err)
	}
	open := false
	if _, err := l.Upsert(ctx, r1, nye, ledger.Mutation{Blocked: &open}); err != nil {
		t.Fatalf("unblock: %v", err)
	}

	n, err := Seed(ctx, cat, l)
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if n != 0 {
		t.Fatalf("reseed should touch no stored date, touched %d", n)
	}
	rec, err := l.GetOrDefault(ctx, r1, nye)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Blocked {
		t.Fatalf("admin unblock was overwritten: %+v", rec)
	}
}

func TestSeedSkipsDatesAlreadyStored(t *testing.T) {
	cat, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	l := ledger.New(repositories.NewMemoryInventory())
	ctx := context.Background()
	r1, _ := cat.Resource(ctx, "R1")
	if _, err := l.ApplyRange(ctx, r1, []time.Time{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}, ledger.Hold(1)); err != nil {
		t.Fatalf("hold: %v", err)
	}

	n, err := Seed(ctx, cat, l)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the untouched date blocked, got %d", n)
	}
}
