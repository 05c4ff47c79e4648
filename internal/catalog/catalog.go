// Package catalog supplies resource definitions to the engine. The catalog is owned
// upstream; the engine only reads it.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"inventory/internal/calendar"
	"inventory/internal/domain"
	"inventory/internal/domain/models"
	"inventory/internal/ledger"
)

// Catalog resolves resources by id.
type Catalog interface {
	Resource(ctx context.Context, id string) (models.Resource, error)
	Resources(ctx context.Context) ([]models.Resource, error)
}

// Static is an immutable in-memory catalog.
type Static struct {
	byID map[string]models.Resource
	ids  []string
}

// NewStatic validates resources and indexes them by id.
func NewStatic(resources ...models.Resource) (*Static, error) {
	s := &Static{byID: make(map[string]models.Resource, len(resources))}
	for _, res := range resources {
		res.ID = strings.TrimSpace(res.ID)
		if res.ID == "" {
			return nil, fmt.Errorf("resource id kosong")
		}
		if _, dup := s.byID[res.ID]; dup {
			return nil, fmt.Errorf("resource %s duplikat", res.ID)
		}
		if res.Capacity < 0 {
			return nil, fmt.Errorf("resource %s: capacity tidak boleh negatif", res.ID)
		}
		if res.BasePrice < 0 {
			return nil, fmt.Errorf("resource %s: base_price tidak boleh negatif", res.ID)
		}
		if res.Kind == "" {
			res.Kind = models.ResourceKindRoom
		}
		if res.Unit == "" {
			res.Unit = models.UnitPerNight
			if res.Kind == models.ResourceKindSeatBlock {
				res.Unit = models.UnitPerDeparture
			}
		}
		if res.Unit != models.UnitPerNight && res.Unit != models.UnitPerDeparture {
			return nil, fmt.Errorf("resource %s: unit %q tidak dikenal", res.ID, res.Unit)
		}
		s.byID[res.ID] = res
		s.ids = append(s.ids, res.ID)
	}
	sort.Strings(s.ids)
	return s, nil
}

func (s *Static) Resource(_ context.Context, id string) (models.Resource, error) {
	res, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return models.Resource{}, domain.NotFoundError{Resource: "resource"}
	}
	return res, nil
}

func (s *Static) Resources(_ context.Context) ([]models.Resource, error) {
	out := make([]models.Resource, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.byID[id])
	}
	return out, nil
}

// Day parses YYYY-MM-DD scalars in catalog files.
type Day struct {
	time.Time
}

func (d *Day) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("tanggal harus berupa string")
	}
	parsed, err := calendar.ParseDay(value.Value)
	if err != nil {
		return fmt.Errorf("parse tanggal %q: %w", value.Value, err)
	}
	d.Time = parsed
	return nil
}

type fileResource struct {
	models.Resource `yaml:",inline"`
	Blackouts       []Day `yaml:"blackout_dates"`
}

type file struct {
	Resources []fileResource `yaml:"resources"`
}

// LoadFile reads a YAML catalog:
//
//	resources:
//	  - id: R1
//	    name: Deluxe Twin
//	    capacity: 2
//	    base_price: 750000
//	    currency: IDR
//	    blackout_dates: ["2024-12-31"]
func LoadFile(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Static, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	resources := make([]models.Resource, 0, len(f.Resources))
	for _, fr := range f.Resources {
		res := fr.Resource
		for _, d := range fr.Blackouts {
			res.BlackoutDates = append(res.BlackoutDates, d.Time)
		}
		resources = append(resources, res)
	}
	return NewStatic(resources...)
}

// Seed marks catalog blackout dates as blocked in the ledger and returns the number
// of dates it blocked. Only dates without a stored row are touched: once a row exists,
// its blocked flag belongs to the ledger (and to PUT /availability), so an admin
// unblock survives restarts and running Seed again changes nothing.
func Seed(ctx context.Context, cat Catalog, l *ledger.Ledger) (int, error) {
	resources, err := cat.Resources(ctx)
	if err != nil {
		return 0, err
	}
	blocked := true
	n := 0
	for _, res := range resources {
		for _, day := range res.BlackoutDates {
			rec, err := l.GetOrDefault(ctx, res, day)
			if err != nil {
				return n, fmt.Errorf("seed blackout %s %s: %w", res.ID, calendar.FormatDay(day), err)
			}
			if rec.Persisted {
				continue
			}
			if _, err := l.Upsert(ctx, res, day, ledger.Mutation{Blocked: &blocked}); err != nil {
				return n, fmt.Errorf("seed blackout %s %s: %w", res.ID, calendar.FormatDay(day), err)
			}
			n++
		}
	}
	return n, nil
}
