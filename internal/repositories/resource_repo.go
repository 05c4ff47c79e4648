package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"inventory/internal/calendar"
	intconfig "inventory/internal/config"
	intdb "inventory/internal/db"
	"inventory/internal/domain"
	"inventory/internal/domain/models"
)

// ResourceRepo is the read-only MySQL view of the resource catalog.
type ResourceRepo struct {
	DB *sql.DB
}

func (r ResourceRepo) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

const resourceCols = `id, name, kind, unit, capacity, base_price, currency`

func scanResource(s rowScanner) (models.Resource, error) {
	var res models.Resource
	var kind, unit string
	if err := s.Scan(&res.ID, &res.Name, &kind, &unit, &res.Capacity, &res.BasePrice, &res.Currency); err != nil {
		return res, err
	}
	res.Kind = models.ResourceKind(kind)
	res.Unit = models.CapacityUnit(unit)
	return res, nil
}

func (r ResourceRepo) Resource(ctx context.Context, id string) (models.Resource, error) {
	db := r.db()
	if db == nil {
		return models.Resource{}, domain.StorageUnavailableError{Op: "get resource", Err: errors.New("db tidak tersedia")}
	}
	res, err := scanResource(db.QueryRowContext(ctx, `SELECT `+resourceCols+` FROM resources WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Resource{}, domain.NotFoundError{Resource: "resource", Err: err}
	}
	if err != nil {
		return models.Resource{}, storageErr("get resource", err)
	}

	blackouts, err := r.blackouts(ctx, db, id)
	if err != nil {
		return models.Resource{}, err
	}
	res.BlackoutDates = blackouts[id]
	return res, nil
}

func (r ResourceRepo) Resources(ctx context.Context) ([]models.Resource, error) {
	db := r.db()
	if db == nil {
		return nil, domain.StorageUnavailableError{Op: "list resources", Err: errors.New("db tidak tersedia")}
	}
	rows, err := db.QueryContext(ctx, `SELECT `+resourceCols+` FROM resources ORDER BY id`)
	if err != nil {
		return nil, storageErr("list resources", err)
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, storageErr("scan resource", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list resources", err)
	}

	blackouts, err := r.blackouts(ctx, db, "")
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].BlackoutDates = blackouts[out[i].ID]
	}
	return out, nil
}

// blackouts loads blackout dates for one resource, or for all when id is empty.
// Installations without the table simply have no blackouts.
func (r ResourceRepo) blackouts(ctx context.Context, db *sql.DB, id string) (map[string][]time.Time, error) {
	out := map[string][]time.Time{}
	if !intdb.HasTable(db, "resource_blackouts") {
		return out, nil
	}

	query := `SELECT resource_id, blackout_date FROM resource_blackouts`
	var args []any
	if id != "" {
		query += ` WHERE resource_id = ?`
		args = append(args, id)
	}
	query += ` ORDER BY resource_id, blackout_date`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list blackouts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rid string
		var day time.Time
		if err := rows.Scan(&rid, &day); err != nil {
			return nil, storageErr("scan blackout", err)
		}
		out[rid] = append(out[rid], calendar.Truncate(day))
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list blackouts", err)
	}
	return out, nil
}
