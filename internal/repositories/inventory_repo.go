package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"inventory/internal/calendar"
	intconfig "inventory/internal/config"
	intdb "inventory/internal/db"
	"inventory/internal/domain"
	"inventory/internal/domain/models"
)

// MySQL error numbers treated as transient.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errDuplicateEntry  = 1062
	errServerGone      = 2006
	errServerLost      = 2013
)

// InventoryRepo stores availability rows and holds in MySQL. Row locks taken with
// SELECT ... FOR UPDATE in ascending stay_date order give per-(resource, date)
// serialization without a global lock.
type InventoryRepo struct {
	DB *sql.DB
}

func (r InventoryRepo) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

type sqlTxKey struct{}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqlTxFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(sqlTxKey{}).(*sql.Tx)
	return tx
}

func (r InventoryRepo) q(ctx context.Context) (queryer, error) {
	if tx := sqlTxFrom(ctx); tx != nil {
		return tx, nil
	}
	db := r.db()
	if db == nil {
		return nil, domain.StorageUnavailableError{Op: "connect", Err: errors.New("db tidak tersedia")}
	}
	return db, nil
}

// storageErr classifies driver failures. Connection loss, lock waits, deadlocks and
// cancelled contexts are retryable and map to StorageUnavailableError; anything else
// from the driver is an InternalError.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == errDuplicateEntry {
		return domain.ConflictError{Resource: "hold", Msg: "data sudah ada", Err: err}
	}
	if retryable(err) {
		return domain.StorageUnavailableError{Op: op, Err: err}
	}
	return domain.InternalError{Msg: op + " gagal", Err: err}
}

func retryable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errLockWaitTimeout, errDeadlock, errServerGone, errServerLost:
			return true
		}
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// WithTx runs fn inside one READ COMMITTED transaction; nested calls join it.
func (r InventoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if sqlTxFrom(ctx) != nil {
		return fn(ctx)
	}
	db := r.db()
	if db == nil {
		return domain.StorageUnavailableError{Op: "begin", Err: errors.New("db tidak tersedia")}
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return storageErr("begin", err)
	}
	if err := fn(context.WithValue(ctx, sqlTxKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func dayArgs(resourceID string, days []time.Time) (string, []any) {
	args := make([]any, 0, len(days)+1)
	args = append(args, resourceID)
	for _, d := range days {
		args = append(args, calendar.FormatDay(d))
	}
	return placeholders(len(days)), args
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

const availabilityCols = `resource_id, stay_date, total_capacity, booked, price_override, blocked`

func scanAvailability(rows *sql.Rows) (models.AvailabilityRecord, error) {
	var rec models.AvailabilityRecord
	var price sql.NullInt64
	if err := rows.Scan(&rec.ResourceID, &rec.Date, &rec.TotalCapacity, &rec.Booked, &price, &rec.Blocked); err != nil {
		return rec, err
	}
	rec.Date = calendar.Truncate(rec.Date)
	if price.Valid {
		p := price.Int64
		rec.PriceOverride = &p
	}
	rec.Persisted = true
	return rec, nil
}

// ReadDays is a plain read; outside a transaction it may be slightly stale.
func (r InventoryRepo) ReadDays(ctx context.Context, resourceID string, days []time.Time) (map[string]models.AvailabilityRecord, error) {
	out := make(map[string]models.AvailabilityRecord, len(days))
	if len(days) == 0 {
		return out, nil
	}
	q, err := r.q(ctx)
	if err != nil {
		return nil, err
	}
	in, args := dayArgs(resourceID, days)
	rows, err := q.QueryContext(ctx, `SELECT `+availabilityCols+`
		FROM availability
		WHERE resource_id = ? AND stay_date IN (`+in+`)`, args...)
	if err != nil {
		return nil, storageErr("read availability", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanAvailability(rows)
		if err != nil {
			return nil, storageErr("scan availability", err)
		}
		out[calendar.FormatDay(rec.Date)] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("read availability", err)
	}
	return out, nil
}

// LockDays materializes default rows with INSERT IGNORE, then locks every row in
// ascending stay_date order. days must already be sorted and unique.
func (r InventoryRepo) LockDays(ctx context.Context, res models.Resource, days []time.Time) ([]models.AvailabilityRecord, error) {
	tx := sqlTxFrom(ctx)
	if tx == nil {
		return nil, domain.InternalError{Msg: "LockDays harus dipanggil di dalam transaksi"}
	}
	if len(days) == 0 {
		return nil, nil
	}

	values := make([]string, 0, len(days))
	insertArgs := make([]any, 0, len(days)*3)
	for _, d := range days {
		values = append(values, "(?, ?, ?, 0, 0, UTC_TIMESTAMP(6), UTC_TIMESTAMP(6))")
		insertArgs = append(insertArgs, res.ID, calendar.FormatDay(d), res.Capacity)
	}
	if _, err := tx.ExecContext(ctx, `INSERT IGNORE INTO availability
		(resource_id, stay_date, total_capacity, booked, blocked, created_at, updated_at)
		VALUES `+strings.Join(values, ", "), insertArgs...); err != nil {
		return nil, storageErr("seed availability", err)
	}

	in, args := dayArgs(res.ID, days)
	rows, err := tx.QueryContext(ctx, `SELECT `+availabilityCols+`
		FROM availability
		WHERE resource_id = ? AND stay_date IN (`+in+`)
		ORDER BY stay_date ASC
		FOR UPDATE`, args...)
	if err != nil {
		return nil, storageErr("lock availability", err)
	}
	defer rows.Close()

	out := make([]models.AvailabilityRecord, 0, len(days))
	for rows.Next() {
		rec, err := scanAvailability(rows)
		if err != nil {
			return nil, storageErr("scan availability", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("lock availability", err)
	}
	if len(out) != len(days) {
		return nil, domain.InternalError{Msg: "jumlah baris availability tidak sesuai setelah lock"}
	}
	return out, nil
}

func (r InventoryRepo) SaveDays(ctx context.Context, recs []models.AvailabilityRecord) error {
	tx := sqlTxFrom(ctx)
	if tx == nil {
		return domain.InternalError{Msg: "SaveDays harus dipanggil di dalam transaksi"}
	}
	for _, rec := range recs {
		var price any
		if rec.PriceOverride != nil {
			price = *rec.PriceOverride
		}
		if _, err := tx.ExecContext(ctx, `UPDATE availability
			SET total_capacity = ?, booked = ?, price_override = ?, blocked = ?, updated_at = UTC_TIMESTAMP(6)
			WHERE resource_id = ? AND stay_date = ?`,
			rec.TotalCapacity, rec.Booked, price, rec.Blocked, rec.ResourceID, calendar.FormatDay(rec.Date),
		); err != nil {
			return storageErr("save availability", err)
		}
	}
	return nil
}

const holdCols = `id, resource_id, start_date, end_date, quantity, status, idempotency_key, created_at, expires_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHold(s rowScanner) (models.Hold, error) {
	var h models.Hold
	var status string
	var key sql.NullString
	var expires sql.NullTime
	if err := s.Scan(&h.ID, &h.ResourceID, &h.StartDate, &h.EndDate, &h.Quantity, &status, &key, &h.CreatedAt, &expires, &h.UpdatedAt); err != nil {
		return h, err
	}
	h.Status = models.HoldStatus(status)
	h.StartDate = calendar.Truncate(h.StartDate)
	h.EndDate = calendar.Truncate(h.EndDate)
	h.IdempotencyKey = key.String
	if expires.Valid {
		t := expires.Time.UTC()
		h.ExpiresAt = &t
	}
	h.CreatedAt = h.CreatedAt.UTC()
	h.UpdatedAt = h.UpdatedAt.UTC()
	return h, nil
}

func (r InventoryRepo) CreateHold(ctx context.Context, h models.Hold) error {
	q, err := r.q(ctx)
	if err != nil {
		return err
	}
	var expires any
	if h.ExpiresAt != nil {
		expires = h.ExpiresAt.UTC()
	}
	_, err = q.ExecContext(ctx, `INSERT INTO holds (`+holdCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.ResourceID, calendar.FormatDay(h.StartDate), calendar.FormatDay(h.EndDate), h.Quantity,
		string(h.Status), intdb.NullIfEmpty(h.IdempotencyKey), h.CreatedAt.UTC(), expires, h.UpdatedAt.UTC(),
	)
	if err != nil {
		return storageErr("create hold", err)
	}
	return nil
}

// FindHoldByIdempotencyKey returns nil when the key was never used for the resource.
func (r InventoryRepo) FindHoldByIdempotencyKey(ctx context.Context, resourceID, key string) (*models.Hold, error) {
	q, err := r.q(ctx)
	if err != nil {
		return nil, err
	}
	h, err := scanHold(q.QueryRowContext(ctx, `SELECT `+holdCols+`
		FROM holds
		WHERE resource_id = ? AND idempotency_key = ?
		LIMIT 1`, resourceID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("find hold", err)
	}
	return &h, nil
}

func (r InventoryRepo) GetHold(ctx context.Context, id string) (models.Hold, error) {
	return r.getHold(ctx, id, false)
}

// GetHoldForUpdate locks the hold row until the surrounding transaction ends.
func (r InventoryRepo) GetHoldForUpdate(ctx context.Context, id string) (models.Hold, error) {
	if sqlTxFrom(ctx) == nil {
		return models.Hold{}, domain.InternalError{Msg: "GetHoldForUpdate harus dipanggil di dalam transaksi"}
	}
	return r.getHold(ctx, id, true)
}

func (r InventoryRepo) getHold(ctx context.Context, id string, forUpdate bool) (models.Hold, error) {
	q, err := r.q(ctx)
	if err != nil {
		return models.Hold{}, err
	}
	query := `SELECT ` + holdCols + ` FROM holds WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	h, err := scanHold(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Hold{}, domain.NotFoundError{Resource: "hold", Err: err}
	}
	if err != nil {
		return models.Hold{}, storageErr("get hold", err)
	}
	return h, nil
}

func (r InventoryRepo) UpdateHoldStatus(ctx context.Context, id string, status models.HoldStatus, at time.Time) error {
	q, err := r.q(ctx)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE holds SET status = ?, updated_at = ? WHERE id = ?`, string(status), at.UTC(), id)
	if err != nil {
		return storageErr("update hold", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NotFoundError{Resource: "hold"}
	}
	return nil
}

// ListDueHolds returns ids of HELD holds past their deadline, oldest deadline first,
// leaving out the ids in skip.
func (r InventoryRepo) ListDueHolds(ctx context.Context, now time.Time, limit int, skip []string) ([]string, error) {
	q, err := r.q(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id
		FROM holds
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?`
	args := []any{string(models.HoldStatusHeld), now.UTC()}
	if len(skip) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(skip)) + `)`
		for _, id := range skip {
			args = append(args, id)
		}
	}
	query += `
		ORDER BY expires_at ASC
		LIMIT ?`
	args = append(args, limit)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list due holds", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan due hold", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list due holds", err)
	}
	return ids, nil
}

func (r InventoryRepo) Ping(ctx context.Context) error {
	db := r.db()
	if db == nil {
		return domain.StorageUnavailableError{Op: "ping", Err: errors.New("db tidak tersedia")}
	}
	if err := db.PingContext(ctx); err != nil {
		return domain.StorageUnavailableError{Op: "ping", Err: err}
	}
	return nil
}
