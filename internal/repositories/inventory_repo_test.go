package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"inventory/internal/domain"
	"inventory/internal/domain/models"
	"inventory/internal/ledger"
)

var availabilityColumns = []string{"resource_id", "stay_date", "total_capacity", "booked", "price_override", "blocked"}

var holdColumns = []string{"id", "resource_id", "start_date", "end_date", "quantity", "status", "idempotency_key", "created_at", "expires_at", "updated_at"}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var room = models.Resource{ID: "R1", Name: "Deluxe", Kind: models.ResourceKindRoom, Unit: models.UnitPerNight, Capacity: 2, BasePrice: 100}

func TestInventoryRepo_LockDaysSeedsDefaultsAndLocksInOrder(t *testing.T) {
	db, mock := newMock(t)
	repo := InventoryRepo{DB: db}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT IGNORE INTO availability`).
		WithArgs("R1", "2024-06-01", 2, "R1", "2024-06-02", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM availability (.+) ORDER BY stay_date ASC FOR UPDATE`).
		WithArgs("R1", "2024-06-01", "2024-06-02").
		WillReturnRows(sqlmock.NewRows(availabilityColumns).
			AddRow("R1", day("2024-06-01"), 2, 0, nil, false).
			AddRow("R1", day("2024-06-02"), 2, 1, int64(150), false))
	mock.ExpectCommit()

	var got []models.AvailabilityRecord
	err := repo.WithTx(context.Background(), func(ctx context.Context) error {
		var err error
		got, err = repo.LockDays(ctx, room, []time.Time{day("2024-06-01"), day("2024-06-02")})
		return err
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[1].Booked != 1 || got[1].PriceOverride == nil || *got[1].PriceOverride != 150 {
		t.Fatalf("second record scanned incorrectly: %+v", got[1])
	}
	if got[0].PriceOverride != nil {
		t.Fatalf("NULL price_override should stay nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInventoryRepo_LockDaysOutsideTxFails(t *testing.T) {
	db, _ := newMock(t)
	repo := InventoryRepo{DB: db}

	_, err := repo.LockDays(context.Background(), room, []time.Time{day("2024-06-01")})
	var internal domain.InternalError
	if !errors.As(err, &internal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestInventoryRepo_ApplyRangeRollsBackWhenAnyDayIsFull(t *testing.T) {
	db, mock := newMock(t)
	l := ledger.New(InventoryRepo{DB: db})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT IGNORE INTO availability`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(availabilityColumns).
			AddRow("R1", day("2024-06-01"), 2, 2, nil, false).
			AddRow("R1", day("2024-06-02"), 2, 0, nil, false).
			AddRow("R1", day("2024-06-03"), 2, 2, nil, false))
	mock.ExpectRollback()

	_, err := l.ApplyRange(context.Background(), room,
		[]time.Time{day("2024-06-01"), day("2024-06-02"), day("2024-06-03")}, ledger.Hold(1))
	if !domain.IsCapacityExceeded(err) {
		t.Fatalf("expected capacity exceeded, got %v", err)
	}
	dates := domain.UnavailableDates(err)
	if len(dates) != 2 || dates[0] != "2024-06-01" || dates[1] != "2024-06-03" {
		t.Fatalf("unexpected failing dates: %v", dates)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no UPDATE should run on failure: %v", err)
	}
}

func TestInventoryRepo_ApplyRangeUpdatesEveryDay(t *testing.T) {
	db, mock := newMock(t)
	l := ledger.New(InventoryRepo{DB: db})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT IGNORE INTO availability`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(`FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows(availabilityColumns).
			AddRow("R1", day("2024-06-01"), 2, 0, nil, false).
			AddRow("R1", day("2024-06-02"), 2, 1, nil, false))
	mock.ExpectExec(`UPDATE availability`).
		WithArgs(2, 1, nil, false, "R1", "2024-06-01").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE availability`).
		WithArgs(2, 2, nil, false, "R1", "2024-06-02").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	recs, err := l.ApplyRange(context.Background(), room, []time.Time{day("2024-06-02"), day("2024-06-01")}, ledger.Hold(1))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if recs[0].Booked != 1 || recs[1].Booked != 2 {
		t.Fatalf("unexpected booked counts: %d %d", recs[0].Booked, recs[1].Booked)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInventoryRepo_DeadlockIsStorageUnavailable(t *testing.T) {
	db, mock := newMock(t)
	l := ledger.New(InventoryRepo{DB: db})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT IGNORE INTO availability`).
		WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	mock.ExpectRollback()

	_, err := l.ApplyRange(context.Background(), room, []time.Time{day("2024-06-01")}, ledger.Hold(1))
	if !domain.IsStorageUnavailable(err) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInventoryRepo_ReadDaysKeysByDate(t *testing.T) {
	db, mock := newMock(t)
	repo := InventoryRepo{DB: db}

	mock.ExpectQuery(`SELECT (.+) FROM availability WHERE resource_id = \? AND stay_date IN \(\?,\?\)`).
		WithArgs("R1", "2024-06-01", "2024-06-02").
		WillReturnRows(sqlmock.NewRows(availabilityColumns).
			AddRow("R1", day("2024-06-02"), 5, 3, nil, true))

	got, err := repo.ReadDays(context.Background(), "R1", []time.Time{day("2024-06-01"), day("2024-06-02")})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := got["2024-06-01"]; ok {
		t.Fatalf("missing row should not be synthesized by the store")
	}
	rec, ok := got["2024-06-02"]
	if !ok || !rec.Blocked || rec.Booked != 3 || !rec.Persisted {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestInventoryRepo_GetHoldNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := InventoryRepo{DB: db}

	mock.ExpectQuery(`SELECT (.+) FROM holds WHERE id = \?`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(holdColumns))

	_, err := repo.GetHold(context.Background(), "missing")
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInventoryRepo_GetHoldScansNullableColumns(t *testing.T) {
	db, mock := newMock(t)
	repo := InventoryRepo{DB: db}
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	expires := created.Add(15 * time.Minute)

	mock.ExpectQuery(`SELECT (.+) FROM holds WHERE id = \?`).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows(holdColumns).
			AddRow("h1", "R1", day("2024-06-01"), day("2024-06-04"), 2, "HELD", nil, created, expires, created))

	h, err := repo.GetHold(context.Background(), "h1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if h.Status != models.HoldStatusHeld || h.Quantity != 2 {
		t.Fatalf("unexpected hold: %+v", h)
	}
	if h.IdempotencyKey != "" {
		t.Fatalf("NULL idempotency_key should be empty, got %q", h.IdempotencyKey)
	}
	if h.ExpiresAt == nil || !h.ExpiresAt.Equal(expires) {
		t.Fatalf("expiresAt not scanned: %v", h.ExpiresAt)
	}
}

func TestInventoryRepo_CreateHoldDuplicateKeyIsConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := InventoryRepo{DB: db}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO holds`).
		WithArgs("h1", "R1", "2024-06-01", "2024-06-02", 1, "HELD", "key-1", now, nil, now).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.CreateHold(context.Background(), models.Hold{
		ID: "h1", ResourceID: "R1", StartDate: day("2024-06-01"), EndDate: day("2024-06-02"),
		Quantity: 1, Status: models.HoldStatusHeld, IdempotencyKey: "key-1", CreatedAt: now, UpdatedAt: now,
	})
	if !domain.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestInventoryRepo_ListDueHolds(t *testing.T) {
	db, mock := newMock(t)
	repo := InventoryRepo{DB: db}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id FROM holds WHERE status = \? AND expires_at IS NOT NULL AND expires_at <= \? ORDER BY expires_at ASC LIMIT \?`).
		WithArgs("HELD", now, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := repo.ListDueHolds(context.Background(), now, 50, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestInventoryRepo_ListDueHoldsSkipsParked(t *testing.T) {
	db, mock := newMock(t)
	repo := InventoryRepo{DB: db}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id FROM holds WHERE status = \? AND expires_at IS NOT NULL AND expires_at <= \? AND id NOT IN \(\?,\?\) ORDER BY expires_at ASC LIMIT \?`).
		WithArgs("HELD", now, "stuck-1", "stuck-2", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c"))

	ids, err := repo.ListDueHolds(context.Background(), now, 0, []string{"stuck-1", "stuck-2"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ids) != 1 || ids[0] != "c" {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInventoryRepo_UpdateHoldStatusMissingRow(t *testing.T) {
	db, mock := newMock(t)
	repo := InventoryRepo{DB: db}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE holds SET status = \?, updated_at = \? WHERE id = \?`).
		WithArgs("RELEASED", now, "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateHoldStatus(context.Background(), "gone", models.HoldStatusReleased, now)
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStorageErrClassification(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"lock wait", &mysql.MySQLError{Number: 1205}, true},
		{"deadlock", &mysql.MySQLError{Number: 1213}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"bad conn", mysql.ErrInvalidConn, true},
		{"syntax", &mysql.MySQLError{Number: 1064}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		got := storageErr("op", tc.err)
		if domain.IsStorageUnavailable(got) != tc.unavailable {
			t.Fatalf("%s: unavailable=%v, got %v", tc.name, tc.unavailable, got)
		}
		if !errors.Is(got, tc.err) {
			t.Fatalf("%s: cause should stay in the chain", tc.name)
		}
	}
}
