package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"inventory/internal/clock"
	"inventory/internal/domain/models"
	"inventory/internal/repositories"
)

func mysqlDay(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// A release must finish on the connection that holds its transaction; with a pool of
// one, any query outside the transaction would wait forever.
func TestRelease_SingleConnectionPool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	clk := clock.NewManual(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	svc := NewHoldService(repositories.InventoryRepo{DB: db}, repositories.ResourceRepo{DB: db}, clk)

	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM holds WHERE id = \? FOR UPDATE`).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "resource_id", "start_date", "end_date", "quantity", "status", "idempotency_key", "created_at", "expires_at", "updated_at"}).
			AddRow("h1", "R1", mysqlDay("2024-06-01"), mysqlDay("2024-06-03"), 1, "HELD", nil, created, nil, created))
	mock.ExpectExec(`INSERT IGNORE INTO availability`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT (.+) FROM availability (.+) ORDER BY stay_date ASC FOR UPDATE`).
		WithArgs("R1", "2024-06-01", "2024-06-02").
		WillReturnRows(sqlmock.NewRows([]string{"resource_id", "stay_date", "total_capacity", "booked", "price_override", "blocked"}).
			AddRow("R1", mysqlDay("2024-06-01"), 2, 1, nil, false).
			AddRow("R1", mysqlDay("2024-06-02"), 2, 1, nil, false))
	mock.ExpectExec(`UPDATE availability`).
		WithArgs(2, 0, nil, false, "R1", "2024-06-01").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE availability`).
		WithArgs(2, 0, nil, false, "R1", "2024-06-02").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE holds SET status = \?, updated_at = \? WHERE id = \?`).
		WithArgs("RELEASED", sqlmock.AnyArg(), "h1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	released, err := svc.Release(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, models.HoldStatusReleased, released.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
