package db

import (
	"context"
	"database/sql"
	"fmt"
)

const ddlResources = `
CREATE TABLE IF NOT EXISTS resources (
	id VARCHAR(64) NOT NULL PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	kind VARCHAR(32) NOT NULL DEFAULT 'room',
	unit VARCHAR(32) NOT NULL DEFAULT 'per_night',
	capacity INT NOT NULL,
	base_price BIGINT NOT NULL DEFAULT 0,
	currency VARCHAR(8) NOT NULL DEFAULT 'IDR',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const ddlResourceBlackouts = `
CREATE TABLE IF NOT EXISTS resource_blackouts (
	resource_id VARCHAR(64) NOT NULL,
	blackout_date DATE NOT NULL,
	PRIMARY KEY (resource_id, blackout_date)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const ddlAvailability = `
CREATE TABLE IF NOT EXISTS availability (
	resource_id VARCHAR(64) NOT NULL,
	stay_date DATE NOT NULL,
	total_capacity INT NOT NULL,
	booked INT NOT NULL DEFAULT 0,
	price_override BIGINT NULL,
	blocked TINYINT(1) NOT NULL DEFAULT 0,
	created_at DATETIME(6) NOT NULL,
	updated_at DATETIME(6) NOT NULL,
	PRIMARY KEY (resource_id, stay_date),
	CONSTRAINT chk_availability_booked CHECK (booked >= 0 AND booked <= total_capacity)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

const ddlHolds = `
CREATE TABLE IF NOT EXISTS holds (
	id CHAR(36) NOT NULL PRIMARY KEY,
	resource_id VARCHAR(64) NOT NULL,
	start_date DATE NOT NULL,
	end_date DATE NOT NULL,
	quantity INT NOT NULL,
	status VARCHAR(16) NOT NULL,
	idempotency_key VARCHAR(128) NULL,
	created_at DATETIME(6) NOT NULL,
	expires_at DATETIME(6) NULL,
	updated_at DATETIME(6) NOT NULL,
	UNIQUE KEY uniq_hold_idempotency (resource_id, idempotency_key),
	KEY idx_hold_due (status, expires_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`

// EnsureSchema creates missing tables and columns. Safe to run on every start.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("db tidak tersedia")
	}
	for _, ddl := range []string{ddlResources, ddlResourceBlackouts, ddlAvailability, ddlHolds} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	// holds tables created before idempotency support lack the key column.
	if !HasColumn(db, "holds", "idempotency_key") {
		if _, err := db.ExecContext(ctx, `ALTER TABLE holds
			ADD COLUMN idempotency_key VARCHAR(128) NULL,
			ADD UNIQUE KEY uniq_hold_idempotency (resource_id, idempotency_key)`); err != nil {
			return fmt.Errorf("add holds.idempotency_key: %w", err)
		}
	}
	return nil
}
