package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		spa_id TEXT NOT NULL,
		spa_name TEXT,
		owner_id TEXT NOT NULL,
		services JSONB NOT NULL,
		slot TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		base_price NUMERIC(14, 2) NOT NULL,
		discount_amount NUMERIC(14, 2) NOT NULL DEFAULT 0,
		final_price NUMERIC(14, 2) NOT NULL,
		payment_method TEXT,
		payment_details JSONB,
		payment_reference TEXT,
		paid_at TIMESTAMPTZ,
		customer_upi_id TEXT,
		merchant_upi_id TEXT,
		refund JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_spa_date_idx ON bookings (spa_id, date)`,
	`CREATE INDEX IF NOT EXISTS bookings_customer_idx ON bookings (customer_id)`,
	`CREATE INDEX IF NOT EXISTS bookings_owner_idx ON bookings (owner_id)`,
	`CREATE TABLE IF NOT EXISTS memberships (
		customer_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		plan_name TEXT NOT NULL,
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_identities (
		id TEXT PRIMARY KEY,
		upi_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		upi_enabled BOOLEAN NOT NULL DEFAULT true,
		pin_hash TEXT NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_accounts (
		id TEXT PRIMARY KEY,
		identity_id TEXT NOT NULL REFERENCES ledger_identities (id),
		balance NUMERIC(14, 2) NOT NULL CHECK (balance >= 0),
		type TEXT NOT NULL,
		is_primary BOOLEAN NOT NULL DEFAULT false,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_transactions (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		from_identity_id TEXT NOT NULL,
		to_identity_id TEXT NOT NULL,
		from_party JSONB NOT NULL,
		to_party JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_transactions_from_idx ON ledger_transactions (from_identity_id)`,
	`CREATE INDEX IF NOT EXISTS ledger_transactions_to_idx ON ledger_transactions (to_identity_id)`,
}

// InitializeSchema creates the tables when they do not exist yet.
func InitializeSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
