package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tenure store (SQLite).
// Instants are stored as INTEGER unix microseconds.
var Migrations = migrate.NewGroup("tenure")

// execAll runs each statement on its own; the driver executes one
// statement per call.
func execAll(ctx context.Context, exec migrate.Executor, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tenure_assets",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `
CREATE TABLE IF NOT EXISTS tenure_counters (
    name  TEXT PRIMARY KEY,
    value INTEGER NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS tenure_assets (
    id           INTEGER PRIMARY KEY,
    owner        TEXT NOT NULL,
    approved     TEXT NOT NULL DEFAULT '',
    metadata_ref TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL DEFAULT 0,
    updated_at   INTEGER NOT NULL DEFAULT 0
)`,
					`CREATE INDEX IF NOT EXISTS idx_tenure_assets_owner ON tenure_assets (owner, id)`, `
CREATE TABLE IF NOT EXISTS tenure_operators (
    owner    TEXT NOT NULL,
    operator TEXT NOT NULL,
    PRIMARY KEY (owner, operator)
)`, `
CREATE TABLE IF NOT EXISTS tenure_settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`)
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec,
					`DROP TABLE IF EXISTS tenure_settings`,
					`DROP TABLE IF EXISTS tenure_operators`,
					`DROP TABLE IF EXISTS tenure_assets`,
					`DROP TABLE IF EXISTS tenure_counters`,
				)
			},
		},
		&migrate.Migration{
			Name:    "create_tenure_subscriptions",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `
CREATE TABLE IF NOT EXISTS tenure_subscriptions (
    asset_id        INTEGER PRIMARY KEY,
    expires_at      INTEGER NOT NULL,
    renewable_until INTEGER NOT NULL,
    unit_price      INTEGER NOT NULL,
    currency        TEXT NOT NULL,
    created_at      INTEGER NOT NULL DEFAULT 0,
    updated_at      INTEGER NOT NULL DEFAULT 0
)`)
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `DROP TABLE IF EXISTS tenure_subscriptions`)
			},
		},
		&migrate.Migration{
			Name:    "create_tenure_redemptions",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `
CREATE TABLE IF NOT EXISTS tenure_redemptions (
    key         TEXT PRIMARY KEY,
    id          TEXT NOT NULL,
    consumed_at INTEGER NOT NULL
)`)
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `DROP TABLE IF EXISTS tenure_redemptions`)
			},
		},
		&migrate.Migration{
			Name:    "create_tenure_payments",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `
CREATE TABLE IF NOT EXISTS tenure_balances (
    account  TEXT NOT NULL,
    currency TEXT NOT NULL,
    amount   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (account, currency)
)`, `
CREATE TABLE IF NOT EXISTS tenure_receipts (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    from_addr  TEXT NOT NULL,
    to_addr    TEXT NOT NULL,
    amount     INTEGER NOT NULL,
    currency   TEXT NOT NULL,
    reason     TEXT NOT NULL,
    asset_id   INTEGER NOT NULL,
    created_at INTEGER NOT NULL
)`,
					`CREATE INDEX IF NOT EXISTS idx_tenure_receipts_from ON tenure_receipts (from_addr, seq)`,
					`CREATE INDEX IF NOT EXISTS idx_tenure_receipts_to ON tenure_receipts (to_addr, seq)`,
				)
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec,
					`DROP TABLE IF EXISTS tenure_receipts`,
					`DROP TABLE IF EXISTS tenure_balances`,
				)
			},
		},
		&migrate.Migration{
			Name:    "create_tenure_events",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `
CREATE TABLE IF NOT EXISTS tenure_events (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    id             TEXT NOT NULL UNIQUE,
    asset_id       INTEGER NOT NULL,
    new_expiration INTEGER,
    reason         TEXT NOT NULL,
    at             INTEGER NOT NULL
)`,
					`CREATE INDEX IF NOT EXISTS idx_tenure_events_asset ON tenure_events (asset_id, seq)`,
				)
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				return execAll(ctx, exec, `DROP TABLE IF EXISTS tenure_events`)
			},
		},
	)
}
