package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Tenure store (PostgreSQL).
var Migrations = migrate.NewGroup("tenure")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tenure_assets",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenure_counters (
    name  TEXT PRIMARY KEY,
    value BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS tenure_assets (
    id           BIGINT PRIMARY KEY,
    owner        TEXT NOT NULL,
    approved     TEXT NOT NULL DEFAULT '',
    metadata_ref TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tenure_assets_owner ON tenure_assets (owner, id);

CREATE TABLE IF NOT EXISTS tenure_operators (
    owner    TEXT NOT NULL,
    operator TEXT NOT NULL,
    PRIMARY KEY (owner, operator)
);

CREATE TABLE IF NOT EXISTS tenure_settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS tenure_settings;
DROP TABLE IF EXISTS tenure_operators;
DROP TABLE IF EXISTS tenure_assets;
DROP TABLE IF EXISTS tenure_counters;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tenure_subscriptions",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenure_subscriptions (
    asset_id        BIGINT PRIMARY KEY,
    expires_at      TIMESTAMPTZ NOT NULL,
    renewable_until TIMESTAMPTZ NOT NULL,
    unit_price      BIGINT NOT NULL,
    currency        TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tenure_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tenure_redemptions",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenure_redemptions (
    key         TEXT PRIMARY KEY,
    id          TEXT NOT NULL,
    consumed_at TIMESTAMPTZ NOT NULL
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tenure_redemptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tenure_payments",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenure_balances (
    account  TEXT NOT NULL,
    currency TEXT NOT NULL,
    amount   BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (account, currency)
);

CREATE TABLE IF NOT EXISTS tenure_receipts (
    id         TEXT PRIMARY KEY,
    seq        BIGSERIAL,
    from_addr  TEXT NOT NULL,
    to_addr    TEXT NOT NULL,
    amount     BIGINT NOT NULL,
    currency   TEXT NOT NULL,
    reason     TEXT NOT NULL,
    asset_id   BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tenure_receipts_from ON tenure_receipts (from_addr, seq);
CREATE INDEX IF NOT EXISTS idx_tenure_receipts_to ON tenure_receipts (to_addr, seq);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS tenure_receipts;
DROP TABLE IF EXISTS tenure_balances;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tenure_events",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tenure_events (
    seq            BIGSERIAL PRIMARY KEY,
    id             TEXT NOT NULL UNIQUE,
    asset_id       BIGINT NOT NULL,
    new_expiration TIMESTAMPTZ,
    reason         TEXT NOT NULL,
    at             TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tenure_events_asset ON tenure_events (asset_id, seq);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tenure_events`)
				return err
			},
		},
	)
}
