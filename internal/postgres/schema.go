package postgres

import (
	"context"
	"io"
	"strings"

	ierr "github.com/flexprice/planshift/internal/errors"
)

// schema is applied in order; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		user_id                 TEXT PRIMARY KEY,
		email                   TEXT NOT NULL DEFAULT '',
		customer_ref            TEXT NOT NULL DEFAULT '',
		active_subscription_ref TEXT NOT NULL DEFAULT '',
		cached_plan_id          TEXT NOT NULL DEFAULT '',
		created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_profiles_customer_ref
		ON profiles (customer_ref) WHERE customer_ref <> ''`,
	`CREATE TABLE IF NOT EXISTS plan_change_audit (
		id               TEXT PRIMARY KEY,
		subscription_ref TEXT NOT NULL,
		customer_ref     TEXT NOT NULL DEFAULT '',
		user_id          TEXT NOT NULL DEFAULT '',
		price_ref        TEXT NOT NULL DEFAULT '',
		plan_id          TEXT NOT NULL DEFAULT '',
		event_type       TEXT NOT NULL,
		effective_at     TIMESTAMPTZ,
		occurred_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_plan_change_audit_subscription
		ON plan_change_audit (subscription_ref, occurred_at DESC)`,
}

// Migrate applies the schema
func Migrate(ctx context.Context, db *DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return ierr.WithError(err).
				WithHintf("Migration step %d failed", i+1).
				Mark(ierr.ErrDatabase)
		}
	}
	return nil
}

// WriteSchema prints the statements Migrate would run
func WriteSchema(w io.Writer) error {
	_, err := io.WriteString(w, strings.Join(schema, ";\n\n")+";\n")
	return err
}
