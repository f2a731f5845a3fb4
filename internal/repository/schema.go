package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS applications (
		id                  UUID PRIMARY KEY,
		owner_id            VARCHAR(128) NOT NULL,
		merchant_name       VARCHAR(256) NOT NULL DEFAULT '',
		merchant_id         VARCHAR(128) NOT NULL DEFAULT '',
		product_description VARCHAR(1024) NOT NULL DEFAULT '',
		order_id            VARCHAR(128) NOT NULL DEFAULT '',
		purchase_amount     BIGINT NOT NULL CHECK (purchase_amount > 0),
		down_payment        BIGINT NOT NULL CHECK (down_payment >= 0),
		financed_amount     BIGINT NOT NULL CHECK (financed_amount > 0),
		installment_count   INTEGER NOT NULL CHECK (installment_count > 0),
		installment_amount  BIGINT NOT NULL,
		interest_rate       NUMERIC(9,4) NOT NULL,
		total_interest      BIGINT NOT NULL,
		total_repayment     BIGINT NOT NULL,
		remaining_balance   BIGINT NOT NULL CHECK (remaining_balance >= 0),
		total_paid          BIGINT NOT NULL DEFAULT 0,
		paid_installments   INTEGER NOT NULL DEFAULT 0,
		missed_payments     INTEGER NOT NULL DEFAULT 0,
		total_late_fees     BIGINT NOT NULL DEFAULT 0,
		status              VARCHAR(16) NOT NULL,
		credit_check_score  INTEGER,
		risk_level          VARCHAR(16) NOT NULL DEFAULT '',
		credit_check_date   TIMESTAMPTZ,
		decision_degraded   BOOLEAN NOT NULL DEFAULT FALSE,
		denial_reason       VARCHAR(512) NOT NULL DEFAULT '',
		cancel_reason       VARCHAR(512) NOT NULL DEFAULT '',
		default_reason      VARCHAR(512) NOT NULL DEFAULT '',
		first_payment_date  TIMESTAMPTZ,
		last_payment_date   TIMESTAMPTZ,
		next_payment_date   TIMESTAMPTZ,
		approved_at         TIMESTAMPTZ,
		completed_at        TIMESTAMPTZ,
		cancelled_at        TIMESTAMPTZ,
		defaulted_at        TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_owner ON applications (owner_id, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS installments (
		id                 UUID PRIMARY KEY,
		application_id     UUID NOT NULL REFERENCES applications (id),
		installment_number INTEGER NOT NULL,
		amount             BIGINT NOT NULL CHECK (amount > 0),
		due_date           TIMESTAMPTZ NOT NULL,
		grace_period_end   TIMESTAMPTZ NOT NULL,
		overdue_date       TIMESTAMPTZ NOT NULL,
		status             VARCHAR(16) NOT NULL,
		paid_amount        BIGINT NOT NULL DEFAULT 0,
		paid_date          TIMESTAMPTZ,
		payment_method     VARCHAR(64) NOT NULL DEFAULT '',
		transaction_id     VARCHAR(128) NOT NULL DEFAULT '',
		late_fee           BIGINT NOT NULL DEFAULT 0,
		overdue_at         TIMESTAMPTZ,
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL,
		UNIQUE (application_id, installment_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_installments_overdue ON installments (status, overdue_date, id)`,
	`CREATE INDEX IF NOT EXISTS idx_installments_due ON installments (status, due_date)`,
}

// sqliteTypes maps Postgres column types to ones SQLite stores losslessly.
var sqliteTypes = strings.NewReplacer(
	"TIMESTAMPTZ", "TIMESTAMP",
	"NUMERIC(9,4)", "TEXT",
	"UUID", "TEXT",
)

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if isSQLite(db.DriverName()) {
			stmt = sqliteTypes.Replace(stmt)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func isSQLite(driver string) bool {
	return driver == "sqlite3" || driver == "sqlite"
}
