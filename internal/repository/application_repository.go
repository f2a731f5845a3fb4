package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/bnpl-engine/internal/domain"
)

var applicationColumns = []string{
	"id", "owner_id", "merchant_name", "merchant_id", "product_description", "order_id",
	"purchase_amount", "down_payment", "financed_amount", "installment_count", "installment_amount",
	"interest_rate", "total_interest", "total_repayment", "remaining_balance", "total_paid",
	"paid_installments", "missed_payments", "total_late_fees", "status",
	"credit_check_score", "risk_level", "credit_check_date", "decision_degraded",
	"denial_reason", "cancel_reason", "default_reason",
	"first_payment_date", "last_payment_date", "next_payment_date",
	"approved_at", "completed_at", "cancelled_at", "defaulted_at", "created_at", "updated_at",
}

var installmentColumns = []string{
	"id", "application_id", "installment_number", "amount", "due_date", "grace_period_end",
	"overdue_date", "status", "paid_amount", "paid_date", "payment_method", "transaction_id",
	"late_fee", "overdue_at", "created_at", "updated_at",
}

var (
	selectApplication = "SELECT " + strings.Join(applicationColumns, ", ") + " FROM applications"
	insertApplication = insertStatement("applications", applicationColumns)
	updateApplication = updateStatement("applications", applicationColumns)

	selectInstallment = "SELECT " + strings.Join(installmentColumns, ", ") + " FROM installments"
	insertInstallment = insertStatement("installments", installmentColumns)
	updateInstallment = updateStatement("installments", installmentColumns)

	qualifiedInstallmentColumns = "i." + strings.Join(installmentColumns, ", i.")
)

const statsQuery = `
	SELECT
		COUNT(*) AS total_applications,
		COALESCE(SUM(CASE WHEN status = 'PENDING' THEN 1 ELSE 0 END), 0) AS pending,
		COALESCE(SUM(CASE WHEN status = 'ACTIVE' THEN 1 ELSE 0 END), 0) AS active,
		COALESCE(SUM(CASE WHEN status = 'COMPLETED' THEN 1 ELSE 0 END), 0) AS completed,
		COALESCE(SUM(CASE WHEN status = 'DEFAULTED' THEN 1 ELSE 0 END), 0) AS defaulted,
		COALESCE(SUM(CASE WHEN status = 'CANCELLED' THEN 1 ELSE 0 END), 0) AS cancelled,
		COALESCE(SUM(CASE WHEN status IN ('ACTIVE', 'COMPLETED') THEN financed_amount ELSE 0 END), 0) AS total_financed,
		COALESCE(SUM(total_paid), 0) AS total_paid,
		COALESCE(SUM(CASE WHEN status = 'ACTIVE' THEN remaining_balance ELSE 0 END), 0) AS remaining_balance,
		COALESCE(SUM(total_late_fees), 0) AS total_late_fees
	FROM applications
	WHERE owner_id = ?
`

func insertStatement(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)",
		table, strings.Join(columns, ", "), strings.Join(columns, ", :"))
}

func updateStatement(table string, columns []string) string {
	sets := make([]string, 0, len(columns)-1)
	for _, col := range columns {
		if col == "id" {
			continue
		}
		sets = append(sets, col+" = :"+col)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = :id", table, strings.Join(sets, ", "))
}

type applicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository returns a repository over Postgres or SQLite.
func NewApplicationRepository(db *sqlx.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

func (r *applicationRepository) Create(ctx context.Context, app *domain.Application) error {
	return namedExec(ctx, r.db, insertApplication, normalizeApplication(app))
}

func (r *applicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return getApplication(ctx, r.db, id, false)
}

func (r *applicationRepository) List(ctx context.Context, filter domain.ApplicationFilter) ([]*domain.Application, error) {
	query := selectApplication + " WHERE owner_id = ?"
	args := []interface{}{filter.OwnerID}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	apps := []*domain.Application{}
	if err := sqlx.SelectContext(ctx, r.db, &apps, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *applicationRepository) GetStats(ctx context.Context, ownerID string) (*domain.Stats, error) {
	var stats domain.Stats
	if err := sqlx.GetContext(ctx, r.db, &stats, r.db.Rebind(statsQuery), ownerID); err != nil {
		return nil, err
	}
	stats.OwnerID = ownerID
	return &stats, nil
}

func (r *applicationRepository) GetInstallment(ctx context.Context, id uuid.UUID) (*domain.Installment, error) {
	return getInstallment(ctx, r.db, id, false)
}

func (r *applicationRepository) ListInstallments(ctx context.Context, applicationID uuid.UUID) ([]*domain.Installment, error) {
	return listInstallments(ctx, r.db, applicationID)
}

func (r *applicationRepository) ListOverdueCandidates(ctx context.Context, asOf time.Time, after *domain.SweepCursor, limit int) ([]*domain.Installment, error) {
	query := "SELECT " + qualifiedInstallmentColumns + `
		FROM installments i
		JOIN applications a ON a.id = i.application_id
		WHERE i.status IN (?)
		  AND a.status IN ('ACTIVE', 'DEFAULTED')
		  AND i.overdue_date <= ?`
	args := []interface{}{outstandingStatuses(), asOf.UTC()}

	if after != nil {
		query += " AND (i.overdue_date > ? OR (i.overdue_date = ? AND i.id > ?))"
		args = append(args, after.OverdueDate.UTC(), after.OverdueDate.UTC(), after.ID)
	}

	query += " ORDER BY i.overdue_date, i.id LIMIT ?"
	args = append(args, limit)

	return r.selectInstallments(ctx, query, args)
}

func (r *applicationRepository) ListUpcoming(ctx context.Context, ownerID string, from, to time.Time) ([]*domain.Installment, error) {
	query := "SELECT " + qualifiedInstallmentColumns + `
		FROM installments i
		JOIN applications a ON a.id = i.application_id
		WHERE i.status IN (?)
		  AND a.status = 'ACTIVE'
		  AND i.due_date >= ? AND i.due_date < ?`
	args := []interface{}{outstandingStatuses(), from.UTC(), to.UTC()}

	if ownerID != "" {
		query += " AND a.owner_id = ?"
		args = append(args, ownerID)
	}
	query += " ORDER BY i.due_date, i.id"

	return r.selectInstallments(ctx, query, args)
}

// selectInstallments expands IN (?) slice arguments before rebinding for the driver.
func (r *applicationRepository) selectInstallments(ctx context.Context, query string, args []interface{}) ([]*domain.Installment, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}

	installments := []*domain.Installment{}
	if err := sqlx.SelectContext(ctx, r.db, &installments, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return installments, nil
}

func outstandingStatuses() []string {
	statuses := make([]string, len(domain.OutstandingStatuses))
	for i, s := range domain.OutstandingStatuses {
		statuses[i] = string(s)
	}
	return statuses
}

func (r *applicationRepository) WithinTx(ctx context.Context, fn func(tx TxRepository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&txRepository{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *applicationRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type txRepository struct {
	tx *sqlx.Tx
}

func (t *txRepository) LockApplication(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return getApplication(ctx, t.tx, id, true)
}

func (t *txRepository) LockInstallment(ctx context.Context, id uuid.UUID) (*domain.Installment, error) {
	return getInstallment(ctx, t.tx, id, true)
}

func (t *txRepository) GetInstallment(ctx context.Context, id uuid.UUID) (*domain.Installment, error) {
	return getInstallment(ctx, t.tx, id, false)
}

func (t *txRepository) ListInstallments(ctx context.Context, applicationID uuid.UUID) ([]*domain.Installment, error) {
	return listInstallments(ctx, t.tx, applicationID)
}

func (t *txRepository) UpdateApplication(ctx context.Context, app *domain.Application) error {
	return namedExecOne(ctx, t.tx, updateApplication, normalizeApplication(app))
}

func (t *txRepository) CreateInstallments(ctx context.Context, installments []*domain.Installment) error {
	for _, inst := range installments {
		if err := namedExec(ctx, t.tx, insertInstallment, normalizeInstallment(inst)); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) UpdateInstallment(ctx context.Context, inst *domain.Installment) error {
	return namedExecOne(ctx, t.tx, updateInstallment, normalizeInstallment(inst))
}

func getApplication(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, forUpdate bool) (*domain.Application, error) {
	query := selectApplication + " WHERE id = ?" + lockClause(q, forUpdate)

	var app domain.Application
	if err := sqlx.GetContext(ctx, q, &app, q.Rebind(query), id); err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

func getInstallment(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, forUpdate bool) (*domain.Installment, error) {
	query := selectInstallment + " WHERE id = ?" + lockClause(q, forUpdate)

	var inst domain.Installment
	if err := sqlx.GetContext(ctx, q, &inst, q.Rebind(query), id); err != nil {
		return nil, notFound(err)
	}
	return &inst, nil
}

func listInstallments(ctx context.Context, q sqlx.ExtContext, applicationID uuid.UUID) ([]*domain.Installment, error) {
	query := selectInstallment + " WHERE application_id = ? ORDER BY installment_number"

	installments := []*domain.Installment{}
	if err := sqlx.SelectContext(ctx, q, &installments, q.Rebind(query), applicationID); err != nil {
		return nil, err
	}
	return installments, nil
}

// lockClause adds a row lock where the dialect has one. SQLite runs a single
// connection, so its transactions are already serialized.
func lockClause(q sqlx.ExtContext, forUpdate bool) string {
	if forUpdate && q.DriverName() == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

func namedExec(ctx context.Context, e sqlx.ExtContext, query string, arg interface{}) error {
	_, err := sqlx.NamedExecContext(ctx, e, query, arg)
	return err
}

func namedExecOne(ctx context.Context, e sqlx.ExtContext, query string, arg interface{}) error {
	res, err := sqlx.NamedExecContext(ctx, e, query, arg)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// normalizeApplication returns a copy with every timestamp in UTC so that
// SQLite's text encoding sorts chronologically.
func normalizeApplication(app *domain.Application) *domain.Application {
	c := *app
	c.CreditCheckDate = utcPtr(c.CreditCheckDate)
	c.FirstPaymentDate = utcPtr(c.FirstPaymentDate)
	c.LastPaymentDate = utcPtr(c.LastPaymentDate)
	c.NextPaymentDate = utcPtr(c.NextPaymentDate)
	c.ApprovedAt = utcPtr(c.ApprovedAt)
	c.CompletedAt = utcPtr(c.CompletedAt)
	c.CancelledAt = utcPtr(c.CancelledAt)
	c.DefaultedAt = utcPtr(c.DefaultedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c
}

func normalizeInstallment(inst *domain.Installment) *domain.Installment {
	c := *inst
	c.DueDate = c.DueDate.UTC()
	c.GracePeriodEnd = c.GracePeriodEnd.UTC()
	c.OverdueDate = c.OverdueDate.UTC()
	c.PaidDate = utcPtr(c.PaidDate)
	c.OverdueAt = utcPtr(c.OverdueAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
