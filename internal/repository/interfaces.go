package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/bnpl-engine/internal/domain"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("record not found")

// ApplicationRepository defines the data operations for applications and
// their installments.
type ApplicationRepository interface {
	// Create persists a new application
	Create(ctx context.Context, app *domain.Application) error

	// GetByID retrieves an application without locking it
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Application, error)

	// List returns an owner's applications, newest first
	List(ctx context.Context, filter domain.ApplicationFilter) ([]*domain.Application, error)

	// GetStats rolls up an owner's applications in a single statement
	GetStats(ctx context.Context, ownerID string) (*domain.Stats, error)

	// GetInstallment retrieves an installment without locking it
	GetInstallment(ctx context.Context, id uuid.UUID) (*domain.Installment, error)

	// ListInstallments returns an application's installments ordered by number
	ListInstallments(ctx context.Context, applicationID uuid.UUID) ([]*domain.Installment, error)

	// ListOverdueCandidates pages through outstanding installments of live
	// applications whose overdue date is at or before asOf, ordered by
	// (overdue_date, id) and starting strictly after the cursor
	ListOverdueCandidates(ctx context.Context, asOf time.Time, after *domain.SweepCursor, limit int) ([]*domain.Installment, error)

	// ListUpcoming returns outstanding installments of active applications due
	// in [from, to). An empty ownerID matches every owner.
	ListUpcoming(ctx context.Context, ownerID string, from, to time.Time) ([]*domain.Installment, error)

	// WithinTx runs fn in one transaction, committing only if fn returns nil
	WithinTx(ctx context.Context, fn func(tx TxRepository) error) error

	// Ping checks that the store is reachable
	Ping(ctx context.Context) error
}

// TxRepository is the view of the store inside a transaction. Rows read through
// the Lock methods stay locked until the transaction ends. Callers lock the
// application before any of its installments.
type TxRepository interface {
	LockApplication(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	LockInstallment(ctx context.Context, id uuid.UUID) (*domain.Installment, error)
	GetInstallment(ctx context.Context, id uuid.UUID) (*domain.Installment, error)
	ListInstallments(ctx context.Context, applicationID uuid.UUID) ([]*domain.Installment, error)
	UpdateApplication(ctx context.Context, app *domain.Application) error
	CreateInstallments(ctx context.Context, installments []*domain.Installment) error
	UpdateInstallment(ctx context.Context, inst *domain.Installment) error
}
