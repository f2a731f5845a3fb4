package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"

	customError "github.com/segyhp/bnpl-engine/pkg/errors"
)

// InstallmentStatus is the state of one scheduled payment.
type InstallmentStatus string

const (
	InstallmentStatusScheduled InstallmentStatus = "SCHEDULED"
	InstallmentStatusPending   InstallmentStatus = "PENDING" // the installment currently due
	InstallmentStatusPaid      InstallmentStatus = "PAID"
	InstallmentStatusOverdue   InstallmentStatus = "OVERDUE"
)

// OutstandingStatuses are the states that still expect a payment.
var OutstandingStatuses = []InstallmentStatus{InstallmentStatusScheduled, InstallmentStatusPending}

// IsOutstanding reports whether the installment is neither paid nor overdue.
func (s InstallmentStatus) IsOutstanding() bool {
	return slices.Contains(OutstandingStatuses, s)
}

// Installment represents one scheduled payment of an application
type Installment struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	ApplicationID     uuid.UUID         `json:"application_id" db:"application_id"`
	InstallmentNumber int               `json:"installment_number" db:"installment_number"`
	Amount            int64             `json:"amount" db:"amount"`
	DueDate           time.Time         `json:"due_date" db:"due_date"`
	GracePeriodEnd    time.Time         `json:"grace_period_end" db:"grace_period_end"`
	OverdueDate       time.Time         `json:"overdue_date" db:"overdue_date"`
	Status            InstallmentStatus `json:"status" db:"status"`

	PaidAmount    int64      `json:"paid_amount" db:"paid_amount"`
	PaidDate      *time.Time `json:"paid_date,omitempty" db:"paid_date"`
	PaymentMethod string     `json:"payment_method,omitempty" db:"payment_method"`
	TransactionID string     `json:"transaction_id,omitempty" db:"transaction_id"`

	LateFee   int64      `json:"late_fee" db:"late_fee"`
	OverdueAt *time.Time `json:"overdue_at,omitempty" db:"overdue_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MarkDue flags a scheduled installment as the one currently due.
func (i *Installment) MarkDue(at time.Time) error {
	if i.Status != InstallmentStatusScheduled {
		return customError.WrapInvalidTransition("installment "+i.ID.String(), string(i.Status), string(InstallmentStatusPending))
	}
	i.Status = InstallmentStatusPending
	i.UpdatedAt = at
	return nil
}

// MarkPaid records a captured payment. PAID is terminal.
func (i *Installment) MarkPaid(method, transactionID string, at time.Time) error {
	if i.Status == InstallmentStatusPaid {
		return customError.WrapAlreadyPaid(i.ID.String())
	}
	i.Status = InstallmentStatusPaid
	i.PaidAmount = i.Amount
	i.PaidDate = &at
	i.PaymentMethod = method
	i.TransactionID = transactionID
	i.UpdatedAt = at
	return nil
}

// MarkOverdue flags an outstanding installment as delinquent and charges the fee.
func (i *Installment) MarkOverdue(lateFee int64, at time.Time) error {
	if !i.Status.IsOutstanding() {
		return customError.WrapInvalidTransition("installment "+i.ID.String(), string(i.Status), string(InstallmentStatusOverdue))
	}
	i.Status = InstallmentStatusOverdue
	i.LateFee += lateFee
	i.OverdueAt = &at
	i.UpdatedAt = at
	return nil
}

// NextOutstanding returns the lowest-numbered unpaid installment, or nil.
// installments must be ordered by installment number.
func NextOutstanding(installments []*Installment) *Installment {
	for _, inst := range installments {
		if inst.Status != InstallmentStatusPaid {
			return inst
		}
	}
	return nil
}
