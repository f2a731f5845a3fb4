package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	customError "github.com/segyhp/bnpl-engine/pkg/errors"
)

// ApplicationStatus is the lifecycle state of a financing application.
type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "PENDING"
	ApplicationStatusApproved  ApplicationStatus = "APPROVED"
	ApplicationStatusActive    ApplicationStatus = "ACTIVE"
	ApplicationStatusCompleted ApplicationStatus = "COMPLETED"
	ApplicationStatusDefaulted ApplicationStatus = "DEFAULTED"
	ApplicationStatusCancelled ApplicationStatus = "CANCELLED"
)

// IsValid reports whether s is one of the known states.
func (s ApplicationStatus) IsValid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusApproved, ApplicationStatusActive,
		ApplicationStatusCompleted, ApplicationStatusDefaulted, ApplicationStatusCancelled:
		return true
	}
	return false
}

// RiskLevel is the coarse credit tier returned by the score provider.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// IsValid reports whether r is a known tier.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical:
		return true
	}
	return false
}

// ParseRiskLevel converts a provider string into a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(s)
	if !r.IsValid() {
		return "", fmt.Errorf("unknown risk level %q", s)
	}
	return r, nil
}

// Application represents one BNPL loan. All money fields are in minor units (cents).
type Application struct {
	ID      uuid.UUID `json:"id" db:"id"`
	OwnerID string    `json:"owner_id" db:"owner_id"`

	MerchantName       string `json:"merchant_name,omitempty" db:"merchant_name"`
	MerchantID         string `json:"merchant_id,omitempty" db:"merchant_id"`
	ProductDescription string `json:"product_description,omitempty" db:"product_description"`
	OrderID            string `json:"order_id,omitempty" db:"order_id"`

	PurchaseAmount    int64           `json:"purchase_amount" db:"purchase_amount"`
	DownPayment       int64           `json:"down_payment" db:"down_payment"`
	FinancedAmount    int64           `json:"financed_amount" db:"financed_amount"`
	InstallmentCount  int             `json:"installment_count" db:"installment_count"`
	InstallmentAmount int64           `json:"installment_amount" db:"installment_amount"`
	InterestRate      decimal.Decimal `json:"interest_rate" db:"interest_rate"`
	TotalInterest     int64           `json:"total_interest" db:"total_interest"`
	TotalRepayment    int64           `json:"total_repayment" db:"total_repayment"`
	RemainingBalance  int64           `json:"remaining_balance" db:"remaining_balance"`
	TotalPaid         int64           `json:"total_paid" db:"total_paid"`
	PaidInstallments  int             `json:"paid_installments" db:"paid_installments"`
	MissedPayments    int             `json:"missed_payments" db:"missed_payments"`
	TotalLateFees     int64           `json:"total_late_fees" db:"total_late_fees"`

	Status ApplicationStatus `json:"status" db:"status"`

	CreditCheckScore *int       `json:"credit_check_score,omitempty" db:"credit_check_score"`
	RiskLevel        RiskLevel  `json:"risk_level,omitempty" db:"risk_level"`
	CreditCheckDate  *time.Time `json:"credit_check_date,omitempty" db:"credit_check_date"`
	DecisionDegraded bool       `json:"decision_degraded" db:"decision_degraded"`
	DenialReason     string     `json:"denial_reason,omitempty" db:"denial_reason"`
	CancelReason     string     `json:"cancel_reason,omitempty" db:"cancel_reason"`
	DefaultReason    string     `json:"default_reason,omitempty" db:"default_reason"`

	FirstPaymentDate *time.Time `json:"first_payment_date,omitempty" db:"first_payment_date"`
	LastPaymentDate  *time.Time `json:"last_payment_date,omitempty" db:"last_payment_date"`
	NextPaymentDate  *time.Time `json:"next_payment_date" db:"next_payment_date"`

	ApprovedAt  *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	DefaultedAt *time.Time `json:"defaulted_at,omitempty" db:"defaulted_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

func (a *Application) transitionError(to ApplicationStatus) error {
	return customError.WrapInvalidTransition("application "+a.ID.String(), string(a.Status), string(to))
}

// RecordCreditCheck stores the risk snapshot taken at decision time.
func (a *Application) RecordCreditCheck(score *int, level RiskLevel, degraded bool, at time.Time) error {
	if a.Status != ApplicationStatusPending {
		return customError.WrapAlreadyDecided(a.ID.String(), string(a.Status))
	}
	a.CreditCheckScore = score
	a.RiskLevel = level
	a.CreditCheckDate = &at
	a.DecisionDegraded = degraded
	a.UpdatedAt = at
	return nil
}

// Approve moves a pending application to APPROVED.
func (a *Application) Approve(at time.Time) error {
	if a.Status != ApplicationStatusPending {
		return a.transitionError(ApplicationStatusApproved)
	}
	a.Status = ApplicationStatusApproved
	a.ApprovedAt = &at
	a.UpdatedAt = at
	return nil
}

// Activate moves an approved application to ACTIVE once its schedule exists.
func (a *Application) Activate(firstDue, lastDue time.Time, at time.Time) error {
	if a.Status != ApplicationStatusApproved {
		return a.transitionError(ApplicationStatusActive)
	}
	a.Status = ApplicationStatusActive
	a.FirstPaymentDate = &firstDue
	a.LastPaymentDate = &lastDue
	next := firstDue
	a.NextPaymentDate = &next
	a.UpdatedAt = at
	return nil
}

// Deny closes a pending application with a denial reason.
func (a *Application) Deny(reason string, at time.Time) error {
	if a.Status != ApplicationStatusPending {
		return a.transitionError(ApplicationStatusCancelled)
	}
	a.Status = ApplicationStatusCancelled
	a.DenialReason = reason
	a.CancelledAt = &at
	a.UpdatedAt = at
	return nil
}

// Cancel withdraws a pending application before it is decided. The reason is
// kept apart from DenialReason so a withdrawal never reads as a policy denial.
func (a *Application) Cancel(reason string, at time.Time) error {
	if a.Status != ApplicationStatusPending {
		return a.transitionError(ApplicationStatusCancelled)
	}
	a.Status = ApplicationStatusCancelled
	a.CancelReason = reason
	a.CancelledAt = &at
	a.UpdatedAt = at
	return nil
}

// MarkDefaulted applies an external defaulting decision to an active loan.
func (a *Application) MarkDefaulted(reason string, at time.Time) error {
	if a.Status != ApplicationStatusActive {
		return a.transitionError(ApplicationStatusDefaulted)
	}
	a.Status = ApplicationStatusDefaulted
	a.DefaultReason = reason
	a.DefaultedAt = &at
	a.UpdatedAt = at
	return nil
}

// ApplyPayment rolls one paid installment into the balances. next is the due
// date of the next outstanding installment, or nil when none remain.
func (a *Application) ApplyPayment(amount int64, next *time.Time, at time.Time) error {
	if a.Status != ApplicationStatusActive {
		return customError.WrapApplicationNotActive(a.ID.String(), string(a.Status))
	}
	a.RemainingBalance -= amount
	a.TotalPaid += amount
	a.PaidInstallments++
	a.UpdatedAt = at

	if a.PaidInstallments == a.InstallmentCount {
		a.Status = ApplicationStatusCompleted
		a.CompletedAt = &at
		a.NextPaymentDate = nil
		return nil
	}
	a.NextPaymentDate = next
	return nil
}

// RecordMissedPayment rolls one overdue installment into the delinquency counters.
func (a *Application) RecordMissedPayment(lateFee int64, at time.Time) error {
	if a.Status != ApplicationStatusActive && a.Status != ApplicationStatusDefaulted {
		return customError.WrapApplicationNotActive(a.ID.String(), string(a.Status))
	}
	a.MissedPayments++
	a.TotalLateFees += lateFee
	a.UpdatedAt = at
	return nil
}

// CheckInvariants verifies the balance roll-up against the schedule. installments
// may be nil when the schedule is not loaded; the count checks are skipped then.
func (a *Application) CheckInvariants(installments []*Installment) error {
	if a.RemainingBalance != a.TotalRepayment-a.TotalPaid {
		return fmt.Errorf("remaining balance %d != total repayment %d - total paid %d",
			a.RemainingBalance, a.TotalRepayment, a.TotalPaid)
	}
	if a.RemainingBalance < 0 {
		return fmt.Errorf("remaining balance %d is negative", a.RemainingBalance)
	}
	if a.PaidInstallments > a.InstallmentCount {
		return fmt.Errorf("paid installments %d exceed installment count %d", a.PaidInstallments, a.InstallmentCount)
	}
	if (a.Status == ApplicationStatusCompleted) != (a.PaidInstallments == a.InstallmentCount) {
		return fmt.Errorf("status %s inconsistent with %d/%d paid installments",
			a.Status, a.PaidInstallments, a.InstallmentCount)
	}
	if installments == nil {
		return nil
	}

	paid := 0
	var paidSum, scheduled int64
	for _, inst := range installments {
		scheduled += inst.Amount
		if inst.Status == InstallmentStatusPaid {
			paid++
			paidSum += inst.PaidAmount
		}
	}
	if paid != a.PaidInstallments {
		return fmt.Errorf("paid installments %d != %d installments in PAID state", a.PaidInstallments, paid)
	}
	if paidSum != a.TotalPaid {
		return fmt.Errorf("total paid %d != sum of paid installments %d", a.TotalPaid, paidSum)
	}
	if scheduled != a.TotalRepayment {
		return fmt.Errorf("schedule sums to %d, total repayment is %d", scheduled, a.TotalRepayment)
	}
	return nil
}
