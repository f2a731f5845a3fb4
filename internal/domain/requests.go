package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DTOs for requests and responses

type CreateApplicationRequest struct {
	OwnerID            string           `json:"owner_id" validate:"required,max=128"`
	PurchaseAmount     int64            `json:"purchase_amount" validate:"required,gt=0"`
	DownPayment        int64            `json:"down_payment" validate:"gte=0,ltfield=PurchaseAmount"`
	InstallmentCount   int              `json:"installment_count" validate:"required,gte=1"`
	InterestRate       *decimal.Decimal `json:"interest_rate"` // nil uses the configured default
	MerchantName       string           `json:"merchant_name" validate:"max=256"`
	MerchantID         string           `json:"merchant_id" validate:"max=128"`
	ProductDescription string           `json:"product_description" validate:"max=1024"`
	OrderID            string           `json:"order_id" validate:"max=128"`
}

// Terms are the repayment terms returned with an approval.
type Terms struct {
	FinancedAmount    int64     `json:"financed_amount"`
	InstallmentCount  int       `json:"installment_count"`
	InstallmentAmount int64     `json:"installment_amount"`
	FinalInstallment  int64     `json:"final_installment_amount"`
	TotalInterest     int64     `json:"total_interest"`
	TotalRepayment    int64     `json:"total_repayment"`
	FirstPaymentDate  time.Time `json:"first_payment_date"`
	LastPaymentDate   time.Time `json:"last_payment_date"`
}

type DecisionResponse struct {
	ApplicationID uuid.UUID         `json:"application_id"`
	Approved      bool              `json:"approved"`
	Status        ApplicationStatus `json:"status"`
	Terms         *Terms            `json:"terms,omitempty"`
	DenialReason  string            `json:"denial_reason,omitempty"`
	RiskLevel     RiskLevel         `json:"risk_level"`
	CreditScore   *int              `json:"credit_score"`
}

type PayInstallmentRequest struct {
	PaymentMethod string `json:"payment_method" validate:"max=64"`
	TransactionID string `json:"transaction_id" validate:"max=128"`
}

type PaymentResponse struct {
	Installment *Installment `json:"installment"`
	Application *Application `json:"application"`
}

type ApplicationDetails struct {
	Application  *Application   `json:"application"`
	Installments []*Installment `json:"installments"`
}

type CancelApplicationRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

type MarkDefaultedRequest struct {
	Reason string `json:"reason" validate:"required,max=256"`
}

// ApplicationFilter selects an owner's applications page by page.
type ApplicationFilter struct {
	OwnerID string
	Status  ApplicationStatus
	Limit   int
	Offset  int
}

type EligibilityRequest struct {
	OwnerID        string `json:"owner_id" validate:"required,max=128"`
	PurchaseAmount int64  `json:"purchase_amount" validate:"required,gt=0"`
}

type EligibilityResponse struct {
	OwnerID    string    `json:"owner_id"`
	Eligible   bool      `json:"eligible"`
	RiskLevel  RiskLevel `json:"risk_level"`
	MaxAllowed int64     `json:"max_allowed"`
	Reason     string    `json:"reason,omitempty"`
}

// Stats is a single-snapshot rollup of an owner's applications.
type Stats struct {
	OwnerID           string `json:"owner_id" db:"owner_id"`
	TotalApplications int64  `json:"total_applications" db:"total_applications"`
	Pending           int64  `json:"pending" db:"pending"`
	Active            int64  `json:"active" db:"active"`
	Completed         int64  `json:"completed" db:"completed"`
	Defaulted         int64  `json:"defaulted" db:"defaulted"`
	Cancelled         int64  `json:"cancelled" db:"cancelled"`
	TotalFinanced     int64  `json:"total_financed" db:"total_financed"`
	TotalPaid         int64  `json:"total_paid" db:"total_paid"`
	RemainingBalance  int64  `json:"remaining_balance" db:"remaining_balance"`
	TotalLateFees     int64  `json:"total_late_fees" db:"total_late_fees"`
}

// CreditReport is what the external score provider returns for an owner.
type CreditReport struct {
	OwnerID   string    `json:"owner_id"`
	Score     int       `json:"score"`
	RiskTier  RiskLevel `json:"risk_tier"`
	CheckedAt time.Time `json:"checked_at"`
}

// SweepCursor marks the last installment a sweep page ended on.
type SweepCursor struct {
	OverdueDate time.Time
	ID          uuid.UUID
}

type SweepResult struct {
	Scanned          int       `json:"scanned"`
	MarkedOverdue    int       `json:"marked_overdue"`
	Skipped          int       `json:"skipped"`
	Failed           int       `json:"failed"`
	LateFeesAssessed int64     `json:"late_fees_assessed"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}
