// Package financing holds the pure money math of a BNPL loan: the amortization
// quote and the installment schedule built from it.
package financing

import (
	"fmt"

	"github.com/shopspring/decimal"

	customError "github.com/segyhp/bnpl-engine/pkg/errors"
	"github.com/segyhp/bnpl-engine/pkg/utils"
)

// percentMonths converts percent-per-year times months into a fraction: 100 * 12.
var percentMonths = decimal.NewFromInt(1200)

// Quote is the result of amortizing one purchase. Amounts are in minor units.
type Quote struct {
	PurchaseAmount         int64           `json:"purchase_amount"`
	DownPayment            int64           `json:"down_payment"`
	FinancedAmount         int64           `json:"financed_amount"`
	InstallmentCount       int             `json:"installment_count"`
	InterestRate           decimal.Decimal `json:"interest_rate"`
	TotalInterest          int64           `json:"total_interest"`
	TotalRepayment         int64           `json:"total_repayment"`
	InstallmentAmount      int64           `json:"installment_amount"`
	FinalInstallmentAmount int64           `json:"final_installment_amount"`
}

// Calculator amortizes purchases within configured product limits.
type Calculator struct {
	maxInstallments int
	maxInterestRate decimal.Decimal
}

// NewCalculator creates a calculator. A non-positive maxInstallments or a zero
// maxInterestRate disables the corresponding limit.
func NewCalculator(maxInstallments int, maxInterestRate decimal.Decimal) *Calculator {
	return &Calculator{
		maxInstallments: maxInstallments,
		maxInterestRate: maxInterestRate,
	}
}

// Quote computes the financed amount, simple interest and installment size.
//
//	financed    = purchase - down
//	interest    = floor(financed * rate/100 * count/12)
//	repayment   = financed + interest
//	installment = ceil(repayment / count)
//
// The final installment absorbs the rounding so the schedule sums to repayment.
func (c *Calculator) Quote(purchase, down int64, count int, rate decimal.Decimal) (*Quote, error) {
	if err := c.validate(purchase, down, count, rate); err != nil {
		return nil, err
	}

	financed := purchase - down

	// Exact rational arithmetic; QuoRem with precision 0 truncates, which is
	// floor for non-negative operands.
	numerator := decimal.NewFromInt(financed).Mul(rate).Mul(decimal.NewFromInt(int64(count)))
	interest, _ := numerator.QuoRem(percentMonths, 0)

	totalInterest := interest.IntPart()
	totalRepayment := financed + totalInterest
	installment := utils.CeilDiv(totalRepayment, int64(count))
	final := totalRepayment - installment*int64(count-1)

	if final <= 0 {
		return nil, customError.WrapValidation("installment_count",
			fmt.Sprintf("%d installments of %d leave nothing for the final installment of a %d repayment",
				count, installment, totalRepayment))
	}

	return &Quote{
		PurchaseAmount:         purchase,
		DownPayment:            down,
		FinancedAmount:         financed,
		InstallmentCount:       count,
		InterestRate:           rate,
		TotalInterest:          totalInterest,
		TotalRepayment:         totalRepayment,
		InstallmentAmount:      installment,
		FinalInstallmentAmount: final,
	}, nil
}

func (c *Calculator) validate(purchase, down int64, count int, rate decimal.Decimal) error {
	if purchase <= 0 {
		return customError.WrapValidation("purchase_amount", "must be greater than 0")
	}
	if down < 0 {
		return customError.WrapValidation("down_payment", "must not be negative")
	}
	if down >= purchase {
		return customError.WrapValidation("down_payment", "must be less than the purchase amount")
	}
	if count < 1 {
		return customError.WrapValidation("installment_count", "must be at least 1")
	}
	if c.maxInstallments > 0 && count > c.maxInstallments {
		return customError.WrapValidation("installment_count", fmt.Sprintf("must be at most %d", c.maxInstallments))
	}
	if rate.IsNegative() {
		return customError.WrapValidation("interest_rate", "must not be negative")
	}
	if c.maxInterestRate.IsPositive() && rate.GreaterThan(c.maxInterestRate) {
		return customError.WrapValidation("interest_rate", fmt.Sprintf("must be at most %s%%", c.maxInterestRate))
	}
	return nil
}

// InstallmentAmounts splits a repayment into count amounts: every amount equals
// ceil(total/count) except the last, which takes the remainder.
func InstallmentAmounts(totalRepayment int64, count int) []int64 {
	if count < 1 {
		return nil
	}
	installment := utils.CeilDiv(totalRepayment, int64(count))
	amounts := make([]int64, count)
	for i := 0; i < count-1; i++ {
		amounts[i] = installment
	}
	amounts[count-1] = totalRepayment - installment*int64(count-1)
	return amounts
}
