package financing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customError "github.com/segyhp/bnpl-engine/pkg/errors"
)

func TestCalculator_Quote(t *testing.T) {
	calc := NewCalculator(24, decimal.NewFromInt(36))

	tests := []struct {
		name              string
		purchase          int64
		down              int64
		count             int
		rate              decimal.Decimal
		expectedFinanced  int64
		expectedInterest  int64
		expectedTotal     int64
		expectedPerPeriod int64
		expectedFinal     int64
	}{
		{
			name:              "six installments divide evenly",
			purchase:          120000,
			count:             6,
			rate:              decimal.NewFromInt(5),
			expectedFinanced:  120000,
			expectedInterest:  3000, // 120000 * 0.05 * 6/12
			expectedTotal:     123000,
			expectedPerPeriod: 20500,
			expectedFinal:     20500,
		},
		{
			name:              "seven installments leave a shorter final one",
			purchase:          120000,
			count:             7,
			rate:              decimal.NewFromInt(5),
			expectedFinanced:  120000,
			expectedInterest:  3500,
			expectedTotal:     123500,
			expectedPerPeriod: 17643,
			expectedFinal:     17642,
		},
		{
			name:              "interest is floored",
			purchase:          99999,
			count:             3,
			rate:              decimal.NewFromInt(5),
			expectedFinanced:  99999,
			expectedInterest:  1249, // 1249.9875
			expectedTotal:     101248,
			expectedPerPeriod: 33750,
			expectedFinal:     33748,
		},
		{
			name:              "fractional rate with down payment",
			purchase:          150000,
			down:              50000,
			count:             12,
			rate:              decimal.RequireFromString("5.25"),
			expectedFinanced:  100000,
			expectedInterest:  5250,
			expectedTotal:     105250,
			expectedPerPeriod: 8771,
			expectedFinal:     8769,
		},
		{
			name:              "zero interest",
			purchase:          50000,
			count:             4,
			rate:              decimal.Zero,
			expectedFinanced:  50000,
			expectedInterest:  0,
			expectedTotal:     50000,
			expectedPerPeriod: 12500,
			expectedFinal:     12500,
		},
		{
			name:              "single installment",
			purchase:          4999,
			count:             1,
			rate:              decimal.NewFromInt(12),
			expectedFinanced:  4999,
			expectedInterest:  49, // 4999 * 0.12 / 12 = 49.99
			expectedTotal:     5048,
			expectedPerPeriod: 5048,
			expectedFinal:     5048,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := calc.Quote(tt.purchase, tt.down, tt.count, tt.rate)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedFinanced, quote.FinancedAmount)
			assert.Equal(t, tt.expectedInterest, quote.TotalInterest)
			assert.Equal(t, tt.expectedTotal, quote.TotalRepayment)
			assert.Equal(t, tt.expectedPerPeriod, quote.InstallmentAmount)
			assert.Equal(t, tt.expectedFinal, quote.FinalInstallmentAmount)
		})
	}
}

func TestCalculator_QuoteValidation(t *testing.T) {
	calc := NewCalculator(24, decimal.NewFromInt(36))

	tests := []struct {
		name     string
		purchase int64
		down     int64
		count    int
		rate     decimal.Decimal
		field    string
	}{
		{name: "zero purchase", purchase: 0, count: 3, rate: decimal.Zero, field: "purchase_amount"},
		{name: "negative purchase", purchase: -100, count: 3, rate: decimal.Zero, field: "purchase_amount"},
		{name: "negative down payment", purchase: 1000, down: -1, count: 3, rate: decimal.Zero, field: "down_payment"},
		{name: "down payment equals purchase", purchase: 1000, down: 1000, count: 3, rate: decimal.Zero, field: "down_payment"},
		{name: "zero installments", purchase: 1000, count: 0, rate: decimal.Zero, field: "installment_count"},
		{name: "too many installments", purchase: 100000, count: 25, rate: decimal.Zero, field: "installment_count"},
		{name: "negative rate", purchase: 1000, count: 3, rate: decimal.NewFromInt(-1), field: "interest_rate"},
		{name: "rate above cap", purchase: 1000, count: 3, rate: decimal.RequireFromString("36.01"), field: "interest_rate"},
		{name: "final installment would be negative", purchase: 10, count: 7, rate: decimal.Zero, field: "installment_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := calc.Quote(tt.purchase, tt.down, tt.count, tt.rate)
			assert.Nil(t, quote)
			require.Error(t, err)
			assert.True(t, errors.Is(err, customError.ErrValidation))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestInstallmentAmounts_Reconcile(t *testing.T) {
	calc := NewCalculator(0, decimal.Zero)
	rates := []decimal.Decimal{decimal.Zero, decimal.NewFromInt(5), decimal.RequireFromString("9.99"), decimal.NewFromInt(29)}

	for purchase := int64(1000); purchase <= 250000; purchase += 7919 {
		for count := 1; count <= 24; count++ {
			for _, rate := range rates {
				quote, err := calc.Quote(purchase, 0, count, rate)
				require.NoError(t, err)

				amounts := InstallmentAmounts(quote.TotalRepayment, count)
				require.Len(t, amounts, count)

				var sum int64
				for i, amount := range amounts {
					sum += amount
					if i < count-1 {
						assert.Equal(t, quote.InstallmentAmount, amount)
					}
				}
				assert.Equal(t, quote.TotalRepayment, sum, "purchase=%d count=%d rate=%s", purchase, count, rate)
				assert.LessOrEqual(t, amounts[count-1], quote.InstallmentAmount)
				assert.Positive(t, amounts[count-1])
			}
		}
	}
}
