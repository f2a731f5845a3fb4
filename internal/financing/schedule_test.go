package financing

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/bnpl-engine/internal/domain"
	customError "github.com/segyhp/bnpl-engine/pkg/errors"
)

func approvedApplication(t *testing.T, purchase int64, count int, rate decimal.Decimal) *domain.Application {
	t.Helper()
	quote, err := NewCalculator(0, decimal.Zero).Quote(purchase, 0, count, rate)
	require.NoError(t, err)

	return &domain.Application{
		ID:                uuid.New(),
		FinancedAmount:    quote.FinancedAmount,
		InstallmentCount:  count,
		InstallmentAmount: quote.InstallmentAmount,
		TotalRepayment:    quote.TotalRepayment,
		RemainingBalance:  quote.TotalRepayment,
		Status:            domain.ApplicationStatusApproved,
	}
}

func TestScheduleGenerator_Generate(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	gen := NewScheduleGenerator(DefaultScheduleConfig)
	app := approvedApplication(t, 120000, 7, decimal.NewFromInt(5))

	installments, err := gen.Generate(app, start)
	require.NoError(t, err)
	require.Len(t, installments, 7)

	var sum int64
	for i, inst := range installments {
		n := i + 1
		sum += inst.Amount

		assert.Equal(t, n, inst.InstallmentNumber)
		assert.Equal(t, app.ID, inst.ApplicationID)
		assert.Equal(t, start.AddDate(0, 0, 14*n), inst.DueDate)
		assert.Equal(t, inst.DueDate.AddDate(0, 0, 3), inst.GracePeriodEnd)
		assert.Equal(t, inst.GracePeriodEnd.AddDate(0, 0, 1), inst.OverdueDate)

		if n == 1 {
			assert.Equal(t, domain.InstallmentStatusPending, inst.Status)
		} else {
			assert.Equal(t, domain.InstallmentStatusScheduled, inst.Status)
		}
		if n < 7 {
			assert.Equal(t, int64(17643), inst.Amount)
		}
	}

	assert.Equal(t, int64(17642), installments[6].Amount)
	assert.Equal(t, app.TotalRepayment, sum)
}

func TestScheduleGenerator_CustomCadence(t *testing.T) {
	start := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	gen := NewScheduleGenerator(ScheduleConfig{FirstPaymentDelayDays: 30, PaymentIntervalDays: 30, GracePeriodDays: 5})
	app := approvedApplication(t, 60000, 3, decimal.Zero)

	installments, err := gen.Generate(app, start)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 3, 21, 0, 0, 0, 0, time.UTC), installments[0].DueDate)
	assert.Equal(t, time.Date(2024, 3, 26, 0, 0, 0, 0, time.UTC), installments[0].GracePeriodEnd)
	assert.Equal(t, time.Date(2024, 3, 27, 0, 0, 0, 0, time.UTC), installments[0].OverdueDate)
	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), installments[2].DueDate)
}

func TestScheduleGenerator_RequiresApproval(t *testing.T) {
	gen := NewScheduleGenerator(DefaultScheduleConfig)
	app := approvedApplication(t, 120000, 6, decimal.NewFromInt(5))
	app.Status = domain.ApplicationStatusPending

	installments, err := gen.Generate(app, time.Now())
	assert.Nil(t, installments)
	assert.True(t, errors.Is(err, customError.ErrInvalidTransition))
}
