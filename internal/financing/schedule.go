package financing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/bnpl-engine/internal/domain"
	customError "github.com/segyhp/bnpl-engine/pkg/errors"
	"github.com/segyhp/bnpl-engine/pkg/utils"
)

// ScheduleConfig holds the repayment cadence in calendar days.
type ScheduleConfig struct {
	FirstPaymentDelayDays int
	PaymentIntervalDays   int
	GracePeriodDays       int
}

// DefaultScheduleConfig is the reference cadence: first payment two weeks out,
// then every two weeks, with a three day grace window.
var DefaultScheduleConfig = ScheduleConfig{
	FirstPaymentDelayDays: 14,
	PaymentIntervalDays:   14,
	GracePeriodDays:       3,
}

// ScheduleGenerator builds the installments of an approved application.
type ScheduleGenerator struct {
	cfg ScheduleConfig
}

func NewScheduleGenerator(cfg ScheduleConfig) *ScheduleGenerator {
	return &ScheduleGenerator{cfg: cfg}
}

// Generate returns installments 1..N for app, starting from start. The first
// installment is marked PENDING (currently due), the rest SCHEDULED.
func (g *ScheduleGenerator) Generate(app *domain.Application, start time.Time) ([]*domain.Installment, error) {
	if app.Status != domain.ApplicationStatusApproved {
		return nil, customError.WrapInvalidTransition("application "+app.ID.String(), string(app.Status), "SCHEDULED")
	}
	if app.InstallmentCount < 1 {
		return nil, customError.WrapValidation("installment_count", "must be at least 1")
	}

	amounts := InstallmentAmounts(app.TotalRepayment, app.InstallmentCount)
	if amounts[len(amounts)-1] <= 0 {
		return nil, customError.WrapInvariantViolation(app.ID.String(),
			fmt.Sprintf("final installment would be %d", amounts[len(amounts)-1]))
	}

	installments := make([]*domain.Installment, 0, app.InstallmentCount)
	var sum int64
	for n := 1; n <= app.InstallmentCount; n++ {
		dueDate := g.DueDate(start, n)
		graceEnd := utils.AddDays(dueDate, g.cfg.GracePeriodDays)

		status := domain.InstallmentStatusScheduled
		if n == 1 {
			status = domain.InstallmentStatusPending
		}

		installments = append(installments, &domain.Installment{
			ID:                uuid.New(),
			ApplicationID:     app.ID,
			InstallmentNumber: n,
			Amount:            amounts[n-1],
			DueDate:           dueDate,
			GracePeriodEnd:    graceEnd,
			OverdueDate:       utils.AddDays(graceEnd, 1),
			Status:            status,
			CreatedAt:         start,
			UpdatedAt:         start,
		})
		sum += amounts[n-1]
	}

	if sum != app.TotalRepayment {
		return nil, customError.WrapInvariantViolation(app.ID.String(),
			fmt.Sprintf("schedule sums to %d, total repayment is %d", sum, app.TotalRepayment))
	}

	return installments, nil
}

// DueDate returns the due date of installment n (1-based).
func (g *ScheduleGenerator) DueDate(start time.Time, n int) time.Time {
	return utils.AddDays(start, g.cfg.FirstPaymentDelayDays+g.cfg.PaymentIntervalDays*(n-1))
}
