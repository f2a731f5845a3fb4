package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/segyhp/bnpl-engine/internal/domain"
	"github.com/segyhp/bnpl-engine/internal/repository"
	"github.com/segyhp/bnpl-engine/pkg/utils"
)

const defaultSweepPageSize = 200

// OverdueSweeper marks lapsed installments OVERDUE and charges late fees.
// Each installment is handled in its own transaction; the run can be
// cancelled between installments.
type OverdueSweeper struct {
	repo     repository.ApplicationRepository
	lateFee  int64
	pageSize int
	metrics  MetricsRecorder
	logger   *zap.Logger
	now      Clock
}

func NewOverdueSweeper(repo repository.ApplicationRepository, lateFee int64, pageSize int, metrics MetricsRecorder, logger *zap.Logger) *OverdueSweeper {
	if pageSize <= 0 {
		pageSize = defaultSweepPageSize
	}
	return &OverdueSweeper{
		repo:     repo,
		lateFee:  lateFee,
		pageSize: pageSize,
		metrics:  orNoopMetrics(metrics),
		logger:   orNopLogger(logger),
		now:      systemClock,
	}
}

// WithClock replaces the time source.
func (s *OverdueSweeper) WithClock(now Clock) *OverdueSweeper {
	s.now = now
	return s
}

type sweepOutcome int

const (
	sweepSkipped sweepOutcome = iota
	sweepMarked
)

// Run scans every outstanding installment whose overdue date is at or before
// the start of the run. On cancellation it returns the partial result with
// the context error.
func (s *OverdueSweeper) Run(ctx context.Context) (*domain.SweepResult, error) {
	ctx, span := tracer.Start(ctx, "OverdueSweeper.Run")
	defer span.End()

	asOf := s.now()
	result := &domain.SweepResult{StartedAt: asOf}
	defer func() {
		result.FinishedAt = s.now()
		s.metrics.RecordSweepDuration(result.FinishedAt.Sub(result.StartedAt))
		span.SetAttributes(
			attribute.Int("sweep.scanned", result.Scanned),
			attribute.Int("sweep.marked_overdue", result.MarkedOverdue),
		)
	}()

	var cursor *domain.SweepCursor
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := s.repo.ListOverdueCandidates(ctx, asOf, cursor, s.pageSize)
		if err != nil {
			return result, storeError(err)
		}

		for _, candidate := range page {
			if err := ctx.Err(); err != nil {
				s.logSummary(result, "overdue sweep cancelled")
				return result, err
			}

			result.Scanned++
			outcome, err := s.sweepOne(ctx, candidate, asOf)
			switch {
			case err != nil:
				result.Failed++
				s.logger.Error("overdue transition failed",
					zap.String("installment_id", candidate.ID.String()),
					zap.String("application_id", candidate.ApplicationID.String()),
					zap.String("transition", "->OVERDUE"),
					zap.Error(err),
				)
			case outcome == sweepMarked:
				result.MarkedOverdue++
				result.LateFeesAssessed += s.lateFee
				s.metrics.RecordOverdue(s.lateFee)
			default:
				result.Skipped++
			}
		}

		if len(page) < s.pageSize {
			break
		}
		last := page[len(page)-1]
		cursor = &domain.SweepCursor{OverdueDate: last.OverdueDate, ID: last.ID}
	}

	s.logSummary(result, "overdue sweep finished")
	return result, nil
}

// sweepOne re-reads the installment under lock; a payment that committed
// after the candidate page was read wins and the installment is skipped.
func (s *OverdueSweeper) sweepOne(ctx context.Context, candidate *domain.Installment, asOf time.Time) (sweepOutcome, error) {
	outcome := sweepSkipped
	err := s.repo.WithinTx(ctx, func(tx repository.TxRepository) error {
		app, err := tx.LockApplication(ctx, candidate.ApplicationID)
		if err != nil {
			return applicationLookupError(err, candidate.ApplicationID)
		}
		inst, err := tx.LockInstallment(ctx, candidate.ID)
		if err != nil {
			return installmentLookupError(err, candidate.ID)
		}

		if !inst.Status.IsOutstanding() || !utils.IsDateOverdue(inst.OverdueDate, asOf) {
			return nil
		}
		if app.Status != domain.ApplicationStatusActive && app.Status != domain.ApplicationStatusDefaulted {
			return nil
		}

		now := s.now()
		if err := inst.MarkOverdue(s.lateFee, now); err != nil {
			return err
		}
		if err := app.RecordMissedPayment(s.lateFee, now); err != nil {
			return err
		}
		if err := app.CheckInvariants(nil); err != nil {
			return invariantError(s.logger, app, "installment OVERDUE", err)
		}
		if err := tx.UpdateInstallment(ctx, inst); err != nil {
			return storeError(err)
		}
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return storeError(err)
		}

		outcome = sweepMarked
		s.logger.Info("installment overdue",
			zap.String("installment_id", inst.ID.String()),
			zap.String("application_id", app.ID.String()),
			zap.String("owner_id", app.OwnerID),
			zap.Int64("late_fee", s.lateFee),
			zap.Int("missed_payments", app.MissedPayments),
		)
		return nil
	})
	if err != nil {
		return sweepSkipped, storeError(err)
	}
	return outcome, nil
}

func (s *OverdueSweeper) logSummary(result *domain.SweepResult, msg string) {
	s.logger.Info(msg,
		zap.Int("scanned", result.Scanned),
		zap.Int("marked_overdue", result.MarkedOverdue),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Int64("late_fees_assessed", result.LateFeesAssessed),
	)
}
