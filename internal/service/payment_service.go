package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/segyhp/bnpl-engine/internal/domain"
	"github.com/segyhp/bnpl-engine/internal/repository"
	customError "github.com/segyhp/bnpl-engine/pkg/errors"
)

// PaymentService applies captured payments to installments.
type PaymentService struct {
	repo    repository.ApplicationRepository
	metrics MetricsRecorder
	logger  *zap.Logger
	now     Clock
}

func NewPaymentService(repo repository.ApplicationRepository, metrics MetricsRecorder, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		repo:    repo,
		metrics: orNoopMetrics(metrics),
		logger:  orNopLogger(logger),
		now:     systemClock,
	}
}

// WithClock replaces the time source.
func (s *PaymentService) WithClock(now Clock) *PaymentService {
	s.now = now
	return s
}

// PayInstallment marks an installment PAID and rolls the payment into its
// application in one transaction. A second call for the same installment
// fails with ErrAlreadyPaid and changes nothing.
func (s *PaymentService) PayInstallment(ctx context.Context, installmentID uuid.UUID, req *domain.PayInstallmentRequest) (*domain.PaymentResponse, error) {
	ctx, span := tracer.Start(ctx, "PaymentService.PayInstallment")
	defer span.End()
	span.SetAttributes(attribute.String("installment.id", installmentID.String()))

	var resp *domain.PaymentResponse
	err := s.repo.WithinTx(ctx, func(tx repository.TxRepository) error {
		probe, err := tx.GetInstallment(ctx, installmentID)
		if err != nil {
			return installmentLookupError(err, installmentID)
		}

		app, err := tx.LockApplication(ctx, probe.ApplicationID)
		if err != nil {
			return applicationLookupError(err, probe.ApplicationID)
		}
		inst, err := tx.LockInstallment(ctx, installmentID)
		if err != nil {
			return installmentLookupError(err, installmentID)
		}

		if inst.Status == domain.InstallmentStatusPaid {
			return customError.WrapAlreadyPaid(installmentID.String())
		}
		if app.Status != domain.ApplicationStatusActive {
			return customError.WrapApplicationNotActive(app.ID.String(), string(app.Status))
		}

		now := s.now()
		if err := inst.MarkPaid(req.PaymentMethod, req.TransactionID, now); err != nil {
			return err
		}
		if err := tx.UpdateInstallment(ctx, inst); err != nil {
			return storeError(err)
		}

		installments, err := tx.ListInstallments(ctx, app.ID)
		if err != nil {
			return storeError(err)
		}

		var nextDue *time.Time
		if next := domain.NextOutstanding(installments); next != nil {
			if next.Status == domain.InstallmentStatusScheduled {
				if err := next.MarkDue(now); err != nil {
					return err
				}
				if err := tx.UpdateInstallment(ctx, next); err != nil {
					return storeError(err)
				}
			}
			due := next.DueDate
			nextDue = &due
		}

		if err := app.ApplyPayment(inst.Amount, nextDue, now); err != nil {
			return err
		}
		if err := app.CheckInvariants(installments); err != nil {
			return invariantError(s.logger, app, "installment PAID", err)
		}
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return storeError(err)
		}

		resp = &domain.PaymentResponse{Installment: inst, Application: app}
		return nil
	})
	if err != nil {
		err = storeError(err)
		if customError.CodeOf(err) == customError.ErrCodeDatabaseError || customError.CodeOf(err) == customError.ErrCodeInvariantViolation {
			s.metrics.RecordPayment("error")
		} else {
			s.metrics.RecordPayment("rejected")
		}
		s.logger.Warn("installment payment failed",
			zap.String("installment_id", installmentID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordPayment("paid")
	s.logger.Info("installment paid",
		zap.String("installment_id", installmentID.String()),
		zap.String("application_id", resp.Application.ID.String()),
		zap.String("owner_id", resp.Application.OwnerID),
		zap.Int64("amount", resp.Installment.Amount),
		zap.Int64("remaining_balance", resp.Application.RemainingBalance),
		zap.String("application_status", string(resp.Application.Status)),
	)
	return resp, nil
}
