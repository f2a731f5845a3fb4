package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/segyhp/bnpl-engine/internal/domain"
	"github.com/segyhp/bnpl-engine/internal/financing"
	"github.com/segyhp/bnpl-engine/internal/repository"
	"github.com/segyhp/bnpl-engine/internal/risk"
	customError "github.com/segyhp/bnpl-engine/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	customerCancelReason = "cancelled by customer"
)

// ApplicationService owns the application lifecycle.
type ApplicationService struct {
	repo        repository.ApplicationRepository
	calculator  *financing.Calculator
	schedule    *financing.ScheduleGenerator
	policy      *risk.Policy
	scores      ScoreResolver
	defaultRate decimal.Decimal
	metrics     MetricsRecorder
	logger      *zap.Logger
	now         Clock
}

func NewApplicationService(
	repo repository.ApplicationRepository,
	calculator *financing.Calculator,
	schedule *financing.ScheduleGenerator,
	policy *risk.Policy,
	scores ScoreResolver,
	defaultRate decimal.Decimal,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *ApplicationService {
	return &ApplicationService{
		repo:        repo,
		calculator:  calculator,
		schedule:    schedule,
		policy:      policy,
		scores:      scores,
		defaultRate: defaultRate,
		metrics:     orNoopMetrics(metrics),
		logger:      orNopLogger(logger),
		now:         systemClock,
	}
}

// WithClock replaces the time source.
func (s *ApplicationService) WithClock(now Clock) *ApplicationService {
	s.now = now
	return s
}

// CreateApplication validates the purchase, prices it and stores a PENDING application.
func (s *ApplicationService) CreateApplication(ctx context.Context, req *domain.CreateApplicationRequest) (*domain.Application, error) {
	ctx, span := tracer.Start(ctx, "ApplicationService.CreateApplication")
	defer span.End()

	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, customError.WrapValidation("owner_id", "is required")
	}

	rate := s.defaultRate
	if req.InterestRate != nil {
		rate = *req.InterestRate
	}

	quote, err := s.calculator.Quote(req.PurchaseAmount, req.DownPayment, req.InstallmentCount, rate)
	if err != nil {
		return nil, err
	}

	now := s.now()
	app := &domain.Application{
		ID:                 uuid.New(),
		OwnerID:            req.OwnerID,
		MerchantName:       req.MerchantName,
		MerchantID:         req.MerchantID,
		ProductDescription: req.ProductDescription,
		OrderID:            req.OrderID,
		PurchaseAmount:     quote.PurchaseAmount,
		DownPayment:        quote.DownPayment,
		FinancedAmount:     quote.FinancedAmount,
		InstallmentCount:   quote.InstallmentCount,
		InstallmentAmount:  quote.InstallmentAmount,
		InterestRate:       quote.InterestRate,
		TotalInterest:      quote.TotalInterest,
		TotalRepayment:     quote.TotalRepayment,
		RemainingBalance:   quote.TotalRepayment,
		Status:             domain.ApplicationStatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Create(ctx, app); err != nil {
		return nil, storeError(err)
	}

	span.SetAttributes(attribute.String("application.id", app.ID.String()))
	s.logger.Info("application created",
		zap.String("application_id", app.ID.String()),
		zap.String("owner_id", app.OwnerID),
		zap.Int64("financed_amount", app.FinancedAmount),
		zap.Int("installment_count", app.InstallmentCount),
	)
	return app, nil
}

// ProcessApplication runs the credit decision for a PENDING application. It
// approves and activates with a generated schedule, or cancels with a denial
// reason. Any other status yields ErrAlreadyDecided.
func (s *ApplicationService) ProcessApplication(ctx context.Context, id uuid.UUID) (*domain.DecisionResponse, error) {
	ctx, span := tracer.Start(ctx, "ApplicationService.ProcessApplication")
	defer span.End()
	span.SetAttributes(attribute.String("application.id", id.String()))

	app, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, applicationLookupError(err, id)
	}
	if app.Status != domain.ApplicationStatusPending {
		return nil, customError.WrapAlreadyDecided(id.String(), string(app.Status))
	}

	// The provider call happens before any row is locked.
	snapshot := s.scores.Resolve(ctx, app.OwnerID)
	if snapshot.Degraded {
		s.metrics.IncrDegradedDecision()
		s.logger.Warn("credit decision degraded, using fallback risk level",
			zap.String("application_id", id.String()),
			zap.String("owner_id", app.OwnerID),
			zap.String("risk_level", string(snapshot.RiskLevel)),
			zap.Bool("degraded", true),
			zap.Error(snapshot.Cause),
		)
	}
	decision := s.policy.Evaluate(snapshot.RiskLevel, app.FinancedAmount)

	var (
		decided      *domain.Application
		installments []*domain.Installment
	)
	err = s.repo.WithinTx(ctx, func(tx repository.TxRepository) error {
		locked, err := tx.LockApplication(ctx, id)
		if err != nil {
			return applicationLookupError(err, id)
		}

		now := s.now()
		checkedAt := snapshot.CheckedAt
		if checkedAt.IsZero() {
			checkedAt = now
		}
		// Re-checked under the lock: a concurrent decision makes this fail with ErrAlreadyDecided.
		if err := locked.RecordCreditCheck(snapshot.Score, snapshot.RiskLevel, snapshot.Degraded, checkedAt); err != nil {
			return err
		}

		if !decision.Approved {
			if err := locked.Deny(decision.Reason, now); err != nil {
				return err
			}
			decided = locked
			return storeError(tx.UpdateApplication(ctx, locked))
		}

		if err := locked.Approve(now); err != nil {
			return err
		}
		installments, err = s.schedule.Generate(locked, now)
		if err != nil {
			return err
		}
		if err := tx.CreateInstallments(ctx, installments); err != nil {
			return storeError(err)
		}
		last := installments[len(installments)-1]
		if err := locked.Activate(installments[0].DueDate, last.DueDate, now); err != nil {
			return err
		}
		if err := locked.CheckInvariants(installments); err != nil {
			return invariantError(s.logger, locked, "PENDING->ACTIVE", err)
		}
		decided = locked
		return storeError(tx.UpdateApplication(ctx, locked))
	})
	if err != nil {
		err = storeError(err)
		s.logger.Warn("application decision failed",
			zap.String("application_id", id.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordDecision(decision.Approved, string(decision.RiskLevel))
	s.logger.Info("application decided",
		zap.String("application_id", id.String()),
		zap.String("owner_id", decided.OwnerID),
		zap.Bool("approved", decision.Approved),
		zap.String("risk_level", string(decision.RiskLevel)),
		zap.Bool("degraded", snapshot.Degraded),
		zap.String("status", string(decided.Status)),
	)

	resp := &domain.DecisionResponse{
		ApplicationID: id,
		Approved:      decision.Approved,
		Status:        decided.Status,
		DenialReason:  decided.DenialReason,
		RiskLevel:     snapshot.RiskLevel,
		CreditScore:   snapshot.Score,
	}
	if decision.Approved {
		resp.Terms = &domain.Terms{
			FinancedAmount:    decided.FinancedAmount,
			InstallmentCount:  decided.InstallmentCount,
			InstallmentAmount: decided.InstallmentAmount,
			FinalInstallment:  installments[len(installments)-1].Amount,
			TotalInterest:     decided.TotalInterest,
			TotalRepayment:    decided.TotalRepayment,
			FirstPaymentDate:  *decided.FirstPaymentDate,
			LastPaymentDate:   *decided.LastPaymentDate,
		}
	}
	return resp, nil
}

// GetApplication returns an application with its installments in order.
func (s *ApplicationService) GetApplication(ctx context.Context, id uuid.UUID) (*domain.ApplicationDetails, error) {
	app, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, applicationLookupError(err, id)
	}
	installments, err := s.repo.ListInstallments(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return &domain.ApplicationDetails{Application: app, Installments: installments}, nil
}

// ListApplications pages through an owner's applications, newest first.
func (s *ApplicationService) ListApplications(ctx context.Context, filter domain.ApplicationFilter) ([]*domain.Application, error) {
	if strings.TrimSpace(filter.OwnerID) == "" {
		return nil, customError.WrapValidation("owner_id", "is required")
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, customError.WrapValidation("status", "unknown application status "+string(filter.Status))
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, customError.WrapValidation("limit", "limit and offset must not be negative")
	}
	if filter.Limit == 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}

	apps, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, storeError(err)
	}
	return apps, nil
}

// CancelApplication withdraws a PENDING application.
func (s *ApplicationService) CancelApplication(ctx context.Context, id uuid.UUID, reason string) (*domain.Application, error) {
	if strings.TrimSpace(reason) == "" {
		reason = customerCancelReason
	}
	return s.transition(ctx, id, "PENDING->CANCELLED", func(app *domain.Application) error {
		return app.Cancel(reason, s.now())
	})
}

// MarkDefaulted applies an external defaulting decision to an ACTIVE application.
func (s *ApplicationService) MarkDefaulted(ctx context.Context, id uuid.UUID, reason string) (*domain.Application, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, customError.WrapValidation("reason", "is required")
	}
	return s.transition(ctx, id, "ACTIVE->DEFAULTED", func(app *domain.Application) error {
		return app.MarkDefaulted(reason, s.now())
	})
}

func (s *ApplicationService) transition(ctx context.Context, id uuid.UUID, name string, apply func(*domain.Application) error) (*domain.Application, error) {
	var updated *domain.Application
	err := s.repo.WithinTx(ctx, func(tx repository.TxRepository) error {
		app, err := tx.LockApplication(ctx, id)
		if err != nil {
			return applicationLookupError(err, id)
		}
		if err := apply(app); err != nil {
			return err
		}
		updated = app
		return storeError(tx.UpdateApplication(ctx, app))
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("application transitioned",
		zap.String("application_id", id.String()),
		zap.String("owner_id", updated.OwnerID),
		zap.String("transition", name),
	)
	return updated, nil
}

// CheckEligibility previews the decision for an amount without creating anything.
func (s *ApplicationService) CheckEligibility(ctx context.Context, req *domain.EligibilityRequest) (*domain.EligibilityResponse, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, customError.WrapValidation("owner_id", "is required")
	}
	if req.PurchaseAmount <= 0 {
		return nil, customError.WrapValidation("purchase_amount", "must be greater than 0")
	}

	snapshot := s.scores.Resolve(ctx, req.OwnerID)
	if snapshot.Degraded {
		s.logger.Warn("eligibility check degraded, using fallback risk level",
			zap.String("owner_id", req.OwnerID),
			zap.Bool("degraded", true),
			zap.Error(snapshot.Cause),
		)
	}
	decision := s.policy.Evaluate(snapshot.RiskLevel, req.PurchaseAmount)

	return &domain.EligibilityResponse{
		OwnerID:    req.OwnerID,
		Eligible:   decision.Approved,
		RiskLevel:  decision.RiskLevel,
		MaxAllowed: decision.MaxAllowed,
		Reason:     decision.Reason,
	}, nil
}
