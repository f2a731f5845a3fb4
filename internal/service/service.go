// Package service implements the BNPL engine's use cases on top of the
// repository: application decisioning, installment payments, the overdue
// sweep and owner statistics.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/segyhp/bnpl-engine/internal/creditscore"
	"github.com/segyhp/bnpl-engine/internal/domain"
	"github.com/segyhp/bnpl-engine/internal/repository"
	customError "github.com/segyhp/bnpl-engine/pkg/errors"
)

var tracer = otel.Tracer("service")

// Clock returns the current time. Services call it once per transition.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// MetricsRecorder receives business events; *observability.Metrics satisfies it.
type MetricsRecorder interface {
	RecordDecision(approved bool, riskLevel string)
	IncrDegradedDecision()
	RecordPayment(result string)
	RecordOverdue(lateFeeCents int64)
	RecordSweepDuration(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordDecision(bool, string)       {}
func (noopMetrics) IncrDegradedDecision()             {}
func (noopMetrics) RecordPayment(string)              {}
func (noopMetrics) RecordOverdue(int64)               {}
func (noopMetrics) RecordSweepDuration(time.Duration) {}

// ScoreResolver yields the risk snapshot for an owner; *creditscore.Lookup satisfies it.
type ScoreResolver interface {
	Resolve(ctx context.Context, ownerID string) creditscore.Snapshot
}

func orNoopMetrics(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

func orNopLogger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// storeError passes business errors through and wraps everything else as a
// database failure.
func storeError(err error) error {
	if err == nil || customError.CodeOf(err) != "" {
		return err
	}
	return customError.WrapDatabaseError(err)
}

func applicationLookupError(err error, id uuid.UUID) error {
	if errors.Is(err, repository.ErrNotFound) {
		return customError.WrapApplicationNotFound(id.String())
	}
	return storeError(err)
}

func installmentLookupError(err error, id uuid.UUID) error {
	if errors.Is(err, repository.ErrNotFound) {
		return customError.WrapInstallmentNotFound(id.String())
	}
	return storeError(err)
}

// invariantError logs a failed roll-up check and converts it into the error
// that aborts the surrounding transaction.
func invariantError(logger *zap.Logger, app *domain.Application, transition string, err error) error {
	logger.Error("invariant violation",
		zap.String("application_id", app.ID.String()),
		zap.String("transition", transition),
		zap.Error(err),
	)
	return customError.WrapInvariantViolation(app.ID.String(), err.Error())
}
