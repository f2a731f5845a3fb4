package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/segyhp/bnpl-engine/internal/domain"
	"github.com/segyhp/bnpl-engine/internal/repository"
	customError "github.com/segyhp/bnpl-engine/pkg/errors"
)

const (
	defaultUpcomingDays = 7
	maxUpcomingDays     = 90
)

// StatsService serves read-only rollups.
type StatsService struct {
	repo   repository.ApplicationRepository
	logger *zap.Logger
	now    Clock
}

func NewStatsService(repo repository.ApplicationRepository, logger *zap.Logger) *StatsService {
	return &StatsService{repo: repo, logger: orNopLogger(logger), now: systemClock}
}

// WithClock replaces the time source.
func (s *StatsService) WithClock(now Clock) *StatsService {
	s.now = now
	return s
}

// GetStats returns the owner's rollup, computed in a single read.
func (s *StatsService) GetStats(ctx context.Context, ownerID string) (*domain.Stats, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, customError.WrapValidation("owner_id", "is required")
	}
	stats, err := s.repo.GetStats(ctx, ownerID)
	if err != nil {
		return nil, storeError(err)
	}
	return stats, nil
}

// ListUpcoming returns outstanding installments due within the next withinDays.
// An empty ownerID covers every owner; withinDays of 0 means the default window.
func (s *StatsService) ListUpcoming(ctx context.Context, ownerID string, withinDays int) ([]*domain.Installment, error) {
	if withinDays == 0 {
		withinDays = defaultUpcomingDays
	}
	if withinDays < 0 || withinDays > maxUpcomingDays {
		return nil, customError.WrapValidation("within_days", "must be between 1 and 90")
	}

	from := s.now()
	installments, err := s.repo.ListUpcoming(ctx, ownerID, from, from.AddDate(0, 0, withinDays))
	if err != nil {
		return nil, storeError(err)
	}
	return installments, nil
}
