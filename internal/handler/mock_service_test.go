package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/bnpl-engine/internal/domain"
)

// MockBNPLService stands in for every service the handler talks to.
type MockBNPLService struct {
	mock.Mock
}

func (m *MockBNPLService) CreateApplication(ctx context.Context, req *domain.CreateApplicationRequest) (*domain.Application, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Application), args.Error(1)
}

func (m *MockBNPLService) ProcessApplication(ctx context.Context, id uuid.UUID) (*domain.DecisionResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DecisionResponse), args.Error(1)
}

func (m *MockBNPLService) GetApplication(ctx context.Context, id uuid.UUID) (*domain.ApplicationDetails, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApplicationDetails), args.Error(1)
}

func (m *MockBNPLService) ListApplications(ctx context.Context, filter domain.ApplicationFilter) ([]*domain.Application, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Application), args.Error(1)
}

func (m *MockBNPLService) CancelApplication(ctx context.Context, id uuid.UUID, reason string) (*domain.Application, error) {
	args := m.Called(ctx, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Application), args.Error(1)
}

func (m *MockBNPLService) MarkDefaulted(ctx context.Context, id uuid.UUID, reason string) (*domain.Application, error) {
	args := m.Called(ctx, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Application), args.Error(1)
}

func (m *MockBNPLService) CheckEligibility(ctx context.Context, req *domain.EligibilityRequest) (*domain.EligibilityResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EligibilityResponse), args.Error(1)
}

func (m *MockBNPLService) PayInstallment(ctx context.Context, installmentID uuid.UUID, req *domain.PayInstallmentRequest) (*domain.PaymentResponse, error) {
	args := m.Called(ctx, installmentID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentResponse), args.Error(1)
}

func (m *MockBNPLService) Run(ctx context.Context) (*domain.SweepResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SweepResult), args.Error(1)
}

func (m *MockBNPLService) GetStats(ctx context.Context, ownerID string) (*domain.Stats, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Stats), args.Error(1)
}

func (m *MockBNPLService) ListUpcoming(ctx context.Context, ownerID string, withinDays int) ([]*domain.Installment, error) {
	args := m.Called(ctx, ownerID, withinDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Installment), args.Error(1)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}
