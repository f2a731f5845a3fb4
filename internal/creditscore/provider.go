// Package creditscore fetches risk snapshots from the external credit score
// provider, caches them per owner and falls back to a conservative tier when
// the provider cannot answer.
package creditscore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/segyhp/bnpl-engine/internal/domain"
	"github.com/segyhp/bnpl-engine/internal/resilience"
)

var tracer = otel.Tracer("creditscore")

// ErrOwnerUnknown is returned when the provider has no file for the owner.
var ErrOwnerUnknown = errors.New("credit provider has no record for owner")

// Provider returns a numeric score and risk tier for an owner.
type Provider interface {
	GetScore(ctx context.Context, ownerID string) (*domain.CreditReport, error)
}

// HTTPProvider calls the score provider's REST API.
type HTTPProvider struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewHTTPProvider creates a new HTTPProvider.
func NewHTTPProvider(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *HTTPProvider {
	return &HTTPProvider{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

type scoreResponse struct {
	OwnerID  string `json:"owner_id"`
	Score    int    `json:"score"`
	RiskTier string `json:"risk_tier"`
}

// GetScore fetches a score with retry, circuit breaker, and tracing.
func (p *HTTPProvider) GetScore(ctx context.Context, ownerID string) (*domain.CreditReport, error) {
	ctx, span := tracer.Start(ctx, "HTTPProvider.GetScore")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	result, err := p.cb.Execute(func() (any, error) {
		var report *domain.CreditReport
		err := resilience.RetryWithBackoff(ctx, p.cfg, func() error {
			var err error
			report, err = p.fetch(ctx, ownerID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return report, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("credit provider: %w", err)
	}

	report := result.(*domain.CreditReport)
	span.SetAttributes(attribute.String("risk.tier", string(report.RiskTier)))
	return report, nil
}

func (p *HTTPProvider) fetch(ctx context.Context, ownerID string) (*domain.CreditReport, error) {
	endpoint := fmt.Sprintf("%s/v1/scores/%s", p.baseURL, url.PathEscape(ownerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, resilience.Permanent(ErrOwnerUnknown)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("score API returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, resilience.Permanent(fmt.Errorf("score API returned status %d", resp.StatusCode))
	}

	var body scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, resilience.Permanent(fmt.Errorf("decode score response: %w", err))
	}

	tier, err := domain.ParseRiskLevel(body.RiskTier)
	if err != nil {
		return nil, resilience.Permanent(err)
	}

	return &domain.CreditReport{
		OwnerID:  ownerID,
		Score:    body.Score,
		RiskTier: tier,
	}, nil
}
