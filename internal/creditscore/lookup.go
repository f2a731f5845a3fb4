package creditscore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/segyhp/bnpl-engine/internal/domain"
	customError "github.com/segyhp/bnpl-engine/pkg/errors"
)

// Recorder receives cache and dependency outcomes; *observability.Metrics satisfies it.
type Recorder interface {
	IncrCacheHit(cache string)
	IncrCacheMiss(cache string)
	IncrExternalError(service string)
}

type noopRecorder struct{}

func (noopRecorder) IncrCacheHit(string)      {}
func (noopRecorder) IncrCacheMiss(string)     {}
func (noopRecorder) IncrExternalError(string) {}

// Snapshot is the risk information recorded on an application at decision time.
type Snapshot struct {
	Score     *int
	RiskLevel domain.RiskLevel
	CheckedAt time.Time
	Degraded  bool
	// Cause is set when Degraded; it wraps ErrDependencyDegraded.
	Cause error
}

// LookupConfig tunes a Lookup.
type LookupConfig struct {
	Timeout  time.Duration
	Fallback domain.RiskLevel
}

// Lookup resolves a snapshot through the cache, then the provider, collapsing
// concurrent requests for the same owner into one provider call.
type Lookup struct {
	provider Provider
	cache    ScoreCache
	cfg      LookupConfig
	group    singleflight.Group
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewLookup builds a Lookup. provider and cache may be nil: a nil cache always
// misses and a nil provider is treated as unavailable.
func NewLookup(provider Provider, scoreCache ScoreCache, cfg LookupConfig, recorder Recorder, logger *zap.Logger) *Lookup {
	if cfg.Fallback == "" {
		cfg.Fallback = domain.RiskLevelMedium
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lookup{
		provider: provider,
		cache:    scoreCache,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source used to stamp fresh reports.
func (l *Lookup) WithClock(now func() time.Time) *Lookup {
	l.now = now
	return l
}

// Resolve never fails: when the provider is unavailable it returns the
// fallback tier with Degraded set.
func (l *Lookup) Resolve(ctx context.Context, ownerID string) Snapshot {
	if report := l.cached(ctx, ownerID); report != nil {
		return snapshotOf(report)
	}

	if l.provider == nil {
		return l.degraded(errors.New("no credit provider configured"))
	}

	ch := l.group.DoChan(ownerID, func() (any, error) {
		callCtx := context.WithoutCancel(ctx)
		if l.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, l.cfg.Timeout)
			defer cancel()
		}

		report, err := l.provider.GetScore(callCtx, ownerID)
		if err != nil {
			return nil, err
		}
		if !report.RiskTier.IsValid() {
			return nil, errors.New("provider returned an unknown risk tier")
		}
		stamped := *report
		stamped.OwnerID = ownerID
		if stamped.CheckedAt.IsZero() {
			stamped.CheckedAt = l.now().UTC()
		}
		l.store(callCtx, &stamped)
		return &stamped, nil
	})

	select {
	case <-ctx.Done():
		return l.degraded(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			l.recorder.IncrExternalError("credit_provider")
			return l.degraded(res.Err)
		}
		return snapshotOf(res.Val.(*domain.CreditReport))
	}
}

func (l *Lookup) cached(ctx context.Context, ownerID string) *domain.CreditReport {
	if l.cache == nil {
		return nil
	}
	report, err := l.cache.Get(ctx, ownerID)
	if err != nil {
		l.logger.Warn("credit score cache read failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
	if report == nil {
		l.recorder.IncrCacheMiss("credit_score")
		return nil
	}
	l.recorder.IncrCacheHit("credit_score")
	return report
}

func (l *Lookup) store(ctx context.Context, report *domain.CreditReport) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Set(ctx, report); err != nil {
		l.logger.Warn("credit score cache write failed", zap.String("owner_id", report.OwnerID), zap.Error(err))
	}
}

func (l *Lookup) degraded(cause error) Snapshot {
	return Snapshot{
		RiskLevel: l.cfg.Fallback,
		CheckedAt: l.now().UTC(),
		Degraded:  true,
		Cause:     customError.WrapDependencyDegraded("credit_provider", cause),
	}
}

func snapshotOf(report *domain.CreditReport) Snapshot {
	score := report.Score
	return Snapshot{
		Score:     &score,
		RiskLevel: report.RiskTier,
		CheckedAt: report.CheckedAt,
	}
}
