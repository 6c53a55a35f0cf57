package analytics

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanshika/upidiag/backend/internal/domain"
	"github.com/vanshika/upidiag/backend/internal/metrics"
	"github.com/vanshika/upidiag/backend/internal/storage"
)

const (
	dashboardWindow = 24 * time.Hour
	topFailureCount = 5
)

// Aggregator is the slice of the storage gateway analytics depends on.
type Aggregator interface {
	Aggregate(ctx context.Context, plan storage.Plan, out any) error
	Ping(ctx context.Context) error
}

// Service recomputes every report from the stored records on each call.
// Storage errors are logged and yield empty results.
type Service struct {
	store  Aggregator
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewService constructs the analytics service.
func NewService(store Aggregator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "analytics"),
		nowFn:  time.Now,
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (s *Service) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

func aggregate[T any](ctx context.Context, s *Service, plan storage.Plan) []T {
	rows := make([]T, 0)
	if err := s.store.Aggregate(ctx, plan, &rows); err != nil {
		s.logger.Error("aggregation failed", "plan", plan.Name(), "error", err)
		metrics.AggregationFailures.WithLabelValues(plan.Name()).Inc()
		return []T{}
	}
	if rows == nil {
		return []T{}
	}
	return rows
}

func (s *Service) FailurePatterns(ctx context.Context) []domain.FailurePattern {
	return aggregate[domain.FailurePattern](ctx, s, storage.FailurePatternsPlan())
}

func (s *Service) BankPerformance(ctx context.Context) []domain.BankPerformance {
	return aggregate[domain.BankPerformance](ctx, s, storage.BankPerformancePlan())
}

func (s *Service) VPADomains(ctx context.Context) []domain.VPADomainStat {
	return aggregate[domain.VPADomainStat](ctx, s, storage.VPADomainPlan())
}

func (s *Service) AmountBuckets(ctx context.Context) []domain.AmountBucketStat {
	return aggregate[domain.AmountBucketStat](ctx, s, storage.AmountBucketPlan())
}

func (s *Service) RetryPatterns(ctx context.Context) []domain.RetryPattern {
	return aggregate[domain.RetryPattern](ctx, s, storage.RetryPatternPlan())
}

// Dashboard reports the last 24 hours. The three reads run concurrently and
// each degrades independently.
func (s *Service) Dashboard(ctx context.Context) domain.Dashboard {
	now := s.nowFn().UTC()
	since := now.Add(-dashboardWindow)

	var (
		recent []domain.RecentStats
		top    []domain.FailureCount
		trend  []domain.HourlyTrend
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recent = aggregate[domain.RecentStats](gctx, s, storage.RecentStatsPlan(since))
		return nil
	})
	g.Go(func() error {
		top = aggregate[domain.FailureCount](gctx, s, storage.TopFailuresPlan(since, topFailureCount))
		return nil
	})
	g.Go(func() error {
		trend = aggregate[domain.HourlyTrend](gctx, s, storage.HourlyTrendPlan(since))
		return nil
	})
	_ = g.Wait()

	dash := domain.Dashboard{
		TopFailures: top,
		HourlyTrend: trend,
		LastUpdated: now,
	}
	if len(recent) > 0 {
		dash.RecentStats = recent[0]
	}
	return dash
}

func (s *Service) Search(ctx context.Context, q storage.SearchQuery) []domain.SearchHit {
	return aggregate[domain.SearchHit](ctx, s, storage.SearchPlan(q))
}

// LiveMetrics reports whole-collection totals and whether the store answers.
func (s *Service) LiveMetrics(ctx context.Context) domain.LiveMetrics {
	var m domain.LiveMetrics
	if rows := aggregate[domain.LiveMetrics](ctx, s, storage.LiveMetricsPlan()); len(rows) > 0 {
		m = rows[0]
	}
	m.Timestamp = s.nowFn().UTC()
	m.SystemStatus = "operational"
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("store ping failed", "error", err)
		m.SystemStatus = "degraded"
	}
	return m
}
