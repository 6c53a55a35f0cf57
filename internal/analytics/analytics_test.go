package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/upidiag/backend/internal/domain"
	"github.com/vanshika/upidiag/backend/internal/storage"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tx(id string, status domain.Status, ft domain.FailureType, at time.Time, amount float64) domain.Transaction {
	return domain.Transaction{
		TransactionID: id,
		Timestamp:     at,
		Amount:        amount,
		SenderVPA:     "a@paytm",
		ReceiverVPA:   "b@ybl",
		SenderBank:    "HDFC",
		ReceiverBank:  "SBI",
		Status:        status,
		FailureType:   ft,
	}
}

func newService(g storage.Gateway) *Service {
	s := NewService(g, discardLogger())
	s.WithClock(func() time.Time { return now })
	return s
}

func TestDashboard_LastDayOnly(t *testing.T) {
	g := storage.NewMemoryGateway(
		tx("T1", domain.StatusFailed, domain.FailureNetworkIssue, now.Add(-time.Hour), 100),
		tx("T2", domain.StatusFailed, domain.FailureNetworkIssue, now.Add(-2*time.Hour), 300),
		tx("T3", domain.StatusSuccess, "", now.Add(-3*time.Hour), 200),
		tx("T4", domain.StatusFailed, domain.FailureTimeout, now.Add(-48*time.Hour), 900),
	)

	dash := newService(g).Dashboard(context.Background())

	assert.EqualValues(t, 3, dash.RecentStats.Total)
	assert.EqualValues(t, 2, dash.RecentStats.Failed)
	assert.InDelta(t, 600.0, dash.RecentStats.TotalVolume, 1e-9)
	assert.InDelta(t, 200.0, dash.RecentStats.AvgAmount, 1e-9)
	require.Len(t, dash.TopFailures, 1)
	assert.Equal(t, domain.FailureNetworkIssue, dash.TopFailures[0].FailureType)
	assert.Len(t, dash.HourlyTrend, 3)
	assert.True(t, dash.LastUpdated.Equal(now))
}

func TestService_DegradesToEmptyOnStorageError(t *testing.T) {
	g := storage.NewMemoryGateway().WithError(errors.New("connection refused"))
	s := newService(g)
	ctx := context.Background()

	assert.NotNil(t, s.FailurePatterns(ctx))
	assert.Empty(t, s.FailurePatterns(ctx))
	assert.Empty(t, s.BankPerformance(ctx))
	assert.Empty(t, s.VPADomains(ctx))
	assert.Empty(t, s.AmountBuckets(ctx))
	assert.Empty(t, s.RetryPatterns(ctx))
	assert.Empty(t, s.Search(ctx, storage.SearchQuery{Query: "x"}))

	dash := s.Dashboard(ctx)
	assert.Zero(t, dash.RecentStats.Total)
	assert.NotNil(t, dash.TopFailures)
	assert.NotNil(t, dash.HourlyTrend)
}

func TestLiveMetrics(t *testing.T) {
	g := storage.NewMemoryGateway(
		tx("T1", domain.StatusFailed, domain.FailureNetworkIssue, now, 100),
		tx("T2", domain.StatusSuccess, "", now, 300),
	)
	m := newService(g).LiveMetrics(context.Background())
	assert.EqualValues(t, 2, m.TotalTransactions)
	assert.EqualValues(t, 1, m.ActiveFailures)
	assert.InDelta(t, 200.0, m.AvgTransactionValue, 1e-9)
	assert.Equal(t, "operational", m.SystemStatus)

	g.WithPingError(errors.New("down"))
	assert.Equal(t, "degraded", newService(g).LiveMetrics(context.Background()).SystemStatus)
}

func TestSearch_ScoresByField(t *testing.T) {
	hit := tx("UPI_TIMEOUT_1", domain.StatusFailed, domain.FailureTimeout, now, 10)
	other := tx("T2", domain.StatusFailed, domain.FailureTimeout, now, 10)
	other.FailureReason = "gateway timeout"

	hits := newService(storage.NewMemoryGateway(other, hit)).
		Search(context.Background(), storage.SearchQuery{Query: "timeout"})
	require.Len(t, hits, 2)
	assert.Equal(t, "UPI_TIMEOUT_1", hits[0].TransactionID)
	assert.Equal(t, 10, hits[0].RelevanceScore)
	assert.Equal(t, 5, hits[1].RelevanceScore)
}
