package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

func TestAmountBucketBoundaries(t *testing.T) {
	cases := map[float64]string{
		0:       "0-100",
		99:      "0-100",
		99.99:   "0-100",
		100:     "100-500",
		499:     "100-500",
		500:     "500-1000",
		999.5:   "500-1000",
		1000:    "1000-5000",
		4999.99: "1000-5000",
		5000:    "5000+",
		5001:    "5000+",
	}
	for amount, want := range cases {
		assert.Equal(t, want, AmountBucket(amount), "amount %v", amount)
	}
}

func TestStatsPlan(t *testing.T) {
	g := NewMemoryGateway(
		sampleTx("T1", domain.StatusSuccess, 100),
		sampleTx("T2", domain.StatusFailed, 200),
		sampleTx("T3", domain.StatusPending, 300),
		sampleTx("T4", domain.StatusSuccess, 400),
	)

	var rows []domain.Stats
	require.NoError(t, g.Aggregate(context.Background(), StatsPlan(), &rows))
	require.Len(t, rows, 1)
	s := rows[0]
	assert.EqualValues(t, 4, s.TotalTransactions)
	assert.EqualValues(t, 2, s.SuccessfulTransactions)
	assert.EqualValues(t, 1, s.FailedTransactions)
	assert.EqualValues(t, 1, s.PendingTransactions)
	assert.InDelta(t, 1000.0, s.TotalAmount, 1e-9)
	assert.InDelta(t, 250.0, s.AvgAmount, 1e-9)
}

func TestStatsPlan_EmptyCollection(t *testing.T) {
	var rows []domain.Stats
	require.NoError(t, NewMemoryGateway().Aggregate(context.Background(), StatsPlan(), &rows))
	assert.Empty(t, rows)
}

func TestSearchPlan_RelevanceOrdering(t *testing.T) {
	byID := sampleTx("TXN_ABC", domain.StatusFailed, 10)
	byID.Timestamp = baseTime.Add(-time.Hour)

	byReason := sampleTx("TXN_2", domain.StatusFailed, 10)
	byReason.FailureReason = "abc gateway failure"
	byReason.Timestamp = baseTime

	bySender := sampleTx("TXN_3", domain.StatusSuccess, 10)
	bySender.SenderVPA = "abc@okaxis"

	bySenderLater := bySender
	bySenderLater.TransactionID = "TXN_4"
	bySenderLater.Timestamp = baseTime.Add(time.Minute)

	unrelated := sampleTx("TXN_5", domain.StatusSuccess, 10)

	g := NewMemoryGateway(bySender, unrelated, byReason, byID, bySenderLater)

	var hits []domain.SearchHit
	require.NoError(t, g.Aggregate(context.Background(), SearchPlan(SearchQuery{Query: "ABC"}), &hits))
	require.Len(t, hits, 4)

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.TransactionID
	}
	assert.Equal(t, []string{"TXN_ABC", "TXN_2", "TXN_4", "TXN_3"}, ids)
	assert.Equal(t, 10, hits[0].RelevanceScore)
	assert.Equal(t, 5, hits[1].RelevanceScore)
	assert.Equal(t, 3, hits[2].RelevanceScore)

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].RelevanceScore, hits[i].RelevanceScore)
	}
}

func TestSearchPlan_FiltersAndLimit(t *testing.T) {
	var seed []domain.Transaction
	for i, amount := range []float64{50, 150, 250, 350} {
		tx := sampleTx(string(rune('A'+i)), domain.StatusFailed, amount)
		seed = append(seed, tx)
	}
	g := NewMemoryGateway(seed...)

	lo, hi := 100.0, 300.0
	var hits []domain.SearchHit
	require.NoError(t, g.Aggregate(context.Background(), SearchPlan(SearchQuery{AmountMin: &lo, AmountMax: &hi}), &hits))
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Zero(t, h.RelevanceScore)
	}

	require.NoError(t, g.Aggregate(context.Background(), SearchPlan(SearchQuery{Limit: 1}), &hits))
	assert.Len(t, hits, 1)
}

func TestSearchPlan_QuotesMetacharacters(t *testing.T) {
	q := SearchQuery{Query: "a.b*"}
	expr, ok := q.scoreExpression().(bson.M)
	require.True(t, ok)
	terms := expr["$add"].(bson.A)
	require.Len(t, terms, 4)

	g := NewMemoryGateway(sampleTx("axb", domain.StatusSuccess, 1), sampleTx("a.b*1", domain.StatusSuccess, 1))
	var hits []domain.SearchHit
	require.NoError(t, g.Aggregate(context.Background(), SearchPlan(q), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "a.b*1", hits[0].TransactionID)
}

func TestAmountBucketPlan_OrderedByBucket(t *testing.T) {
	a := sampleTx("A", domain.StatusFailed, 6000)
	b := sampleTx("B", domain.StatusFailed, 50)
	b.RetryCount = 2
	c := sampleTx("C", domain.StatusFailed, 60)
	d := sampleTx("D", domain.StatusSuccess, 700)
	g := NewMemoryGateway(a, b, c, d)

	var rows []domain.AmountBucketStat
	require.NoError(t, g.Aggregate(context.Background(), AmountBucketPlan(), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "0-100", rows[0].AmountRange)
	assert.EqualValues(t, 2, rows[0].Count)
	assert.InDelta(t, 1.0, rows[0].AvgRetryCount, 1e-9)
	assert.Equal(t, "500-1000", rows[1].AmountRange)
	assert.Equal(t, "5000+", rows[2].AmountRange)
}

func TestBankPerformancePlan(t *testing.T) {
	a := sampleTx("A", domain.StatusFailed, 100)
	b := sampleTx("B", domain.StatusSuccess, 300)
	c := sampleTx("C", domain.StatusSuccess, 50)
	c.SenderBank = "SBI"
	g := NewMemoryGateway(a, b, c)

	var rows []domain.BankPerformance
	require.NoError(t, g.Aggregate(context.Background(), BankPerformancePlan(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "SBI", rows[0].Bank)
	assert.InDelta(t, 100.0, rows[0].SuccessRate, 1e-9)
	assert.Equal(t, "HDFC", rows[1].Bank)
	assert.InDelta(t, 50.0, rows[1].SuccessRate, 1e-9)
	assert.InDelta(t, 200.0, rows[1].AvgAmount, 1e-9)
	assert.Equal(t, []domain.FailureType{domain.FailureNetworkIssue}, rows[1].FailureTypes)
}

func TestRetryPatternPlan(t *testing.T) {
	a := sampleTx("A", domain.StatusFailed, 10)
	a.RetryCount = 1
	b := sampleTx("B", domain.StatusSuccess, 10)
	b.RetryCount = 1
	b.FailureType = domain.FailureNetworkIssue
	c := sampleTx("C", domain.StatusFailed, 10)

	var rows []domain.RetryPattern
	require.NoError(t, NewMemoryGateway(a, b, c).Aggregate(context.Background(), RetryPatternPlan(), &rows))
	require.Len(t, rows, 1)
	assert.EqualValues(t, 2, rows[0].TransactionCount)
	assert.EqualValues(t, 1, rows[0].EventualSuccess)
	assert.InDelta(t, 50.0, rows[0].SuccessAfterRetryRate, 1e-9)
}

func TestHourlyPlan_FormatsHourAndSorts(t *testing.T) {
	a := sampleTx("A", domain.StatusFailed, 10)
	a.Timestamp = time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)
	b := sampleTx("B", domain.StatusSuccess, 10)
	b.Timestamp = time.Date(2024, 5, 10, 3, 5, 0, 0, time.UTC)
	old := sampleTx("C", domain.StatusSuccess, 10)
	old.Timestamp = time.Date(2024, 5, 1, 3, 5, 0, 0, time.UTC)

	var rows []domain.HourlyPoint
	since := time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC)
	require.NoError(t, NewMemoryGateway(a, b, old).Aggregate(context.Background(), HourlyPlan(since), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "03:00", rows[0].Hour)
	assert.Equal(t, "2024-05-10", rows[0].Date)
	assert.Equal(t, "14:00", rows[1].Hour)
	assert.EqualValues(t, 1, rows[1].Failed)
}

func TestTopFailuresPlan_Limit(t *testing.T) {
	var seed []domain.Transaction
	for i, ft := range domain.FailureTypes {
		for j := 0; j <= i; j++ {
			tx := sampleTx(string(ft)+string(rune('a'+j)), domain.StatusFailed, 10)
			tx.FailureType = ft
			seed = append(seed, tx)
		}
	}
	var rows []domain.FailureCount
	plan := TopFailuresPlan(baseTime.Add(-time.Hour), 5)
	require.NoError(t, NewMemoryGateway(seed...).Aggregate(context.Background(), plan, &rows))
	require.Len(t, rows, 5)
	assert.Equal(t, domain.FailureAuthenticationFailed, rows[0].FailureType)
	assert.EqualValues(t, 8, rows[0].Count)
}

func TestVPADomainPlan(t *testing.T) {
	a := sampleTx("A", domain.StatusFailed, 10)
	b := sampleTx("B", domain.StatusSuccess, 30)
	b.SenderVPA = "x@PAYTM"

	var rows []domain.VPADomainStat
	require.NoError(t, NewMemoryGateway(a, b).Aggregate(context.Background(), VPADomainPlan(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "paytm", rows[0].SenderDomain)
	assert.Equal(t, "ybl", rows[0].ReceiverDomain)
	assert.InDelta(t, 50.0, rows[0].FailureRate, 1e-9)
}

func TestPlansExposeMongoPipelines(t *testing.T) {
	plans := []Plan{
		StatsPlan(), FailureTypeDistributionPlan(), HourlyPlan(baseTime), FailurePatternsPlan(),
		BankPerformancePlan(), VPADomainPlan(), AmountBucketPlan(), RetryPatternPlan(),
		RecentStatsPlan(baseTime), TopFailuresPlan(baseTime, 5), HourlyTrendPlan(baseTime),
		LiveMetricsPlan(), SearchPlan(SearchQuery{Query: "x"}),
	}
	seen := map[string]bool{}
	for _, p := range plans {
		assert.NotEmpty(t, p.pipeline, p.Name())
		assert.NotNil(t, p.local, p.Name())
		assert.False(t, seen[p.Name()], "duplicate plan name %s", p.Name())
		seen[p.Name()] = true
	}
}
