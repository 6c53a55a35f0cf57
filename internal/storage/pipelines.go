package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

// Plan is a fixed analytics query. Plans are built only by the constructors
// in this package and executed only by a Gateway.
type Plan struct {
	name     string
	pipeline mongo.Pipeline
	local    func(records []domain.Transaction) any
}

// Name identifies the plan in logs and metrics.
func (p Plan) Name() string { return p.name }

// AmountRanges are the amount buckets in ascending order.
var AmountRanges = []string{"0-100", "100-500", "500-1000", "1000-5000", "5000+"}

// AmountBucket maps an amount onto its half-open range label.
func AmountBucket(amount float64) string {
	switch {
	case amount < 100:
		return "0-100"
	case amount < 500:
		return "100-500"
	case amount < 1000:
		return "500-1000"
	case amount < 5000:
		return "1000-5000"
	default:
		return "5000+"
	}
}

// SearchQuery parameterises the free-text search plan.
type SearchQuery struct {
	Query       string
	Status      domain.Status
	FailureType domain.FailureType
	AmountMin   *float64
	AmountMax   *float64
	DateFrom    *time.Time
	DateTo      *time.Time
	Limit       int
}

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
)

// Relevance weights per matched field.
const (
	weightTransactionID = 10
	weightFailureReason = 5
	weightSenderVPA     = 3
	weightReceiverVPA   = 3
)

func statusIs(status domain.Status) bson.M {
	return bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", status}}, 1, 0}}
}

func percentOf(part any, whole string) bson.M {
	return bson.M{"$cond": bson.A{
		bson.M{"$eq": bson.A{whole, 0}},
		0,
		bson.M{"$multiply": bson.A{bson.M{"$divide": bson.A{part, whole}}, 100}},
	}}
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// StatsPlan computes collection-wide counters.
func StatsPlan() Plan {
	return Plan{
		name: "stats",
		pipeline: mongo.Pipeline{
			{{Key: "$group", Value: bson.M{
				"_id":                     nil,
				"total_transactions":      bson.M{"$sum": 1},
				"failed_transactions":     bson.M{"$sum": statusIs(domain.StatusFailed)},
				"successful_transactions": bson.M{"$sum": statusIs(domain.StatusSuccess)},
				"pending_transactions":    bson.M{"$sum": statusIs(domain.StatusPending)},
				"total_amount":            bson.M{"$sum": "$amount"},
				"avg_amount":              bson.M{"$avg": "$amount"},
			}}},
			{{Key: "$project", Value: bson.M{"_id": 0}}},
		},
		local: func(records []domain.Transaction) any {
			if len(records) == 0 {
				return []domain.Stats{}
			}
			var s domain.Stats
			for _, tx := range records {
				s.TotalTransactions++
				s.TotalAmount += tx.Amount
				switch tx.Status {
				case domain.StatusFailed:
					s.FailedTransactions++
				case domain.StatusSuccess:
					s.SuccessfulTransactions++
				case domain.StatusPending:
					s.PendingTransactions++
				}
			}
			s.AvgAmount = s.TotalAmount / float64(s.TotalTransactions)
			return []domain.Stats{s}
		},
	}
}

// FailureTypeDistributionPlan counts records per failure type, most frequent first.
func FailureTypeDistributionPlan() Plan {
	return Plan{
		name: "failure_type_distribution",
		pipeline: mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"failure_type": bson.M{"$nin": bson.A{nil, ""}}}}},
			{{Key: "$group", Value: bson.M{"_id": "$failure_type", "count": bson.M{"$sum": 1}}}},
			{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
			{{Key: "$project", Value: bson.M{"_id": 0, "failure_type": "$_id", "count": 1}}},
		},
		local: func(records []domain.Transaction) any {
			counts := map[domain.FailureType]int64{}
			for _, tx := range records {
				if tx.FailureType != "" {
					counts[tx.FailureType]++
				}
			}
			return sortedFailureCounts(counts, 0)
		},
	}
}

// HourlyPlan buckets records since the given instant by calendar date and hour.
func HourlyPlan(since time.Time) Plan {
	since = since.UTC()
	return Plan{
		name: "hourly",
		pipeline: mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"timestamp": bson.M{"$gte": since}}}},
			{{Key: "$group", Value: bson.M{
				"_id": bson.M{
					"date": bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$timestamp"}},
					"hour": bson.M{"$hour": "$timestamp"},
				},
				"total":      bson.M{"$sum": 1},
				"failed":     bson.M{"$sum": statusIs(domain.StatusFailed)},
				"successful": bson.M{"$sum": statusIs(domain.StatusSuccess)},
			}}},
			{{Key: "$sort", Value: bson.D{{Key: "_id.date", Value: 1}, {Key: "_id.hour", Value: 1}}}},
			{{Key: "$project", Value: bson.M{
				"_id":  0,
				"date": "$_id.date",
				"hour": bson.M{"$concat": bson.A{
					bson.M{"$cond": bson.A{
						bson.M{"$lt": bson.A{"$_id.hour", 10}},
						bson.M{"$concat": bson.A{"0", bson.M{"$toString": "$_id.hour"}}},
						bson.M{"$toString": "$_id.hour"},
					}},
					":00",
				}},
				"total":      1,
				"failed":     1,
				"successful": 1,
			}}},
		},
		local: func(records []domain.Transaction) any {
			type key struct {
				date string
				hour int
			}
			buckets := map[key]*domain.HourlyPoint{}
			var keys []key
			for _, tx := range records {
				ts := tx.Timestamp.UTC()
				if ts.Before(since) {
					continue
				}
				k := key{date: ts.Format("2006-01-02"), hour: ts.Hour()}
				p, ok := buckets[k]
				if !ok {
					p = &domain.HourlyPoint{Date: k.date, Hour: fmt.Sprintf("%02d:00", k.hour)}
					buckets[k] = p
					keys = append(keys, k)
				}
				p.Total++
				switch tx.Status {
				case domain.StatusFailed:
					p.Failed++
				case domain.StatusSuccess:
					p.Successful++
				}
			}
			sort.Slice(keys, func(i, j int) bool {
				if keys[i].date != keys[j].date {
					return keys[i].date < keys[j].date
				}
				return keys[i].hour < keys[j].hour
			})
			out := make([]domain.HourlyPoint, 0, len(keys))
			for _, k := range keys {
				out = append(out, *buckets[k])
			}
			return out
		},
	}
}

// FailurePatternsPlan groups failed records by hour of day and failure type.
func FailurePatternsPlan() Plan {
	return Plan{
		name: "failure_patterns",
		pipeline: mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"status": domain.StatusFailed}}},
			{{Key: "$group", Value: bson.M{
				"_id":        bson.M{"hour": bson.M{"$hour": "$timestamp"}, "failure_type": "$failure_type"},
				"count":      bson.M{"$sum": 1},
				"avg_amount": bson.M{"$avg": "$amount"},
			}}},
			{{Key: "$sort", Value: bson.D{{Key: "_id.hour", Value: 1}, {Key: "count", Value: -1}, {Key: "_id.failure_type", Value: 1}}}},
			{{Key: "$project", Value: bson.M{
				"_id":          0,
				"hour":         "$_id.hour",
				"failure_type": "$_id.failure_type",
				"count":        1,
				"avg_amount":   1,
			}}},
		},
		local: func(records []domain.Transaction) any {
			type key struct {
				hour int
				ft   domain.FailureType
			}
			sums := map[key]float64{}
			rows := map[key]*domain.FailurePattern{}
			for _, tx := range records {
				if tx.Status != domain.StatusFailed {
					continue
				}
				k := key{hour: tx.Timestamp.UTC().Hour(), ft: tx.FailureType}
				row, ok := rows[k]
				if !ok {
					row = &domain.FailurePattern{Hour: k.hour, FailureType: k.ft}
					rows[k] = row
				}
				row.Count++
				sums[k] += tx.Amount
			}
			out := make([]domain.FailurePattern, 0, len(rows))
			for k, row := range rows {
				row.AvgAmount = sums[k] / float64(row.Count)
				out = append(out, *row)
			}
			sort.Slice(out, func(i, j int) bool {
				if out[i].Hour != out[j].Hour {
					return out[i].Hour < out[j].Hour
				}
				if out[i].Count != out[j].Count {
					return out[i].Count > out[j].Count
				}
				return out[i].FailureType < out[j].FailureType
			})
			return out
		},
	}
}

// BankPerformancePlan summarises each sender bank, best success rate first.
func BankPerformancePlan() Plan {
	return Plan{
		name: "bank_performance",
		pipeline: mongo.Pipeline{
			{{Key: "$group", Value: bson.M{
				"_id":                 "$sender_bank",
				"total_transactions":  bson.M{"$sum": 1},
				"failed_transactions": bson.M{"$sum": statusIs(domain.StatusFailed)},
				"total_amount":        bson.M{"$sum": "$amount"},
				"avg_amount":          bson.M{"$avg": "$amount"},
				"failure_types":       bson.M{"$addToSet": "$failure_type"},
			}}},
			{{Key: "$project", Value: bson.M{
				"_id":                 0,
				"bank":                "$_id",
				"total_transactions":  1,
				"failed_transactions": 1,
				"total_amount":        1,
				"avg_amount":          1,
				"failure_types":       1,
				"success_rate": percentOf(
					bson.M{"$subtract": bson.A{"$total_transactions", "$failed_transactions"}},
					"$total_transactions",
				),
			}}},
			{{Key: "$sort", Value: bson.D{{Key: "success_rate", Value: -1}, {Key: "bank", Value: 1}}}},
		},
		local: func(records []domain.Transaction) any {
			rows := map[string]*domain.BankPerformance{}
			types := map[string]map[domain.FailureType]struct{}{}
			for _, tx := range records {
				row, ok := rows[tx.SenderBank]
				if !ok {
					row = &domain.BankPerformance{Bank: tx.SenderBank}
					rows[tx.SenderBank] = row
					types[tx.SenderBank] = map[domain.FailureType]struct{}{}
				}
				row.TotalTransactions++
				row.TotalAmount += tx.Amount
				if tx.Status == domain.StatusFailed {
					row.FailedTransactions++
				}
				if tx.FailureType != "" {
					types[tx.SenderBank][tx.FailureType] = struct{}{}
				}
			}
			out := make([]domain.BankPerformance, 0, len(rows))
			for bank, row := range rows {
				row.AvgAmount = row.TotalAmount / float64(row.TotalTransactions)
				row.SuccessRate = percent(row.TotalTransactions-row.FailedTransactions, row.TotalTransactions)
				row.FailureTypes = sortedTypes(types[bank])
				out = append(out, *row)
			}
			sort.Slice(out, func(i, j int) bool {
				if out[i].SuccessRate != out[j].SuccessRate {
					return out[i].SuccessRate > out[j].SuccessRate
				}
				return out[i].Bank < out[j].Bank
			})
			return out
		},
	}
}

// VPADomainPlan groups traffic by (sender handle, receiver handle).
func VPADomainPlan() Plan {
	domainOf := func(field string) bson.M {
		return bson.M{"$arrayElemAt": bson.A{bson.M{"$split": bson.A{field, "@"}}, 1}}
	}
	return Plan{
		name: "vpa_domains",
		pipeline: mongo.Pipeline{
			{{Key: "$project", Value: bson.M{
				"sender_domain":   bson.M{"$toLower": domainOf("$sender_vpa")},
				"receiver_domain": bson.M{"$toLower": domainOf("$receiver_vpa")},
				"status":          1,
				"amount":          1,
				"failure_type":    1,
			}}},
			{{Key: "$group", Value: bson.M{
				"_id":               bson.M{"sender_domain": "$sender_domain", "receiver_domain": "$receiver_domain"},
				"transaction_count": bson.M{"$sum": 1},
				"failure_count":     bson.M{"$sum": statusIs(domain.StatusFailed)},
				"avg_amount":        bson.M{"$avg": "$amount"},
				"common_failures":   bson.M{"$addToSet": "$failure_type"},
			}}},
			{{Key: "$project", Value: bson.M{
				"_id":               0,
				"sender_domain":     "$_id.sender_domain",
				"receiver_domain":   "$_id.receiver_domain",
				"transaction_count": 1,
				"failure_count":     1,
				"avg_amount":        1,
				"common_failures":   1,
				"failure_rate":      percentOf("$failure_count", "$transaction_count"),
			}}},
			{{Key: "$sort", Value: bson.D{
				{Key: "transaction_count", Value: -1},
				{Key: "sender_domain", Value: 1},
				{Key: "receiver_domain", Value: 1},
			}}},
		},
		local: func(records []domain.Transaction) any {
			type key struct{ sender, receiver string }
			rows := map[key]*domain.VPADomainStat{}
			sums := map[key]float64{}
			types := map[key]map[domain.FailureType]struct{}{}
			for _, tx := range records {
				k := key{sender: domain.VPADomain(tx.SenderVPA), receiver: domain.VPADomain(tx.ReceiverVPA)}
				row, ok := rows[k]
				if !ok {
					row = &domain.VPADomainStat{SenderDomain: k.sender, ReceiverDomain: k.receiver}
					rows[k] = row
					types[k] = map[domain.FailureType]struct{}{}
				}
				row.TransactionCount++
				sums[k] += tx.Amount
				if tx.Status == domain.StatusFailed {
					row.FailureCount++
				}
				if tx.FailureType != "" {
					types[k][tx.FailureType] = struct{}{}
				}
			}
			out := make([]domain.VPADomainStat, 0, len(rows))
			for k, row := range rows {
				row.AvgAmount = sums[k] / float64(row.TransactionCount)
				row.FailureRate = percent(row.FailureCount, row.TransactionCount)
				row.CommonFailures = sortedTypes(types[k])
				out = append(out, *row)
			}
			sort.Slice(out, func(i, j int) bool {
				if out[i].TransactionCount != out[j].TransactionCount {
					return out[i].TransactionCount > out[j].TransactionCount
				}
				if out[i].SenderDomain != out[j].SenderDomain {
					return out[i].SenderDomain < out[j].SenderDomain
				}
				return out[i].ReceiverDomain < out[j].ReceiverDomain
			})
			return out
		},
	}
}

// AmountBucketPlan groups records by amount range and failure type.
func AmountBucketPlan() Plan {
	ranges := make(bson.A, 0, len(AmountRanges))
	for _, r := range AmountRanges {
		ranges = append(ranges, r)
	}
	branch := func(op string, bound float64, label string) bson.M {
		return bson.M{"case": bson.M{op: bson.A{"$amount", bound}}, "then": label}
	}
	return Plan{
		name: "amount_buckets",
		pipeline: mongo.Pipeline{
			{{Key: "$addFields", Value: bson.M{
				"amount_range": bson.M{"$switch": bson.M{
					"branches": bson.A{
						branch("$lt", 100, "0-100"),
						branch("$lt", 500, "100-500"),
						branch("$lt", 1000, "500-1000"),
						branch("$lt", 5000, "1000-5000"),
						branch("$gte", 5000, "5000+"),
					},
					"default": "unknown",
				}},
			}}},
			{{Key: "$group", Value: bson.M{
				"_id":             bson.M{"amount_range": "$amount_range", "failure_type": "$failure_type"},
				"count":           bson.M{"$sum": 1},
				"avg_retry_count": bson.M{"$avg": "$retry_count"},
			}}},
			{{Key: "$project", Value: bson.M{
				"_id":             0,
				"amount_range":    "$_id.amount_range",
				"failure_type":    "$_id.failure_type",
				"count":           1,
				"avg_retry_count": 1,
				"bucket_order":    bson.M{"$indexOfArray": bson.A{ranges, "$_id.amount_range"}},
			}}},
			{{Key: "$sort", Value: bson.D{{Key: "bucket_order", Value: 1}, {Key: "count", Value: -1}, {Key: "failure_type", Value: 1}}}},
			{{Key: "$project", Value: bson.M{"bucket_order": 0}}},
		},
		local: func(records []domain.Transaction) any {
			type key struct {
				bucket string
				ft     domain.FailureType
			}
			rows := map[key]*domain.AmountBucketStat{}
			retries := map[key]int{}
			for _, tx := range records {
				k := key{bucket: AmountBucket(tx.Amount), ft: tx.FailureType}
				row, ok := rows[k]
				if !ok {
					row = &domain.AmountBucketStat{AmountRange: k.bucket, FailureType: k.ft}
					rows[k] = row
				}
				row.Count++
				retries[k] += tx.RetryCount
			}
			out := make([]domain.AmountBucketStat, 0, len(rows))
			for k, row := range rows {
				row.AvgRetryCount = float64(retries[k]) / float64(row.Count)
				out = append(out, *row)
			}
			order := map[string]int{}
			for i, r := range AmountRanges {
				order[r] = i
			}
			sort.Slice(out, func(i, j int) bool {
				if out[i].AmountRange != out[j].AmountRange {
					return order[out[i].AmountRange] < order[out[j].AmountRange]
				}
				if out[i].Count != out[j].Count {
					return out[i].Count > out[j].Count
				}
				return out[i].FailureType < out[j].FailureType
			})
			return out
		},
	}
}

// RetryPatternPlan correlates retry counts with eventual success.
func RetryPatternPlan() Plan {
	return Plan{
		name: "retry_patterns",
		pipeline: mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"retry_count": bson.M{"$gt": 0}}}},
			{{Key: "$group", Value: bson.M{
				"_id":               bson.M{"retry_count": "$retry_count", "failure_type": "$failure_type"},
				"transaction_count": bson.M{"$sum": 1},
				"eventual_success":  bson.M{"$sum": statusIs(domain.StatusSuccess)},
			}}},
			{{Key: "$project", Value: bson.M{
				"_id":                      0,
				"retry_count":              "$_id.retry_count",
				"failure_type":             "$_id.failure_type",
				"transaction_count":        1,
				"eventual_success":         1,
				"success_after_retry_rate": percentOf("$eventual_success", "$transaction_count"),
			}}},
			{{Key: "$sort", Value: bson.D{{Key: "retry_count", Value: 1}, {Key: "transaction_count", Value: -1}, {Key: "failure_type", Value: 1}}}},
		},
		local: func(records []domain.Transaction) any {
			type key struct {
				retries int
				ft      domain.FailureType
			}
			rows := map[key]*domain.RetryPattern{}
			for _, tx := range records {
				if tx.RetryCount <= 0 {
					continue
				}
				k := key{retries: tx.RetryCount, ft: tx.FailureType}
				row, ok := rows[k]
				if !ok {
					row = &domain.RetryPattern{RetryCount: k.retries, FailureType: k.ft}
					rows[k] = row
				}
				row.TransactionCount++
				if tx.Status == domain.StatusSuccess {
					row.EventualSuccess++
				}
			}
			out := make([]domain.RetryPattern, 0, len(rows))
			for _, row := range rows {
				row.SuccessAfterRetryRate = percent(row.EventualSuccess, row.TransactionCount)
				out = append(out, *row)
			}
			sort.Slice(out, func(i, j int) bool {
				if out[i].RetryCount != out[j].RetryCount {
					return out[i].RetryCount < out[j].RetryCount
				}
				if out[i].TransactionCount != out[j].TransactionCount {
					return out[i].TransactionCount > out[j].TransactionCount
				}
				return out[i].FailureType < out[j].FailureType
			})
			return out
		},
	}
}

// RecentStatsPlan computes totals for records since the given instant.
func RecentStatsPlan(since time.Time) Plan {
	since = since.UTC()
	return Plan{
		name: "recent_stats",
		pipeline: mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"timestamp": bson.M{"$gte": since}}}},
			{{Key: "$group", Value: bson.M{
				"_id":          nil,
				"total":        bson.M{"$sum": 1},
				"failed":       bson.M{"$sum": statusIs(domain.StatusFailed)},
				"avg_amount":   bson.M{"$avg": "$amount"},
				"total_volume": bson.M{"$sum": "$amount"},
			}}},
			{{Key: "$project", Value: bson.M{"_id": 0}}},
		},
		local: func(records []domain.Transaction) any {
			var s domain.RecentStats
			for _, tx := range records {
				if tx.Timestamp.Before(since) {
					continue
				}
				s.Total++
				s.TotalVolume += tx.Amount
				if tx.Status == domain.StatusFailed {
					s.Failed++
				}
			}
			if s.Total == 0 {
				return []domain.RecentStats{}
			}
			s.AvgAmount = s.TotalVolume / float64(s.Total)
			return []domain.RecentStats{s}
		},
	}
}

// TopFailuresPlan returns the n most frequent failure types since the given instant.
func TopFailuresPlan(since time.Time, n int) Plan {
	since = since.UTC()
	if n <= 0 {
		n = 5
	}
	return Plan{
		name: "top_failures",
		pipeline: mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"timestamp": bson.M{"$gte": since}, "status": domain.StatusFailed}}},
			{{Key: "$group", Value: bson.M{"_id": "$failure_type", "count": bson.M{"$sum": 1}}}},
			{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
			{{Key: "$limit", Value: n}},
			{{Key: "$project", Value: bson.M{"_id": 0, "failure_type": "$_id", "count": 1}}},
		},
		local: func(records []domain.Transaction) any {
			counts := map[domain.FailureType]int64{}
			for _, tx := range records {
				if tx.Timestamp.Before(since) || tx.Status != domain.StatusFailed {
					continue
				}
				counts[tx.FailureType]++
			}
			return sortedFailureCounts(counts, n)
		},
	}
}

// HourlyTrendPlan buckets records since the given instant by hour of day.
func HourlyTrendPlan(since time.Time) Plan {
	since = since.UTC()
	return Plan{
		name: "hourly_trend",
		pipeline: mongo.Pipeline{
			{{Key: "$match", Value: bson.M{"timestamp": bson.M{"$gte": since}}}},
			{{Key: "$group", Value: bson.M{
				"_id":    bson.M{"$hour": "$timestamp"},
				"total":  bson.M{"$sum": 1},
				"failed": bson.M{"$sum": statusIs(domain.StatusFailed)},
			}}},
			{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
			{{Key: "$project", Value: bson.M{"_id": 0, "hour": "$_id", "total": 1, "failed": 1}}},
		},
		local: func(records []domain.Transaction) any {
			rows := map[int]*domain.HourlyTrend{}
			for _, tx := range records {
				if tx.Timestamp.Before(since) {
					continue
				}
				h := tx.Timestamp.UTC().Hour()
				row, ok := rows[h]
				if !ok {
					row = &domain.HourlyTrend{Hour: h}
					rows[h] = row
				}
				row.Total++
				if tx.Status == domain.StatusFailed {
					row.Failed++
				}
			}
			out := make([]domain.HourlyTrend, 0, len(rows))
			for _, row := range rows {
				out = append(out, *row)
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
			return out
		},
	}
}

// LiveMetricsPlan computes whole-collection monitoring totals.
func LiveMetricsPlan() Plan {
	return Plan{
		name: "live_metrics",
		pipeline: mongo.Pipeline{
			{{Key: "$group", Value: bson.M{
				"_id":                   nil,
				"total_transactions":    bson.M{"$sum": 1},
				"active_failures":       bson.M{"$sum": statusIs(domain.StatusFailed)},
				"total_volume":          bson.M{"$sum": "$amount"},
				"avg_transaction_value": bson.M{"$avg": "$amount"},
			}}},
			{{Key: "$project", Value: bson.M{"_id": 0}}},
		},
		local: func(records []domain.Transaction) any {
			if len(records) == 0 {
				return []domain.LiveMetrics{}
			}
			var m domain.LiveMetrics
			for _, tx := range records {
				m.TotalTransactions++
				m.TotalVolume += tx.Amount
				if tx.Status == domain.StatusFailed {
					m.ActiveFailures++
				}
			}
			m.AvgTransactionValue = m.TotalVolume / float64(m.TotalTransactions)
			return []domain.LiveMetrics{m}
		},
	}
}

var searchFields = []string{"transaction_id", "sender_vpa", "receiver_vpa", "failure_reason", "error_code"}

// SearchPlan performs the weighted free-text search.
func SearchPlan(q SearchQuery) Plan {
	q.Query = strings.TrimSpace(q.Query)
	if q.Limit <= 0 {
		q.Limit = defaultSearchLimit
	}
	if q.Limit > maxSearchLimit {
		q.Limit = maxSearchLimit
	}

	var pipeline mongo.Pipeline
	if q.Query != "" {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"$or": regexClauses(q.Query, searchFields)}}})
	}
	if conditions := q.conditions(); len(conditions) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: conditions}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$addFields", Value: bson.M{"relevance_score": q.scoreExpression()}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "relevance_score", Value: -1}, {Key: "timestamp", Value: -1}}}},
		bson.D{{Key: "$limit", Value: q.Limit}},
		bson.D{{Key: "$project", Value: bson.M{"_id": 0}}},
	)

	return Plan{
		name:     "search",
		pipeline: pipeline,
		local: func(records []domain.Transaction) any {
			hits := make([]domain.SearchHit, 0)
			for _, tx := range records {
				if !q.matches(tx) {
					continue
				}
				hits = append(hits, domain.SearchHit{Transaction: tx, RelevanceScore: q.score(tx)})
			}
			sort.SliceStable(hits, func(i, j int) bool {
				if hits[i].RelevanceScore != hits[j].RelevanceScore {
					return hits[i].RelevanceScore > hits[j].RelevanceScore
				}
				return hits[i].Timestamp.After(hits[j].Timestamp)
			})
			if len(hits) > q.Limit {
				hits = hits[:q.Limit]
			}
			return hits
		},
	}
}

func (q SearchQuery) conditions() bson.M {
	doc := bson.M{}
	if q.Status != "" {
		doc["status"] = q.Status
	}
	if q.FailureType != "" {
		doc["failure_type"] = q.FailureType
	}
	if q.AmountMin != nil || q.AmountMax != nil {
		amount := bson.M{}
		if q.AmountMin != nil {
			amount["$gte"] = *q.AmountMin
		}
		if q.AmountMax != nil {
			amount["$lte"] = *q.AmountMax
		}
		doc["amount"] = amount
	}
	if tr := timeRange(q.DateFrom, q.DateTo); tr != nil {
		doc["timestamp"] = tr
	}
	return doc
}

func (q SearchQuery) scoreExpression() any {
	if q.Query == "" {
		return 0
	}
	pattern := substringRegex(q.Query)
	term := func(field string, weight int) bson.M {
		return bson.M{"$cond": bson.A{
			bson.M{"$regexMatch": bson.M{
				"input":   bson.M{"$ifNull": bson.A{"$" + field, ""}},
				"regex":   pattern.Pattern,
				"options": pattern.Options,
			}},
			weight,
			0,
		}}
	}
	return bson.M{"$add": bson.A{
		term("transaction_id", weightTransactionID),
		term("failure_reason", weightFailureReason),
		term("sender_vpa", weightSenderVPA),
		term("receiver_vpa", weightReceiverVPA),
	}}
}

func (q SearchQuery) matches(tx domain.Transaction) bool {
	if q.Query != "" &&
		!containsFold(tx.TransactionID, q.Query) &&
		!containsFold(tx.SenderVPA, q.Query) &&
		!containsFold(tx.ReceiverVPA, q.Query) &&
		!containsFold(tx.FailureReason, q.Query) &&
		!containsFold(tx.ErrorCode, q.Query) {
		return false
	}
	if q.Status != "" && tx.Status != q.Status {
		return false
	}
	if q.FailureType != "" && tx.FailureType != q.FailureType {
		return false
	}
	if q.AmountMin != nil && tx.Amount < *q.AmountMin {
		return false
	}
	if q.AmountMax != nil && tx.Amount > *q.AmountMax {
		return false
	}
	if q.DateFrom != nil && tx.Timestamp.Before(*q.DateFrom) {
		return false
	}
	if q.DateTo != nil && tx.Timestamp.After(*q.DateTo) {
		return false
	}
	return true
}

func (q SearchQuery) score(tx domain.Transaction) int {
	if q.Query == "" {
		return 0
	}
	score := 0
	if containsFold(tx.TransactionID, q.Query) {
		score += weightTransactionID
	}
	if containsFold(tx.FailureReason, q.Query) {
		score += weightFailureReason
	}
	if containsFold(tx.SenderVPA, q.Query) {
		score += weightSenderVPA
	}
	if containsFold(tx.ReceiverVPA, q.Query) {
		score += weightReceiverVPA
	}
	return score
}

func sortedFailureCounts(counts map[domain.FailureType]int64, limit int) []domain.FailureCount {
	out := make([]domain.FailureCount, 0, len(counts))
	for ft, c := range counts {
		out = append(out, domain.FailureCount{FailureType: ft, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].FailureType < out[j].FailureType
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortedTypes(set map[domain.FailureType]struct{}) []domain.FailureType {
	out := make([]domain.FailureType, 0, len(set))
	for ft := range set {
		out = append(out, ft)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
