package domain

import "time"

// FailurePattern groups failed transactions by hour of day and failure type.
type FailurePattern struct {
	Hour        int         `bson:"hour" json:"hour"`
	FailureType FailureType `bson:"failure_type" json:"failure_type"`
	Count       int64       `bson:"count" json:"count"`
	AvgAmount   float64     `bson:"avg_amount" json:"avg_amount"`
}

// BankPerformance summarises outcomes per sender bank.
type BankPerformance struct {
	Bank               string        `bson:"bank" json:"bank"`
	TotalTransactions  int64         `bson:"total_transactions" json:"total_transactions"`
	FailedTransactions int64         `bson:"failed_transactions" json:"failed_transactions"`
	TotalAmount        float64       `bson:"total_amount" json:"total_amount"`
	AvgAmount          float64       `bson:"avg_amount" json:"avg_amount"`
	SuccessRate        float64       `bson:"success_rate" json:"success_rate"`
	FailureTypes       []FailureType `bson:"failure_types" json:"failure_types"`
}

// VPADomainStat summarises traffic between two VPA handles.
type VPADomainStat struct {
	SenderDomain     string        `bson:"sender_domain" json:"sender_domain"`
	ReceiverDomain   string        `bson:"receiver_domain" json:"receiver_domain"`
	TransactionCount int64         `bson:"transaction_count" json:"transaction_count"`
	FailureCount     int64         `bson:"failure_count" json:"failure_count"`
	FailureRate      float64       `bson:"failure_rate" json:"failure_rate"`
	AvgAmount        float64       `bson:"avg_amount" json:"avg_amount"`
	CommonFailures   []FailureType `bson:"common_failures" json:"common_failures"`
}

// AmountBucketStat groups transactions by amount range and failure type.
type AmountBucketStat struct {
	AmountRange   string      `bson:"amount_range" json:"amount_range"`
	FailureType   FailureType `bson:"failure_type,omitempty" json:"failure_type,omitempty"`
	Count         int64       `bson:"count" json:"count"`
	AvgRetryCount float64     `bson:"avg_retry_count" json:"avg_retry_count"`
}

// RetryPattern correlates retry counts with eventual success.
type RetryPattern struct {
	RetryCount            int         `bson:"retry_count" json:"retry_count"`
	FailureType           FailureType `bson:"failure_type,omitempty" json:"failure_type,omitempty"`
	TransactionCount      int64       `bson:"transaction_count" json:"transaction_count"`
	EventualSuccess       int64       `bson:"eventual_success" json:"eventual_success"`
	SuccessAfterRetryRate float64     `bson:"success_after_retry_rate" json:"success_after_retry_rate"`
}

// RecentStats aggregates the dashboard window.
type RecentStats struct {
	Total       int64   `bson:"total" json:"total"`
	Failed      int64   `bson:"failed" json:"failed"`
	AvgAmount   float64 `bson:"avg_amount" json:"avg_amount"`
	TotalVolume float64 `bson:"total_volume" json:"total_volume"`
}

// FailureCount pairs a failure type with its frequency.
type FailureCount struct {
	FailureType FailureType `bson:"failure_type" json:"failure_type"`
	Count       int64       `bson:"count" json:"count"`
}

// HourlyTrend is one hour-of-day bucket of the dashboard trend.
type HourlyTrend struct {
	Hour   int   `bson:"hour" json:"hour"`
	Total  int64 `bson:"total" json:"total"`
	Failed int64 `bson:"failed" json:"failed"`
}

// Dashboard is the real-time overview over the last 24 hours.
type Dashboard struct {
	RecentStats RecentStats    `json:"recent_stats"`
	TopFailures []FailureCount `json:"top_failures"`
	HourlyTrend []HourlyTrend  `json:"hourly_trend"`
	LastUpdated time.Time      `json:"last_updated"`
}

// SearchHit is a transaction annotated with its relevance score.
type SearchHit struct {
	Transaction    `bson:",inline"`
	RelevanceScore int `bson:"relevance_score" json:"relevance_score"`
}

// LiveMetrics is the whole-collection monitoring snapshot.
type LiveMetrics struct {
	TotalTransactions   int64     `bson:"total_transactions" json:"total_transactions"`
	ActiveFailures      int64     `bson:"active_failures" json:"active_failures"`
	TotalVolume         float64   `bson:"total_volume" json:"total_volume"`
	AvgTransactionValue float64   `bson:"avg_transaction_value" json:"avg_transaction_value"`
	Timestamp           time.Time `bson:"-" json:"timestamp"`
	SystemStatus        string    `bson:"-" json:"system_status"`
}
