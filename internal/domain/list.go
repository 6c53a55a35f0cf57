package domain

import "time"

// Stats captures collection-wide counters.
type Stats struct {
	TotalTransactions      int64   `bson:"total_transactions" json:"total_transactions"`
	FailedTransactions     int64   `bson:"failed_transactions" json:"failed_transactions"`
	SuccessfulTransactions int64   `bson:"successful_transactions" json:"successful_transactions"`
	PendingTransactions    int64   `bson:"pending_transactions" json:"pending_transactions"`
	TotalAmount            float64 `bson:"total_amount" json:"total_amount"`
	AvgAmount              float64 `bson:"avg_amount" json:"avg_amount"`
	SuccessRate            float64 `bson:"-" json:"success_rate"`
}

// SuccessRatePercent returns successful/total×100, or 0 for an empty set.
func SuccessRatePercent(successful, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}

// FailureTypeCount is one row of the failure type distribution.
type FailureTypeCount struct {
	FailureType FailureType `bson:"failure_type" json:"failure_type"`
	Count       int64       `bson:"count" json:"count"`
}

// HourlyPoint is one (date, hour) bucket of chart data.
type HourlyPoint struct {
	Hour       string `bson:"hour" json:"hour"`
	Date       string `bson:"date" json:"date"`
	Total      int64  `bson:"total" json:"total"`
	Failed     int64  `bson:"failed" json:"failed"`
	Successful int64  `bson:"successful" json:"successful"`
}

// HealthReport describes the state of the backing store.
type HealthReport struct {
	Status            string    `json:"status"`
	Connected         bool      `json:"connected"`
	Mode              string    `json:"mode"`
	TransactionsCount int64     `json:"transactions_count"`
	Error             string    `json:"error,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// DatasetStatistics summarises a processed dataset before ingestion.
type DatasetStatistics struct {
	TotalTransactions       int64                 `json:"total_transactions"`
	SuccessfulTransactions  int64                 `json:"successful_transactions"`
	FailedTransactions      int64                 `json:"failed_transactions"`
	PendingTransactions     int64                 `json:"pending_transactions"`
	SuccessRate             float64               `json:"success_rate"`
	FailureRate             float64               `json:"failure_rate"`
	FailureTypeDistribution map[FailureType]int64 `json:"failure_type_distribution"`
	AmountStatistics        AmountStatistics      `json:"amount_statistics"`
	DateRange               DateRange             `json:"date_range"`
}

// AmountStatistics holds min/max/avg/total of amounts.
type AmountStatistics struct {
	MinAmount   float64 `json:"min_amount"`
	MaxAmount   float64 `json:"max_amount"`
	AvgAmount   float64 `json:"avg_amount"`
	TotalAmount float64 `json:"total_amount"`
}

// DateRange bounds a set of timestamps.
type DateRange struct {
	Earliest *time.Time `json:"earliest"`
	Latest   *time.Time `json:"latest"`
}
