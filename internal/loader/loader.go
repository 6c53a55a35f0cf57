package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/vanshika/upidiag/backend/internal/domain"
	"github.com/vanshika/upidiag/backend/internal/storage"
)

// ErrNotLoaded is returned when records are requested before Load.
var ErrNotLoaded = errors.New("dataset not loaded")

// Loader fetches a dataset, maps it into transactions and keeps the processed
// records for ingestion, replay and statistics.
type Loader struct {
	source   Source
	mapper   *Mapper
	ingestor *BatchIngestor
	logger   *slog.Logger

	// loadMu serializes Load so overlapping requests cannot interleave
	// their fetch and map phases.
	loadMu sync.Mutex

	mu      sync.RWMutex
	records []domain.Transaction
	skipped int
}

// New constructs a Loader.
func New(source Source, mapper *Mapper, ingestor *BatchIngestor, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		source:   source,
		mapper:   mapper,
		ingestor: ingestor,
		logger:   logger.With("component", "loader"),
	}
}

// SourceName describes where records come from.
func (l *Loader) SourceName() string { return l.source.Name() }

// Load fetches and maps every row. Rows that fail to map are skipped.
func (l *Loader) Load(ctx context.Context) (int, error) {
	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	rows, err := l.source.Rows(ctx)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", l.source.Name(), err)
	}

	records := make([]domain.Transaction, 0, len(rows))
	skipped := 0
	for i, row := range rows {
		tx, err := l.mapper.Map(i, row)
		if err != nil {
			skipped++
			l.logger.Warn("skipping dataset row", "index", i, "error", err)
			continue
		}
		records = append(records, tx)
	}

	l.mu.Lock()
	l.records = records
	l.skipped = skipped
	l.mu.Unlock()

	l.logger.Info("dataset processed", "source", l.source.Name(), "records", len(records), "skipped", skipped)
	return len(records), nil
}

// Records returns a copy of the processed records.
func (l *Loader) Records() []domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.Transaction(nil), l.records...)
}

// Loaded reports whether processed records are available.
func (l *Loader) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records) > 0
}

// Ingest bulk-loads the processed records.
func (l *Loader) Ingest(ctx context.Context) (storage.BulkResult, error) {
	records := l.Records()
	if len(records) == 0 {
		return storage.BulkResult{}, ErrNotLoaded
	}
	res, err := l.ingestor.Ingest(ctx, records)
	l.logger.Info("dataset ingested", "inserted", res.Inserted, "skipped", res.Skipped, "failed", res.Failed)
	return res, err
}

// Statistics summarises the processed records.
func (l *Loader) Statistics() (domain.DatasetStatistics, error) {
	records := l.Records()
	if len(records) == 0 {
		return domain.DatasetStatistics{}, ErrNotLoaded
	}
	return Summarize(records), nil
}

// Summarize computes counts, rates, failure distribution, amount statistics
// and the date range of records.
func Summarize(records []domain.Transaction) domain.DatasetStatistics {
	stats := domain.DatasetStatistics{
		TotalTransactions:       int64(len(records)),
		FailureTypeDistribution: map[domain.FailureType]int64{},
	}
	if len(records) == 0 {
		return stats
	}

	minAmount, maxAmount := math.Inf(1), math.Inf(-1)
	var earliest, latest time.Time
	for i, tx := range records {
		switch tx.Status {
		case domain.StatusSuccess:
			stats.SuccessfulTransactions++
		case domain.StatusFailed:
			stats.FailedTransactions++
		case domain.StatusPending:
			stats.PendingTransactions++
		}
		if tx.FailureType != "" {
			stats.FailureTypeDistribution[tx.FailureType]++
		}
		stats.AmountStatistics.TotalAmount += tx.Amount
		minAmount = math.Min(minAmount, tx.Amount)
		maxAmount = math.Max(maxAmount, tx.Amount)
		if i == 0 || tx.Timestamp.Before(earliest) {
			earliest = tx.Timestamp
		}
		if i == 0 || tx.Timestamp.After(latest) {
			latest = tx.Timestamp
		}
	}

	total := float64(stats.TotalTransactions)
	stats.SuccessRate = float64(stats.SuccessfulTransactions) / total * 100
	stats.FailureRate = float64(stats.FailedTransactions) / total * 100
	stats.AmountStatistics.MinAmount = minAmount
	stats.AmountStatistics.MaxAmount = maxAmount
	stats.AmountStatistics.AvgAmount = stats.AmountStatistics.TotalAmount / total
	stats.DateRange = domain.DateRange{Earliest: &earliest, Latest: &latest}
	return stats
}

// ReadJSONFile loads transactions previously written as a JSON array.
func ReadJSONFile(path string) ([]domain.Transaction, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var txs []domain.Transaction
	if err := json.Unmarshal(raw, &txs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for i := range txs {
		txs[i] = txs[i].Normalize()
	}
	return txs, nil
}
