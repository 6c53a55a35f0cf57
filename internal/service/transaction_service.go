package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vanshika/upidiag/backend/internal/domain"
	"github.com/vanshika/upidiag/backend/internal/storage"
)

// ErrNotFound is returned when a transaction id is unknown.
var ErrNotFound = errors.New("transaction not found")

// ErrConflict is returned when a transaction id already exists.
var ErrConflict = errors.New("transaction already exists")

const defaultHourlyDays = 7

// TransactionService exposes record reads and writes. Reads that fail in
// storage are logged and degrade to empty results.
type TransactionService struct {
	store  storage.Gateway
	logger *slog.Logger
	nowFn  func() time.Time
}

// ListParams defines filters for listing transactions.
type ListParams struct {
	Limit       int
	Skip        int
	Status      domain.Status
	FailureType domain.FailureType
	Search      string
	StartTime   *time.Time
	EndTime     *time.Time
}

// NewTransactionService constructs a TransactionService.
func NewTransactionService(store storage.Gateway, logger *slog.Logger) *TransactionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionService{
		store:  store,
		logger: logger.With("component", "transactions"),
		nowFn:  time.Now,
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (s *TransactionService) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

func (s *TransactionService) List(ctx context.Context, params ListParams) []domain.Transaction {
	txs, err := s.store.Find(ctx, storage.Filter{
		Status:      params.Status,
		FailureType: params.FailureType,
		Search:      params.Search,
		Start:       params.StartTime,
		End:         params.EndTime,
		Skip:        params.Skip,
		Limit:       params.Limit,
	})
	if err != nil {
		s.logger.Error("list transactions failed", "error", err)
		return []domain.Transaction{}
	}
	return txs
}

func (s *TransactionService) Get(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.store.FindByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Transaction{}, ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

// Create normalizes, validates and stores a single record.
func (s *TransactionService) Create(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if tx.Timestamp.IsZero() {
		tx.Timestamp = s.nowFn()
	}
	tx = tx.Normalize()
	if err := tx.Validate(); err != nil {
		return domain.Transaction{}, err
	}
	if err := s.store.InsertOne(ctx, tx); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return domain.Transaction{}, fmt.Errorf("%w: %s", ErrConflict, tx.TransactionID)
		}
		return domain.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return tx, nil
}

func (s *TransactionService) UpdateStatus(ctx context.Context, id string, status domain.Status, diagnosis *domain.Diagnosis) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransaction, status)
	}
	err := s.store.UpdateStatus(ctx, id, status, diagnosis)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	return nil
}

// Stats returns collection counters. SuccessRate is 0 for an empty collection.
func (s *TransactionService) Stats(ctx context.Context) domain.Stats {
	var rows []domain.Stats
	if err := s.store.Aggregate(ctx, storage.StatsPlan(), &rows); err != nil {
		s.logger.Error("stats aggregation failed", "error", err)
		return domain.Stats{}
	}
	if len(rows) == 0 {
		return domain.Stats{}
	}
	stats := rows[0]
	stats.SuccessRate = domain.SuccessRatePercent(stats.SuccessfulTransactions, stats.TotalTransactions)
	return stats
}

func (s *TransactionService) FailureTypes(ctx context.Context) []domain.FailureTypeCount {
	rows := make([]domain.FailureTypeCount, 0)
	if err := s.store.Aggregate(ctx, storage.FailureTypeDistributionPlan(), &rows); err != nil {
		s.logger.Error("failure type aggregation failed", "error", err)
		return []domain.FailureTypeCount{}
	}
	return rows
}

// Hourly returns per-hour chart data for the last days (default 7).
func (s *TransactionService) Hourly(ctx context.Context, days int) []domain.HourlyPoint {
	if days <= 0 {
		days = defaultHourlyDays
	}
	since := s.nowFn().UTC().AddDate(0, 0, -days)
	rows := make([]domain.HourlyPoint, 0)
	if err := s.store.Aggregate(ctx, storage.HourlyPlan(since), &rows); err != nil {
		s.logger.Error("hourly aggregation failed", "error", err)
		return []domain.HourlyPoint{}
	}
	return rows
}

// Health probes the store and reports its record count.
func (s *TransactionService) Health(ctx context.Context) domain.HealthReport {
	report := domain.HealthReport{
		Mode:      s.store.Mode(),
		Timestamp: s.nowFn().UTC(),
	}
	if err := s.store.Ping(ctx); err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		return report
	}
	count, err := s.store.Count(ctx)
	if err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		return report
	}
	report.Status = "healthy"
	report.Connected = true
	report.TransactionsCount = count
	return report
}
