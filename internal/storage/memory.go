package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

// MemoryGateway keeps transactions in process. It serves as the degraded
// store when MongoDB is unreachable and as the test double for services.
type MemoryGateway struct {
	mu      sync.RWMutex
	records []domain.Transaction
	index   map[string]int
	err     error
	pingErr error
	nowFn   func() time.Time
}

// NewMemoryGateway returns a gateway preloaded with seed. Duplicate ids in
// seed keep their first occurrence.
func NewMemoryGateway(seed ...domain.Transaction) *MemoryGateway {
	m := &MemoryGateway{index: map[string]int{}, nowFn: time.Now}
	for _, tx := range seed {
		if _, ok := m.index[tx.TransactionID]; ok {
			continue
		}
		m.index[tx.TransactionID] = len(m.records)
		m.records = append(m.records, tx)
	}
	return m
}

// WithError makes every data operation return err.
func (m *MemoryGateway) WithError(err error) *MemoryGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithPingError makes Ping return err.
func (m *MemoryGateway) WithPingError(err error) *MemoryGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// WithClock overrides the clock used for updated_at.
func (m *MemoryGateway) WithClock(now func() time.Time) *MemoryGateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFn = now
	return m
}

func (m *MemoryGateway) Mode() string { return "memory" }

func (m *MemoryGateway) EnsureIndexes(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

func (m *MemoryGateway) InsertOne(_ context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.index[tx.TransactionID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, tx.TransactionID)
	}
	m.index[tx.TransactionID] = len(m.records)
	m.records = append(m.records, stamped(tx, m.nowFn()))
	return nil
}

func (m *MemoryGateway) BulkInsert(_ context.Context, txs []domain.Transaction) (BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return BulkResult{Failed: len(txs)}, m.err
	}
	var res BulkResult
	now := m.nowFn()
	for _, tx := range txs {
		if _, ok := m.index[tx.TransactionID]; ok {
			res.Skipped++
			continue
		}
		m.index[tx.TransactionID] = len(m.records)
		m.records = append(m.records, stamped(tx, now))
		res.Inserted++
	}
	return res, nil
}

func (m *MemoryGateway) Find(_ context.Context, filter Filter) ([]domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	filter = filter.normalized()
	matched := make([]domain.Transaction, 0)
	for _, tx := range m.records {
		if filter.matches(tx) {
			matched = append(matched, tx)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if filter.Skip >= len(matched) {
		return []domain.Transaction{}, nil
	}
	matched = matched[filter.Skip:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (m *MemoryGateway) FindByID(_ context.Context, id string) (domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return domain.Transaction{}, m.err
	}
	i, ok := m.index[id]
	if !ok {
		return domain.Transaction{}, ErrNotFound
	}
	return m.records[i], nil
}

func (m *MemoryGateway) UpdateStatus(_ context.Context, id string, status domain.Status, diagnosis *domain.Diagnosis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	i, ok := m.index[id]
	if !ok {
		return ErrNotFound
	}
	now := m.nowFn().UTC()
	m.records[i].Status = status
	m.records[i].UpdatedAt = &now
	if diagnosis != nil {
		d := *diagnosis
		m.records[i].Diagnosis = &d
	}
	return nil
}

func (m *MemoryGateway) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(m.records)), nil
}

// Aggregate evaluates plan in process and decodes the rows into out through
// the same BSON mapping MongoDB results use.
func (m *MemoryGateway) Aggregate(_ context.Context, plan Plan, out any) error {
	m.mu.RLock()
	if m.err != nil {
		m.mu.RUnlock()
		return m.err
	}
	snapshot := append([]domain.Transaction(nil), m.records...)
	m.mu.RUnlock()

	if plan.local == nil {
		return fmt.Errorf("aggregate %s: plan has no evaluator", plan.name)
	}
	return decodeRows(plan.local(snapshot), out)
}

func (m *MemoryGateway) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingErr
}

func (m *MemoryGateway) Close(context.Context) error { return nil }

// Snapshot returns a copy of every stored record.
func (m *MemoryGateway) Snapshot() []domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Transaction(nil), m.records...)
}

func decodeRows(rows any, out any) error {
	raw, err := bson.Marshal(bson.M{"rows": rows})
	if err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	var wrapper struct {
		Rows bson.RawValue `bson:"rows"`
	}
	if err := bson.Unmarshal(raw, &wrapper); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	if err := wrapper.Rows.Unmarshal(out); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}
