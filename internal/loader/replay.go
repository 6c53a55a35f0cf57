package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vanshika/upidiag/backend/internal/domain"
	"github.com/vanshika/upidiag/backend/internal/metrics"
)

// ErrReplayRunning is returned when a replay is started while another is active.
var ErrReplayRunning = errors.New("a replay is already running")

// ErrNothingToReplay is returned when Start is given no records.
var ErrNothingToReplay = errors.New("no records to replay")

// Inserter stores one record at a time.
type Inserter interface {
	InsertOne(ctx context.Context, tx domain.Transaction) error
}

// Replay task states.
const (
	ReplayRunning   = "running"
	ReplayCompleted = "completed"
	ReplayCancelled = "cancelled"
)

// ReplayStatus is a point-in-time view of a replay task.
type ReplayStatus struct {
	ID              string    `json:"id"`
	State           string    `json:"state"`
	Inserted        int       `json:"inserted"`
	Failed          int       `json:"failed"`
	Total           int       `json:"total"`
	SpeedMultiplier float64   `json:"speed_multiplier"`
	StartedAt       time.Time `json:"started_at"`
}

// ReplayTask is the handle of one running replay.
type ReplayTask struct {
	ID     uuid.UUID
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status ReplayStatus
}

// Cancel stops the replay before its next insert.
func (t *ReplayTask) Cancel() { t.cancel() }

// Done is closed when the replay goroutine exits.
func (t *ReplayTask) Done() <-chan struct{} { return t.done }

func (t *ReplayTask) Status() ReplayStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *ReplayTask) update(fn func(*ReplayStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.status)
}

// PaceDelay is the offset from replay start at which a record with timestamp
// ts is inserted when the first record has timestamp first.
func PaceDelay(first, ts time.Time, multiplier float64) time.Duration {
	if multiplier <= 0 {
		multiplier = 1
	}
	gap := ts.Sub(first)
	if gap <= 0 {
		return 0
	}
	return time.Duration(float64(gap) / multiplier)
}

// Replayer re-inserts historical records in timestamp order, compressing the
// gaps between them by a speed multiplier. At most one replay runs at a time.
type Replayer struct {
	store   Inserter
	logger  *slog.Logger
	nowFn   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	current *ReplayTask
}

// NewReplayer constructs a Replayer writing through store.
func NewReplayer(store Inserter, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{
		store:   store,
		logger:  logger.With("component", "replay"),
		nowFn:   time.Now,
		sleepFn: sleepContext,
	}
}

// WithClock overrides the clock and sleep function (used primarily in tests).
func (r *Replayer) WithClock(nowFn func() time.Time, sleepFn func(ctx context.Context, d time.Duration) error) {
	if nowFn != nil {
		r.nowFn = nowFn
	}
	if sleepFn != nil {
		r.sleepFn = sleepFn
	}
}

// Current returns the most recent task, or nil if none was started.
func (r *Replayer) Current() *ReplayTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Start launches a replay of records in the background.
func (r *Replayer) Start(records []domain.Transaction, multiplier float64) (*ReplayTask, error) {
	if len(records) == 0 {
		return nil, ErrNothingToReplay
	}
	if multiplier <= 0 {
		return nil, fmt.Errorf("speed multiplier must be positive, got %v", multiplier)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		select {
		case <-r.current.done:
		default:
			return nil, ErrReplayRunning
		}
	}

	ordered := append([]domain.Transaction(nil), records...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	ctx, cancel := context.WithCancel(context.Background())
	task := &ReplayTask{
		ID:     uuid.New(),
		cancel: cancel,
		done:   make(chan struct{}),
		status: ReplayStatus{
			State:           ReplayRunning,
			Total:           len(ordered),
			SpeedMultiplier: multiplier,
			StartedAt:       r.nowFn().UTC(),
		},
	}
	task.status.ID = task.ID.String()
	r.current = task

	go r.run(ctx, task, ordered, multiplier)
	return task, nil
}

func (r *Replayer) run(ctx context.Context, task *ReplayTask, records []domain.Transaction, multiplier float64) {
	defer close(task.done)
	defer task.cancel()

	logger := r.logger.With("replay_id", task.ID.String())
	logger.Info("replay started", "records", len(records), "speed_multiplier", multiplier)

	start := r.nowFn()
	first := records[0].Timestamp
	for _, tx := range records {
		due := start.Add(PaceDelay(first, tx.Timestamp, multiplier))
		if wait := due.Sub(r.nowFn()); wait > 0 {
			if err := r.sleepFn(ctx, wait); err != nil {
				r.finish(task, logger, ReplayCancelled)
				return
			}
		}
		if ctx.Err() != nil {
			r.finish(task, logger, ReplayCancelled)
			return
		}

		if err := r.store.InsertOne(ctx, tx); err != nil {
			if ctx.Err() != nil {
				r.finish(task, logger, ReplayCancelled)
				return
			}
			metrics.ReplayInserts.WithLabelValues("failed").Inc()
			logger.Warn("replay insert failed", "transaction_id", tx.TransactionID, "error", err)
			task.update(func(s *ReplayStatus) { s.Failed++ })
			continue
		}
		metrics.ReplayInserts.WithLabelValues("inserted").Inc()
		task.update(func(s *ReplayStatus) { s.Inserted++ })
	}
	r.finish(task, logger, ReplayCompleted)
}

func (r *Replayer) finish(task *ReplayTask, logger *slog.Logger, state string) {
	task.update(func(s *ReplayStatus) { s.State = state })
	st := task.Status()
	logger.Info("replay finished", "state", state, "inserted", st.Inserted, "failed", st.Failed)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
