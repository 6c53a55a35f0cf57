package loader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type recordingInserter struct {
	mu    sync.Mutex
	clock *fakeClock
	ids   []string
	at    []time.Time
	err   error
}

func (r *recordingInserter) InsertOne(_ context.Context, tx domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ids = append(r.ids, tx.TransactionID)
	r.at = append(r.at, r.clock.Now())
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func replayRecords(base time.Time, offsets ...time.Duration) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(offsets))
	for i, off := range offsets {
		out = append(out, domain.Transaction{
			TransactionID: string(rune('A' + i)),
			Timestamp:     base.Add(off),
			Status:        domain.StatusSuccess,
		})
	}
	return out
}

func TestReplay_CompressesGaps(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	sink := &recordingInserter{clock: clock}
	r := NewReplayer(sink, quietLogger())
	r.WithClock(clock.Now, clock.Sleep)

	base := time.Date(2023, 7, 1, 10, 0, 0, 0, time.UTC)
	// out of order on purpose
	records := replayRecords(base, 30*time.Second, 0, 10*time.Second)

	task, err := r.Start(records, 10)
	require.NoError(t, err)
	<-task.Done()

	require.Equal(t, []string{"B", "C", "A"}, sink.ids)
	require.Len(t, sink.at, 3)
	assert.Equal(t, time.Second, sink.at[1].Sub(sink.at[0]))
	assert.Equal(t, 2*time.Second, sink.at[2].Sub(sink.at[1]))

	st := task.Status()
	assert.Equal(t, ReplayCompleted, st.State)
	assert.Equal(t, 3, st.Inserted)
	assert.Equal(t, 3, st.Total)
}

func TestReplay_RejectsConcurrentRun(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	sink := &recordingInserter{clock: clock}
	r := NewReplayer(sink, quietLogger())
	blocking := func(ctx context.Context, _ time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	}
	r.WithClock(clock.Now, blocking)

	records := replayRecords(time.Now(), 0, time.Hour)
	task, err := r.Start(records, 1)
	require.NoError(t, err)

	_, err = r.Start(records, 1)
	assert.True(t, errors.Is(err, ErrReplayRunning))

	task.Cancel()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not stop after cancel")
	}
	assert.Equal(t, ReplayCancelled, task.Status().State)
	assert.LessOrEqual(t, task.Status().Inserted, 1)

	r.WithClock(nil, clock.Sleep)
	next, err := r.Start(records, 1000)
	require.NoError(t, err)
	<-next.Done()
	assert.Equal(t, ReplayCompleted, next.Status().State)
	assert.Same(t, next, r.Current())
}

func TestReplay_CountsFailedInserts(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	sink := &recordingInserter{clock: clock, err: errors.New("duplicate")}
	r := NewReplayer(sink, quietLogger())
	r.WithClock(clock.Now, clock.Sleep)

	task, err := r.Start(replayRecords(time.Now(), 0, time.Second), 100)
	require.NoError(t, err)
	<-task.Done()
	assert.Equal(t, 2, task.Status().Failed)
	assert.Equal(t, ReplayCompleted, task.Status().State)
}

func TestReplay_RejectsBadInput(t *testing.T) {
	r := NewReplayer(&recordingInserter{clock: &fakeClock{}}, quietLogger())
	_, err := r.Start(nil, 10)
	assert.True(t, errors.Is(err, ErrNothingToReplay))
	_, err = r.Start(replayRecords(time.Now(), 0), 0)
	assert.Error(t, err)
}

func TestPaceDelay(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Duration(0), PaceDelay(base, base, 10))
	assert.Equal(t, 3*time.Second, PaceDelay(base, base.Add(30*time.Second), 10))
	assert.Equal(t, time.Duration(0), PaceDelay(base, base.Add(-time.Second), 10))
}
