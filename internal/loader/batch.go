package loader

import (
	"context"
	"errors"
	"sync"

	"github.com/vanshika/upidiag/backend/internal/domain"
	"github.com/vanshika/upidiag/backend/internal/metrics"
	"github.com/vanshika/upidiag/backend/internal/storage"
)

// TaskError accumulates multiple errors produced during bulk ingestion.
type TaskError struct {
	Errors []error
}

func (e *TaskError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := "multiple errors:"
	for _, err := range e.Errors {
		msg += " " + err.Error() + ";"
	}
	return msg
}

func (e *TaskError) append(err error) {
	if err == nil {
		return
	}
	e.Errors = append(e.Errors, err)
}

func (e *TaskError) asError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// BulkInserter is the storage capability batch ingestion needs.
type BulkInserter interface {
	BulkInsert(ctx context.Context, txs []domain.Transaction) (storage.BulkResult, error)
}

const (
	defaultBatchSize = 1000
	defaultWorkers   = 4
)

// BatchIngestor splits records into batches and writes them from a worker pool.
type BatchIngestor struct {
	store     BulkInserter
	batchSize int
	workers   int
}

// NewBatchIngestor creates a BatchIngestor with the provided batch size and concurrency.
func NewBatchIngestor(store BulkInserter, batchSize, workers int) *BatchIngestor {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &BatchIngestor{store: store, batchSize: batchSize, workers: workers}
}

// Ingest writes every record and sums the per-batch results. Errors from
// individual batches are collected into a TaskError; the remaining batches
// still run.
func (bi *BatchIngestor) Ingest(ctx context.Context, txs []domain.Transaction) (storage.BulkResult, error) {
	var batches [][]domain.Transaction
	for start := 0; start < len(txs); start += bi.batchSize {
		end := start + bi.batchSize
		if end > len(txs) {
			end = len(txs)
		}
		batches = append(batches, txs[start:end])
	}

	var (
		mu    sync.Mutex
		total storage.BulkResult
	)
	err := bi.run(ctx, len(batches), func(idx int) error {
		res, err := bi.store.BulkInsert(ctx, batches[idx])
		metrics.ObserveBulk(res.Inserted, res.Skipped, res.Failed)
		mu.Lock()
		total.Add(res)
		mu.Unlock()
		return err
	})
	return total, err
}

func (bi *BatchIngestor) run(ctx context.Context, total int, workerFn func(idx int) error) error {
	if total == 0 {
		return nil
	}
	indexCh := make(chan int)
	errCh := make(chan error, total)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range indexCh {
			if err := workerFn(idx); err != nil {
				select {
				case errCh <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}

	for i := 0; i < bi.workers; i++ {
		wg.Add(1)
		go worker()
	}

Loop:
	for i := 0; i < total; i++ {
		select {
		case indexCh <- i:
		case <-ctx.Done():
			break Loop
		}
	}
	close(indexCh)
	wg.Wait()
	close(errCh)

	if err := ctx.Err(); err != nil {
		return err
	}

	var taskErr TaskError
	for err := range errCh {
		if err == nil {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		taskErr.append(err)
	}
	return taskErr.asError()
}
