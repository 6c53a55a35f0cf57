package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vanshika/upidiag/backend/internal/domain"
	"github.com/vanshika/upidiag/backend/internal/storage"
)

var fixedNow = time.Date(2024, 4, 2, 15, 0, 0, 0, time.UTC)

func newTestService(seed ...domain.Transaction) (*TransactionService, *storage.MemoryGateway) {
	g := storage.NewMemoryGateway(seed...)
	svc := NewTransactionService(g, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithClock(func() time.Time { return fixedNow })
	return svc, g
}

func record(id string, status domain.Status) domain.Transaction {
	return domain.Transaction{
		TransactionID: id,
		Timestamp:     fixedNow.Add(-time.Hour),
		Amount:        120,
		SenderVPA:     "ravi@okaxis",
		ReceiverVPA:   "shop@ybl",
		SenderBank:    "AXIS",
		ReceiverBank:  "YES",
		Status:        status,
	}
}

func TestStats_SuccessRate(t *testing.T) {
	svc, _ := newTestService(
		record("T1", domain.StatusSuccess),
		record("T2", domain.StatusSuccess),
		record("T3", domain.StatusSuccess),
		record("T4", domain.StatusFailed),
	)
	stats := svc.Stats(context.Background())
	if stats.TotalTransactions != 4 {
		t.Fatalf("expected 4 transactions, got %d", stats.TotalTransactions)
	}
	if stats.SuccessRate != 75 {
		t.Fatalf("expected success rate 75, got %v", stats.SuccessRate)
	}
}

func TestStats_EmptyCollection(t *testing.T) {
	svc, _ := newTestService()
	stats := svc.Stats(context.Background())
	if stats.SuccessRate != 0 || stats.TotalTransactions != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestStats_StorageErrorDegrades(t *testing.T) {
	svc, g := newTestService(record("T1", domain.StatusSuccess))
	g.WithError(errors.New("timeout"))
	if stats := svc.Stats(context.Background()); stats != (domain.Stats{}) {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
	if got := svc.List(context.Background(), ListParams{}); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", got)
	}
}

func TestCreate_NormalizesAndRejectsDuplicates(t *testing.T) {
	svc, g := newTestService()
	in := record("T9", "SUCCESS")
	in.FailureType = domain.FailureTimeout
	in.ErrorCode = "U69"

	out, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != domain.StatusSuccess || out.FailureType != "" || out.ErrorCode != "" {
		t.Fatalf("expected normalized success record, got %+v", out)
	}

	stored, err := g.FindByID(context.Background(), "T9")
	if err != nil {
		t.Fatalf("expected stored record: %v", err)
	}
	if stored.CreatedAt == nil {
		t.Fatalf("expected created_at to be stamped")
	}

	if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreate_Invalid(t *testing.T) {
	svc, _ := newTestService()
	in := record("", domain.StatusFailed)
	if _, err := svc.Create(context.Background(), in); !errors.Is(err, domain.ErrInvalidTransaction) {
		t.Fatalf("expected invalid transaction, got %v", err)
	}
}

func TestGetAndUpdateStatus(t *testing.T) {
	svc, _ := newTestService(record("T1", domain.StatusFailed))
	ctx := context.Background()

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	diag := &domain.Diagnosis{TransactionID: "T1", Diagnosis: "bank down", ConfidenceScore: 0.8}
	if err := svc.UpdateStatus(ctx, "T1", domain.StatusFailed, diag); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := svc.Get(ctx, "T1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Diagnosis == nil || got.Diagnosis.Diagnosis != "bank down" {
		t.Fatalf("expected diagnosis to be attached, got %+v", got.Diagnosis)
	}

	if err := svc.UpdateStatus(ctx, "T1", "settled", nil); !errors.Is(err, domain.ErrInvalidTransaction) {
		t.Fatalf("expected invalid status error, got %v", err)
	}
	if err := svc.UpdateStatus(ctx, "nope", domain.StatusSuccess, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHourly_DefaultWindow(t *testing.T) {
	old := record("OLD", domain.StatusSuccess)
	old.Timestamp = fixedNow.AddDate(0, 0, -10)
	svc, _ := newTestService(record("T1", domain.StatusFailed), old)

	points := svc.Hourly(context.Background(), 0)
	if len(points) != 1 {
		t.Fatalf("expected 1 hourly point, got %d", len(points))
	}
	if points[0].Hour != "14:00" || points[0].Date != "2024-04-02" || points[0].Failed != 1 {
		t.Fatalf("unexpected point %+v", points[0])
	}
}

func TestHealth(t *testing.T) {
	svc, g := newTestService(record("T1", domain.StatusSuccess))
	report := svc.Health(context.Background())
	if report.Status != "healthy" || !report.Connected || report.TransactionsCount != 1 || report.Mode != "memory" {
		t.Fatalf("unexpected report %+v", report)
	}

	g.WithPingError(errors.New("no primary"))
	report = svc.Health(context.Background())
	if report.Status != "unhealthy" || report.Connected || report.Error == "" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestFailureTypes(t *testing.T) {
	a := record("A", domain.StatusFailed)
	a.FailureType = domain.FailureTimeout
	b := record("B", domain.StatusFailed)
	b.FailureType = domain.FailureTimeout
	c := record("C", domain.StatusFailed)
	c.FailureType = domain.FailureInvalidVPA
	svc, _ := newTestService(a, b, c, record("D", domain.StatusSuccess))

	rows := svc.FailureTypes(context.Background())
	if len(rows) != 2 || rows[0].FailureType != domain.FailureTimeout || rows[0].Count != 2 {
		t.Fatalf("unexpected distribution %+v", rows)
	}
}
