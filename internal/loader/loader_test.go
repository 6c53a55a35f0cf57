package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshika/upidiag/backend/internal/domain"
	"github.com/vanshika/upidiag/backend/internal/storage"
)

var mapperNow = time.Date(2024, 8, 15, 18, 0, 0, 0, time.UTC)

func newTestMapper() *Mapper {
	return NewMapper(7, func() time.Time { return mapperNow })
}

func TestMapper_FailedRow(t *testing.T) {
	row := Row{
		"Date":        "2024-03-05",
		"Time":        "14:25:10",
		"Amount":      "₹1,250.456",
		"Issue Type":  "Insufficient Balance",
		"Description": "Account had low balance",
		"Resolution":  "Customer informed",
		"Sender":      "Priya Sharma!",
		"Receiver":    "",
	}

	tx, err := newTestMapper().Map(42, row)
	require.NoError(t, err)

	assert.Equal(t, "UPI20240815000042", tx.TransactionID)
	assert.Equal(t, time.Date(2024, 3, 5, 14, 25, 10, 0, time.UTC), tx.Timestamp)
	assert.Equal(t, 1250.46, tx.Amount)
	assert.Equal(t, domain.StatusFailed, tx.Status)
	assert.Equal(t, domain.FailureInsufficientFunds, tx.FailureType)
	assert.Equal(t, "Account had low balance", tx.FailureReason)
	assert.Contains(t, []string{"U30", "E001", "BAL_LOW"}, tx.ErrorCode)
	assert.True(t, strings.HasPrefix(tx.SenderVPA, "priyasharm@"), tx.SenderVPA)
	assert.True(t, strings.HasPrefix(tx.ReceiverVPA, "user"), tx.ReceiverVPA)
	assert.GreaterOrEqual(t, tx.RetryCount, 0)
	assert.LessOrEqual(t, tx.RetryCount, 3)
	assert.Equal(t, DatasetSource, tx.Metadata["dataset_source"])
	assert.Equal(t, "Customer informed", tx.Metadata["original_resolution"])
}

func TestMapper_SuccessRowDropsFailureFields(t *testing.T) {
	tx, err := newTestMapper().Map(1, Row{
		"Date":       "05/03/2024",
		"Time":       "9",
		"Amount":     499.0,
		"Issue Type": "Server downtime",
		"Resolution": "Resolved after retry",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, tx.Status)
	assert.Empty(t, tx.FailureType)
	assert.Empty(t, tx.ErrorCode)
	assert.Zero(t, tx.RetryCount)
	assert.Equal(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), tx.Timestamp)
	assert.Equal(t, 499.0, tx.Amount)
}

func TestMapper_Fallbacks(t *testing.T) {
	tx, err := newTestMapper().Map(3, Row{"Date": "not a date", "Time": "late", "Amount": "n/a"})
	require.NoError(t, err)
	assert.Equal(t, mapperNow.Year(), tx.Timestamp.Year())
	assert.Equal(t, mapperNow.YearDay(), tx.Timestamp.YearDay())
	assert.GreaterOrEqual(t, tx.Amount, 100.0)
	assert.LessOrEqual(t, tx.Amount, 50000.0)
	assert.Equal(t, domain.StatusFailed, tx.Status)
	assert.Equal(t, domain.FailureNetworkIssue, tx.FailureType)
}

func TestMapper_Deterministic(t *testing.T) {
	row := Row{"Amount": "x", "Sender": "", "Receiver": ""}
	a, err := newTestMapper().Map(0, row)
	require.NoError(t, err)
	b, err := newTestMapper().Map(0, row)
	require.NoError(t, err)
	assert.Equal(t, a.Amount, b.Amount)
	assert.Equal(t, a.SenderVPA, b.SenderVPA)
	assert.Equal(t, a.Timestamp, b.Timestamp)
}

func TestMapIssueType(t *testing.T) {
	cases := map[string]domain.FailureType{
		"Insufficient funds":    domain.FailureInsufficientFunds,
		"Wrong VPA":             domain.FailureInvalidVPA,
		"Connectivity dropped":  domain.FailureNetworkIssue,
		"Bank maintenance":      domain.FailureBankServerError,
		"Maximum amount":        domain.FailureDailyLimitExceeded,
		"OTP not received":      domain.FailureAuthenticationFailed,
		"something else":        domain.FailureNetworkIssue,
		"":                      domain.FailureNetworkIssue,
		"Limit exceeded on PIN": domain.FailureDailyLimitExceeded,
	}
	for issue, want := range cases {
		assert.Equal(t, want, MapIssueType(issue), issue)
	}
}

func TestStatusFromResolution(t *testing.T) {
	assert.Equal(t, domain.StatusSuccess, StatusFromResolution("Issue fixed"))
	assert.Equal(t, domain.StatusPending, StatusFromResolution("In Progress"))
	assert.Equal(t, domain.StatusFailed, StatusFromResolution("Refund initiated"))
}

func TestCSVSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upi.csv")
	content := "Date,Time,Amount,Issue Type,Description,Resolution\n" +
		"2024-01-02,10:00,500,Network timeout,Timed out,Pending\n" +
		"2024-01-03,11:00,700,Wrong PIN,PIN mismatch\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rows, err := CSVSource{Path: path}.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Pending", rows[0]["Resolution"])
	_, ok := rows[1]["Resolution"]
	assert.False(t, ok)
}

func TestHuggingFaceSource_Pages(t *testing.T) {
	const total = 230
	var (
		mu      sync.Mutex
		offsets []int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rows" || r.URL.Query().Get("split") != "train" || r.URL.Query().Get("dataset") != "acme/upi" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		length, _ := strconv.Atoi(r.URL.Query().Get("length"))
		mu.Lock()
		offsets = append(offsets, offset)
		mu.Unlock()

		type item struct {
			RowIdx int            `json:"row_idx"`
			Row    map[string]any `json:"row"`
		}
		var items []item
		for i := offset; i < offset+length && i < total; i++ {
			items = append(items, item{RowIdx: i, Row: map[string]any{"Amount": float64(i)}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"rows": items, "num_rows_total": total})
	}))
	defer srv.Close()

	src := NewHuggingFaceSource(srv.URL, "acme/upi", time.Second)
	rows, err := src.Rows(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, total)
	assert.Equal(t, []int{0, 100, 200}, offsets)
	assert.Equal(t, 229.0, rows[229]["Amount"])
}

func TestHuggingFaceSource_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHuggingFaceSource(srv.URL, "acme/upi", time.Second).Rows(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

type staticSource struct {
	rows []Row
	err  error
}

func (s staticSource) Rows(context.Context) ([]Row, error) { return s.rows, s.err }
func (s staticSource) Name() string                        { return "static" }

func TestLoader_LoadIngestStatistics(t *testing.T) {
	rows := []Row{
		{"Date": "2024-01-01", "Time": "10:00", "Amount": 100.0, "Issue Type": "Insufficient balance", "Resolution": "Failed"},
		{"Date": "2024-01-02", "Time": "11:00", "Amount": 300.0, "Issue Type": "Network", "Resolution": "Resolved"},
		{"Date": "2024-01-03", "Time": "12:00", "Amount": 200.0, "Issue Type": "Network", "Resolution": "Pending"},
	}
	g := storage.NewMemoryGateway()
	l := New(staticSource{rows: rows}, newTestMapper(), NewBatchIngestor(g, 2, 2), quietLogger())

	_, err := l.Statistics()
	assert.True(t, errors.Is(err, ErrNotLoaded))

	n, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := l.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.BulkResult{Inserted: 3}, res)

	res, err = l.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.BulkResult{Skipped: 3}, res)

	stats, err := l.Statistics()
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalTransactions)
	assert.EqualValues(t, 1, stats.FailedTransactions)
	assert.EqualValues(t, 1, stats.PendingTransactions)
	assert.InDelta(t, 100.0/3, stats.SuccessRate, 1e-9)
	assert.Equal(t, 100.0, stats.AmountStatistics.MinAmount)
	assert.Equal(t, 300.0, stats.AmountStatistics.MaxAmount)
	assert.EqualValues(t, 1, stats.FailureTypeDistribution[domain.FailureInsufficientFunds])
	require.NotNil(t, stats.DateRange.Earliest)
	assert.Equal(t, 1, stats.DateRange.Earliest.Day())
	assert.Equal(t, 3, stats.DateRange.Latest.Day())
}

func TestLoader_ConcurrentLoads(t *testing.T) {
	rows := make([]Row, 50)
	for i := range rows {
		rows[i] = Row{"Amount": "n/a", "Sender": "", "Receiver": "", "Issue Type": "timeout", "Resolution": "Failed"}
	}
	l := New(staticSource{rows: rows}, newTestMapper(), nil, quietLogger())

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Load(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, l.Records(), 50)
}

func TestMapper_ConcurrentMap(t *testing.T) {
	m := newTestMapper()
	row := Row{"Amount": "", "Sender": "", "Receiver": "", "Resolution": "Failed"}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tx, err := m.Map(i, row)
				assert.NoError(t, err)
				assert.GreaterOrEqual(t, tx.Amount, 100.0)
			}
		}()
	}
	wg.Wait()
}

func TestLoader_SourceError(t *testing.T) {
	l := New(staticSource{err: errors.New("offline")}, newTestMapper(), NewBatchIngestor(storage.NewMemoryGateway(), 0, 0), quietLogger())
	_, err := l.Load(context.Background())
	assert.Error(t, err)
	assert.False(t, l.Loaded())
}

type flakyInserter struct {
	mu    sync.Mutex
	calls int
}

func (f *flakyInserter) BulkInsert(_ context.Context, txs []domain.Transaction) (storage.BulkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if txs[0].TransactionID == "T0" {
		return storage.BulkResult{Failed: len(txs)}, fmt.Errorf("batch starting %s failed", txs[0].TransactionID)
	}
	return storage.BulkResult{Inserted: len(txs) - 1, Skipped: 1}, nil
}

func TestBatchIngestor_AggregatesResultsAndErrors(t *testing.T) {
	var txs []domain.Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, domain.Transaction{TransactionID: fmt.Sprintf("T%d", i)})
	}
	store := &flakyInserter{}
	res, err := NewBatchIngestor(store, 4, 3).Ingest(context.Background(), txs)

	var taskErr *TaskError
	require.True(t, errors.As(err, &taskErr))
	assert.Len(t, taskErr.Errors, 1)
	assert.Equal(t, 3, store.calls)
	// batches of 4, 4, 2: the first fails, the others skip one record each
	assert.Equal(t, storage.BulkResult{Inserted: 4, Skipped: 2, Failed: 4}, res)
}

func TestReadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.json")
	payload := `[{"transaction_id":"TXN000001","status":"SUCCESS","failure_type":"timeout","amount":10,"sender_vpa":"a@b","receiver_vpa":"c@d","timestamp":"2024-01-01T00:00:00Z"}]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	txs, err := ReadJSONFile(path)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.StatusSuccess, txs[0].Status)
	assert.Empty(t, txs[0].FailureType)
}
