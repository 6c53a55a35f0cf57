package generator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/vanshika/upidiag/backend/internal/domain"
)

type scenario struct {
	failureType domain.FailureType
	reason      string
	errorCode   string
}

var scenarios = []scenario{
	{domain.FailureInsufficientFunds, "Insufficient balance in account", "E001"},
	{domain.FailureInvalidVPA, "Invalid VPA provided", "E002"},
	{domain.FailureNetworkIssue, "Network timeout occurred", "E003"},
	{domain.FailureBankServerError, "Bank server temporarily unavailable", "E004"},
	{domain.FailureDailyLimitExceeded, "Daily transaction limit exceeded", "E005"},
	{domain.FailureAuthenticationFailed, "UPI PIN verification failed", "E008"},
}

var (
	banks   = []string{"HDFC", "ICICI", "SBI", "AXIS", "KOTAK", "PNB", "BOB", "CANARA"}
	handles = []string{"paytm", "phonepe", "gpay", "ybl", "okaxis", "okhdfcbank", "oksbi", "ibl"}
)

// Generator produces synthetic UPI transactions.
type Generator struct {
	cfg   Config
	rand  *rand.Rand
	nowFn func() time.Time
}

// New returns a configured Generator instance.
func New(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.NumTransactions <= 0 {
		cfg.NumTransactions = def.NumTransactions
	}
	if cfg.FailureRate <= 0 || cfg.FailureRate > 1 {
		cfg.FailureRate = def.FailureRate
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinAmount <= 0 {
		cfg.MinAmount = def.MinAmount
	}
	if cfg.MaxAmount <= cfg.MinAmount {
		cfg.MaxAmount = def.MaxAmount
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return &Generator{
		cfg:   cfg,
		rand:  rand.New(rand.NewSource(cfg.Seed)),
		nowFn: time.Now,
	}
}

// WithClock overrides the reference time records are generated back from.
func (g *Generator) WithClock(nowFn func() time.Time) *Generator {
	if nowFn != nil {
		g.nowFn = nowFn
	}
	return g
}

// Generate synthesises transactions. It respects context cancellation.
func (g *Generator) Generate(ctx context.Context) ([]domain.Transaction, error) {
	now := g.nowFn().UTC()
	txs := make([]domain.Transaction, g.cfg.NumTransactions)

	for i := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		offset := time.Duration(g.rand.Int63n(int64(g.cfg.Window)))
		tx := domain.Transaction{
			TransactionID: fmt.Sprintf("TXN%06d", i+1),
			Timestamp:     now.Add(-offset).Truncate(time.Second),
			Amount:        g.randomAmount(),
			SenderVPA:     fmt.Sprintf("user%04d@%s", g.rand.Intn(10000), g.pick(handles)),
			ReceiverVPA:   fmt.Sprintf("merchant%03d@%s", g.rand.Intn(1000), g.pick(handles)),
			SenderBank:    g.pick(banks),
			ReceiverBank:  g.pick(banks),
			Status:        domain.StatusSuccess,
			Metadata: map[string]any{
				"device":      "mobile",
				"app_version": "1.2.3",
			},
		}

		if g.rand.Float64() < g.cfg.FailureRate {
			sc := scenarios[g.rand.Intn(len(scenarios))]
			tx.Status = domain.StatusFailed
			tx.FailureType = sc.failureType
			tx.FailureReason = sc.reason
			tx.ErrorCode = sc.errorCode
			tx.RetryCount = g.rand.Intn(4)
		}

		txs[i] = tx
	}

	return txs, nil
}

func (g *Generator) randomAmount() float64 {
	v := g.cfg.MinAmount + g.rand.Float64()*(g.cfg.MaxAmount-g.cfg.MinAmount)
	return math.Round(v*100) / 100
}

func (g *Generator) pick(options []string) string {
	return options[g.rand.Intn(len(options))]
}
