package generator

import "time"

// Config drives the synthetic transaction generator.
type Config struct {
	NumTransactions int
	FailureRate     float64
	Window          time.Duration
	MinAmount       float64
	MaxAmount       float64
	Seed            int64
}

// DefaultConfig returns the baseline used to seed an empty store.
func DefaultConfig() Config {
	return Config{
		NumTransactions: 1000,
		FailureRate:     0.3,
		Window:          30 * 24 * time.Hour,
		MinAmount:       10,
		MaxAmount:       50000,
		Seed:            42,
	}
}
