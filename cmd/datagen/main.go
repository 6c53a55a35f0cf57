package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vanshika/upidiag/backend/internal/generator"
)

func main() {
	cfg := generator.DefaultConfig()
	var (
		transactions = flag.Int("transactions", cfg.NumTransactions, "number of transactions to generate")
		failureRate  = flag.Float64("failure-rate", cfg.FailureRate, "fraction of transactions that fail")
		window       = flag.Duration("window", cfg.Window, "how far back timestamps may reach")
		minAmount    = flag.Float64("min-amount", cfg.MinAmount, "smallest transaction amount")
		maxAmount    = flag.Float64("max-amount", cfg.MaxAmount, "largest transaction amount")
		seed         = flag.Int64("seed", cfg.Seed, "random seed for deterministic generation")
		outputDir    = flag.String("output-dir", "data", "directory to write transactions.json")
		writeStdout  = flag.Bool("stdout", false, "write the dataset to stdout instead of a file")
	)
	flag.Parse()

	if *minAmount > *maxAmount {
		fmt.Fprintf(os.Stderr, "min-amount %.2f exceeds max-amount %.2f\n", *minAmount, *maxAmount)
		os.Exit(1)
	}

	genCfg := generator.Config{
		NumTransactions: *transactions,
		FailureRate:     clampProbability(*failureRate),
		Window:          *window,
		MinAmount:       *minAmount,
		MaxAmount:       *maxAmount,
		Seed:            *seed,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dataset, err := generator.New(genCfg).Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)
		os.Exit(1)
	}

	if *writeStdout {
		if err := json.NewEncoder(os.Stdout).Encode(dataset); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write dataset to stdout: %v\n", err)
			os.Exit(1)
		}
		return
	}

	path, err := generator.WriteDataset(dataset, *outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to write dataset: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "Generated %d transactions into %s\n", len(dataset), path)
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
