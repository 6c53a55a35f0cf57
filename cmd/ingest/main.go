package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vanshika/upidiag/backend/internal/config"
	"github.com/vanshika/upidiag/backend/internal/domain"
	"github.com/vanshika/upidiag/backend/internal/generator"
	"github.com/vanshika/upidiag/backend/internal/loader"
	"github.com/vanshika/upidiag/backend/internal/logging"
	"github.com/vanshika/upidiag/backend/internal/storage"
)

var errUnknownSource = errors.New("unknown source")

func main() {
	var (
		source   = flag.String("source", "huggingface", "Row source: huggingface, csv or json")
		path     = flag.String("path", "", "Path to the CSV export or JSON transaction file")
		maxRows  = flag.Int("max-rows", 0, "Stop fetching after this many rows (huggingface only, 0 = all)")
		workers  = flag.Int("workers", 0, "Concurrent insert workers (defaults to DATASET_WORKERS)")
		cacheDir = flag.String("cache-dir", "", "Also write processed records as transactions.json into this directory")
		replay   = flag.Bool("replay", false, "Replay the records in timestamp order instead of bulk inserting")
		speed    = flag.Float64("speed", 0, "Replay speed multiplier (defaults to REPLAY_SPEED_MULTIPLIER)")
	)
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging).With("component", "ingest")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	records, err := loadRecords(ctx, logger, cfg.Dataset, *source, *path, *maxRows)
	if err != nil {
		logger.Error("loading records failed", "error", err, "source", *source)
		os.Exit(1)
	}
	if len(records) == 0 {
		logger.Error("source produced no records", "source", *source)
		os.Exit(1)
	}

	if *cacheDir != "" {
		written, err := generator.WriteDataset(records, *cacheDir)
		if err != nil {
			logger.Error("writing cache failed", "error", err)
			os.Exit(1)
		}
		logger.Info("wrote dataset cache", "path", written)
	}

	store, err := storage.NewMongoGateway(ctx, storage.Options{
		URI:                    cfg.Mongo.URI,
		Database:               cfg.Mongo.Database,
		Collection:             cfg.Mongo.Collection,
		ServerSelectionTimeout: cfg.Mongo.ServerSelectionTimeout,
		OperationTimeout:       cfg.Mongo.OperationTimeout,
		MaxPoolSize:            cfg.Mongo.MaxPoolSize,
		MinPoolSize:            cfg.Mongo.MinPoolSize,
	})
	if err != nil {
		logger.Error("failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn("closing store failed", "error", err)
		}
	}()
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warn("creating indexes failed", "error", err)
	}

	start := time.Now()
	if *replay {
		multiplier := *speed
		if multiplier <= 0 {
			multiplier = cfg.Dataset.ReplayMultiplier
		}
		if err := runReplay(ctx, logger, store, records, multiplier); err != nil {
			logger.Error("replay failed", "error", err)
			os.Exit(1)
		}
		logger.Info("replay finished", "duration", time.Since(start).String())
		return
	}

	w := *workers
	if w <= 0 {
		w = cfg.Dataset.Workers
	}
	res, err := loader.NewBatchIngestor(store, cfg.Dataset.BatchSize, w).Ingest(ctx, records)
	if err != nil {
		logger.Error("ingestion finished with errors", "error", err, "inserted", res.Inserted, "failed", res.Failed)
		os.Exit(1)
	}
	logger.Info("ingestion complete",
		"duration", time.Since(start).String(),
		"inserted", res.Inserted,
		"skipped", res.Skipped,
	)
}

func loadRecords(ctx context.Context, logger *slog.Logger, cfg config.DatasetConfig, source, path string, maxRows int) ([]domain.Transaction, error) {
	var src loader.Source
	switch source {
	case "json":
		if path == "" {
			path = filepath.Join("data", generator.DatasetFile)
		}
		return loader.ReadJSONFile(path)
	case "csv":
		if path == "" {
			path = cfg.CSVPath
		}
		src = loader.CSVSource{Path: path}
	case "huggingface":
		hf := loader.NewHuggingFaceSource(cfg.RowsBaseURL, cfg.Name, cfg.SourceHTTPTimeout)
		hf.MaxRows = maxRows
		src = hf
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownSource, source)
	}

	l := loader.New(src, loader.NewMapper(0, nil), nil, logger)
	if _, err := l.Load(ctx); err != nil {
		return nil, err
	}
	return l.Records(), nil
}

func runReplay(ctx context.Context, logger *slog.Logger, store storage.Gateway, records []domain.Transaction, multiplier float64) error {
	task, err := loader.NewReplayer(store, logger).Start(records, multiplier)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-task.Done():
			st := task.Status()
			logger.Info("replay stopped", "state", st.State, "inserted", st.Inserted, "total", st.Total)
			return nil
		case <-ctx.Done():
			task.Cancel()
			<-task.Done()
			return ctx.Err()
		case <-ticker.C:
			st := task.Status()
			logger.Info("replay progress", "inserted", st.Inserted, "total", st.Total)
		}
	}
}
