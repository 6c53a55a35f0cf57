package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vanshika/upidiag/backend/internal/analytics"
	"github.com/vanshika/upidiag/backend/internal/config"
	"github.com/vanshika/upidiag/backend/internal/diagnosis"
	"github.com/vanshika/upidiag/backend/internal/domain"
	"github.com/vanshika/upidiag/backend/internal/generator"
	"github.com/vanshika/upidiag/backend/internal/loader"
	"github.com/vanshika/upidiag/backend/internal/logging"
	"github.com/vanshika/upidiag/backend/internal/server"
	"github.com/vanshika/upidiag/backend/internal/service"
	"github.com/vanshika/upidiag/backend/internal/storage"
	"github.com/vanshika/upidiag/backend/internal/voice"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := buildStore(ctx, logger, cfg)
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warn("closing store failed", "error", err)
		}
	}()

	if cfg.Dataset.SeedIfEmpty || store.Mode() == "memory" {
		seedIfEmpty(ctx, logger, store, cfg.Dataset)
	}

	voiceSvc, err := buildVoice(logger, cfg.Voice)
	if err != nil {
		logger.Error("failed to initialise voice service", "error", err)
		os.Exit(1)
	}
	go cleanupAudioLoop(ctx, logger, voiceSvc, cfg.Voice.AudioMaxAge)

	ingestor := loader.NewBatchIngestor(store, cfg.Dataset.BatchSize, cfg.Dataset.Workers)
	dataset := loader.New(buildSource(cfg.Dataset), loader.NewMapper(0, nil), ingestor, logger)

	apiHandlers := server.NewAPIHandlers(logger, server.APIDependencies{
		Transactions:   service.NewTransactionService(store, logger),
		Analytics:      analytics.NewService(store, logger),
		Diagnoser:      diagnosis.NewService(buildCompleter(logger, cfg.LLM), logger),
		Dataset:        dataset,
		Replayer:       loader.NewReplayer(store, logger),
		Voice:          voiceSvc,
		ReplaySpeed:    cfg.Dataset.ReplayMultiplier,
		MaxUploadBytes: cfg.Voice.MaxUploadBytes,
	})

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           server.StorageHealthService{Store: store},
		API:              apiHandlers,
		AllowedOrigins:   parseAllowedOrigins(cfg.HTTP.AllowedOriginsCSV),
		AllowCredentials: true,
		MetricsEnabled:   cfg.HTTP.MetricsEnabled,
		AudioDir:         voiceSvc.AudioDir(),
	})

	srv := server.New(logger, cfg.HTTP, router)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped unexpectedly", "error", err)
		os.Exit(1)
	}
}

// buildStore connects to MongoDB and falls back to an in-memory store seeded
// from the local cache when the database is unavailable.
func buildStore(ctx context.Context, logger *slog.Logger, cfg config.Config) storage.Gateway {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.ServerSelectionTimeout+5*time.Second)
	defer cancel()

	gw, err := storage.NewMongoGateway(connectCtx, storage.Options{
		URI:                    cfg.Mongo.URI,
		Database:               cfg.Mongo.Database,
		Collection:             cfg.Mongo.Collection,
		ServerSelectionTimeout: cfg.Mongo.ServerSelectionTimeout,
		OperationTimeout:       cfg.Mongo.OperationTimeout,
		MaxPoolSize:            cfg.Mongo.MaxPoolSize,
		MinPoolSize:            cfg.Mongo.MinPoolSize,
	})
	if err == nil {
		if err := gw.EnsureIndexes(connectCtx); err != nil {
			logger.Warn("creating indexes failed", "error", err)
		}
		logger.Info("connected to mongodb", "database", cfg.Mongo.Database, "collection", cfg.Mongo.Collection)
		return gw
	}

	logger.Warn("mongodb unavailable, using in-memory store", "error", err)
	var seed []domain.Transaction
	if cfg.Dataset.CachePath != "" {
		cached, cacheErr := loader.ReadJSONFile(cfg.Dataset.CachePath)
		if cacheErr != nil {
			logger.Warn("reading dataset cache failed", "path", cfg.Dataset.CachePath, "error", cacheErr)
		} else {
			seed = cached
			logger.Info("loaded dataset cache", "path", cfg.Dataset.CachePath, "count", len(seed))
		}
	}
	return storage.NewMemoryGateway(seed...)
}

func seedIfEmpty(ctx context.Context, logger *slog.Logger, store storage.Gateway, cfg config.DatasetConfig) {
	count, err := store.Count(ctx)
	if err != nil {
		logger.Warn("counting transactions failed, skipping seed", "error", err)
		return
	}
	if count > 0 {
		return
	}

	genCfg := generator.DefaultConfig()
	if cfg.SyntheticCount > 0 {
		genCfg.NumTransactions = cfg.SyntheticCount
	}
	genCfg.Seed = time.Now().UnixNano()
	txs, err := generator.New(genCfg).Generate(ctx)
	if err != nil {
		logger.Warn("generating seed data failed", "error", err)
		return
	}

	res, err := loader.NewBatchIngestor(store, cfg.BatchSize, cfg.Workers).Ingest(ctx, txs)
	if err != nil {
		logger.Warn("seeding store partially failed", "inserted", res.Inserted, "error", err)
		return
	}
	logger.Info("seeded empty store with synthetic transactions", "inserted", res.Inserted)
}

func buildSource(cfg config.DatasetConfig) loader.Source {
	if cfg.CSVPath != "" {
		return loader.CSVSource{Path: cfg.CSVPath}
	}
	return loader.NewHuggingFaceSource(cfg.RowsBaseURL, cfg.Name, cfg.SourceHTTPTimeout)
}

func buildCompleter(logger *slog.Logger, cfg config.LLMConfig) diagnosis.Completer {
	completer, err := diagnosis.NewGroqCompleter(diagnosis.GroqOptions{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		logger.Warn("language model disabled, diagnoses use the fallback", "error", err)
		return nil
	}
	return completer
}

func buildVoice(logger *slog.Logger, cfg config.VoiceConfig) (*voice.Service, error) {
	var (
		transcriber voice.Transcriber
		synthesizer voice.Synthesizer
	)

	if t, err := voice.NewAssemblyAITranscriber(voice.AssemblyAIOptions{
		APIKey:       cfg.AssemblyAIKey,
		BaseURL:      cfg.AssemblyAIBaseURL,
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.PollAttempts,
		Timeout:      cfg.RequestTimeout,
	}); err == nil {
		transcriber = t
	} else {
		logger.Warn("speech-to-text disabled", "error", err)
	}

	if s, err := voice.NewGoogleSynthesizer(voice.GoogleOptions{
		APIKey:  cfg.GoogleAPIKey,
		BaseURL: cfg.TTSBaseURL,
		Timeout: cfg.RequestTimeout,
	}); err == nil {
		synthesizer = s
	} else {
		logger.Warn("text-to-speech disabled", "error", err)
	}

	return voice.NewService(transcriber, synthesizer, cfg.AudioDir, logger)
}

func cleanupAudioLoop(ctx context.Context, logger *slog.Logger, svc *voice.Service, maxAge time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.Cleanup(maxAge); err != nil {
				logger.Warn("scheduled audio cleanup failed", "error", err)
			}
		}
	}
}

func parseAllowedOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	var origins []string
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}
