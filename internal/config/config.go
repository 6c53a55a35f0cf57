package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP    HTTPConfig
	Mongo   MongoConfig
	Logging LoggingConfig
	LLM     LLMConfig
	Voice   VoiceConfig
	Dataset DatasetConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MetricsEnabled    bool
	AllowedOriginsCSV string
}

// MongoConfig describes connectivity to the transaction store.
type MongoConfig struct {
	URI                    string
	Database               string
	Collection             string
	ServerSelectionTimeout time.Duration
	OperationTimeout       time.Duration
	MaxPoolSize            uint64
	MinPoolSize            uint64
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

// LLMConfig configures the text-generation API used for diagnoses.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// VoiceConfig configures transcription and speech synthesis.
type VoiceConfig struct {
	AssemblyAIKey     string
	AssemblyAIBaseURL string
	GoogleAPIKey      string
	TTSBaseURL        string
	AudioDir          string
	PollInterval      time.Duration
	PollAttempts      int
	RequestTimeout    time.Duration
	AudioMaxAge       time.Duration
	MaxUploadBytes    int64
}

// DatasetConfig controls dataset loading, startup seeding and replay.
type DatasetConfig struct {
	Name              string
	RowsBaseURL       string
	CSVPath           string
	CachePath         string
	SeedIfEmpty       bool
	SyntheticCount    int
	BatchSize         int
	Workers           int
	ReplayMultiplier  float64
	SourceHTTPTimeout time.Duration
}

const (
	defaultHost            = "0.0.0.0"
	defaultPort            = 8000
	defaultReadTimeout     = "10s"
	defaultWriteTimeout    = "90s"
	defaultIdleTimeout     = "60s"
	defaultShutdownTimeout = "10s"
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "text"
)

// LoadDotEnv loads variables from the given .env files (".env" when none are
// given). Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables and an optional
// config.yaml, applying defaults.
func Load() (Config, error) {
	v := newViper()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Host:              v.GetString("SERVER_HOST"),
			MetricsEnabled:    v.GetBool("SERVER_METRICS_ENABLED"),
			AllowedOriginsCSV: v.GetString("SERVER_ALLOWED_ORIGINS"),
		},
		Logging: LoggingConfig{
			Level:         v.GetString("LOG_LEVEL"),
			Format:        v.GetString("LOG_FORMAT"),
			IncludeCaller: v.GetBool("LOG_INCLUDE_CALLER"),
		},
		Mongo: MongoConfig{
			URI:         v.GetString("MONGODB_URL"),
			Database:    v.GetString("DATABASE_NAME"),
			Collection:  v.GetString("MONGODB_COLLECTION"),
			MaxPoolSize: v.GetUint64("MONGODB_MAX_POOL_SIZE"),
			MinPoolSize: v.GetUint64("MONGODB_MIN_POOL_SIZE"),
		},
		LLM: LLMConfig{
			APIKey:      v.GetString("GROQ_API_KEY"),
			BaseURL:     v.GetString("LLM_BASE_URL"),
			Model:       v.GetString("LLM_MODEL"),
			Temperature: float32(v.GetFloat64("LLM_TEMPERATURE")),
			MaxTokens:   v.GetInt("LLM_MAX_TOKENS"),
		},
		Voice: VoiceConfig{
			AssemblyAIKey:     v.GetString("ASSEMBLYAI_API_KEY"),
			AssemblyAIBaseURL: v.GetString("ASSEMBLYAI_BASE_URL"),
			GoogleAPIKey:      v.GetString("GOOGLE_API_KEY"),
			TTSBaseURL:        v.GetString("TTS_BASE_URL"),
			AudioDir:          v.GetString("AUDIO_DIR"),
			PollAttempts:      v.GetInt("VOICE_POLL_ATTEMPTS"),
			MaxUploadBytes:    v.GetInt64("VOICE_MAX_UPLOAD_BYTES"),
		},
		Dataset: DatasetConfig{
			Name:             v.GetString("DATASET_NAME"),
			RowsBaseURL:      v.GetString("DATASET_ROWS_URL"),
			CSVPath:          v.GetString("DATASET_CSV_PATH"),
			CachePath:        v.GetString("DATASET_CACHE_PATH"),
			SeedIfEmpty:      v.GetBool("DATASET_SEED_IF_EMPTY"),
			SyntheticCount:   v.GetInt("DATASET_SYNTHETIC_COUNT"),
			BatchSize:        v.GetInt("DATASET_BATCH_SIZE"),
			Workers:          v.GetInt("DATASET_WORKERS"),
			ReplayMultiplier: v.GetFloat64("REPLAY_SPEED_MULTIPLIER"),
		},
	}

	port := v.GetInt("SERVER_PORT")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("port %d is out of range", port)
	}
	cfg.HTTP.Port = port

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout},
		{"MONGODB_SERVER_SELECTION_TIMEOUT", &cfg.Mongo.ServerSelectionTimeout},
		{"MONGODB_OPERATION_TIMEOUT", &cfg.Mongo.OperationTimeout},
		{"LLM_TIMEOUT", &cfg.LLM.Timeout},
		{"VOICE_POLL_INTERVAL", &cfg.Voice.PollInterval},
		{"VOICE_REQUEST_TIMEOUT", &cfg.Voice.RequestTimeout},
		{"AUDIO_MAX_AGE", &cfg.Voice.AudioMaxAge},
		{"DATASET_HTTP_TIMEOUT", &cfg.Dataset.SourceHTTPTimeout},
	}
	for _, d := range durations {
		parsed, err := parseDuration(v, d.key)
		if err != nil {
			return Config{}, err
		}
		*d.dst = parsed
	}

	if cfg.Mongo.MinPoolSize > cfg.Mongo.MaxPoolSize {
		return Config{}, fmt.Errorf("MONGODB_MIN_POOL_SIZE %d exceeds MONGODB_MAX_POOL_SIZE %d", cfg.Mongo.MinPoolSize, cfg.Mongo.MaxPoolSize)
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetDefault("SERVER_HOST", defaultHost)
	v.SetDefault("SERVER_PORT", defaultPort)
	v.SetDefault("SERVER_READ_TIMEOUT", defaultReadTimeout)
	v.SetDefault("SERVER_WRITE_TIMEOUT", defaultWriteTimeout)
	v.SetDefault("SERVER_IDLE_TIMEOUT", defaultIdleTimeout)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout)
	v.SetDefault("SERVER_METRICS_ENABLED", true)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "http://localhost:3000")

	v.SetDefault("LOG_LEVEL", defaultLoggingLevel)
	v.SetDefault("LOG_FORMAT", defaultLoggingFormat)
	v.SetDefault("LOG_INCLUDE_CALLER", false)

	v.SetDefault("MONGODB_URL", "mongodb://localhost:27017")
	v.SetDefault("DATABASE_NAME", "upi_diagnosis")
	v.SetDefault("MONGODB_COLLECTION", "transactions")
	v.SetDefault("MONGODB_SERVER_SELECTION_TIMEOUT", "5s")
	v.SetDefault("MONGODB_OPERATION_TIMEOUT", "10s")
	v.SetDefault("MONGODB_MAX_POOL_SIZE", 50)
	v.SetDefault("MONGODB_MIN_POOL_SIZE", 5)

	v.SetDefault("LLM_BASE_URL", "https://api.groq.com/openai/v1")
	v.SetDefault("LLM_MODEL", "llama3-8b-8192")
	v.SetDefault("LLM_TEMPERATURE", 0.3)
	v.SetDefault("LLM_MAX_TOKENS", 1024)
	v.SetDefault("LLM_TIMEOUT", "30s")

	v.SetDefault("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com/v2")
	v.SetDefault("TTS_BASE_URL", "https://texttospeech.googleapis.com/v1")
	v.SetDefault("AUDIO_DIR", "static/audio")
	v.SetDefault("VOICE_POLL_INTERVAL", "5s")
	v.SetDefault("VOICE_POLL_ATTEMPTS", 60)
	v.SetDefault("VOICE_REQUEST_TIMEOUT", "30s")
	v.SetDefault("AUDIO_MAX_AGE", "24h")
	v.SetDefault("VOICE_MAX_UPLOAD_BYTES", 25<<20)

	v.SetDefault("DATASET_NAME", "deepakjoshi1606/mock-upi-txn-data")
	v.SetDefault("DATASET_ROWS_URL", "https://datasets-server.huggingface.co/rows")
	v.SetDefault("DATASET_CSV_PATH", "data/upi_transactions.csv")
	v.SetDefault("DATASET_CACHE_PATH", "data/transactions.json")
	v.SetDefault("DATASET_SEED_IF_EMPTY", true)
	v.SetDefault("DATASET_SYNTHETIC_COUNT", 1000)
	v.SetDefault("DATASET_BATCH_SIZE", 500)
	v.SetDefault("DATASET_WORKERS", 4)
	v.SetDefault("DATASET_HTTP_TIMEOUT", "30s")
	v.SetDefault("REPLAY_SPEED_MULTIPLIER", 100.0)

	return v
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
