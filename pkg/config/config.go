package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env string

	API       APIConfig
	Reports   ReportsConfig
	Downloads DownloadsConfig
	Breaker   BreakerConfig
	Reference ReferenceConfig
	Redis     RedisConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Stub      StubConfig
}

// APIConfig points the client at the report server.
type APIConfig struct {
	BasePath string
	Timeout  time.Duration
}

// ReportsConfig controls request and filename formatting.
type ReportsConfig struct {
	DateFormat         string
	FilenameDateFormat string
	MaxBytes           int64
}

// DownloadsConfig configures where saved reports land.
type DownloadsConfig struct {
	Dir            string
	PartialFileTTL time.Duration
}

// BreakerConfig tunes the circuit breaker around outbound calls.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// ReferenceConfig toggles the account list cache.
type ReferenceConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string
}

// StubConfig drives the development report server.
type StubConfig struct {
	Port           int
	ChunkSize      int
	ChunkDelay     time.Duration
	AllowedOrigins []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")

	cfg.API = APIConfig{
		BasePath: strings.TrimRight(v.GetString("API_BASE_PATH"), "/"),
		Timeout:  parseDuration(v.GetString("HTTP_TIMEOUT"), 5*time.Minute),
	}

	cfg.Reports = ReportsConfig{
		DateFormat:         v.GetString("REPORT_DATE_FORMAT"),
		FilenameDateFormat: v.GetString("FILENAME_DATE_FORMAT"),
		MaxBytes:           v.GetInt64("REPORT_MAX_BYTES"),
	}

	cfg.Downloads = DownloadsConfig{
		Dir:            v.GetString("DOWNLOAD_DIR"),
		PartialFileTTL: parseDuration(v.GetString("PARTIAL_FILE_TTL"), 24*time.Hour),
	}

	cfg.Breaker = BreakerConfig{
		MaxRequests:      uint32(v.GetInt("BREAKER_MAX_REQUESTS")),
		Interval:         parseDuration(v.GetString("BREAKER_INTERVAL"), time.Minute),
		Timeout:          parseDuration(v.GetString("BREAKER_TIMEOUT"), 30*time.Second),
		FailureThreshold: uint32(v.GetInt("BREAKER_FAILURE_THRESHOLD")),
	}

	cfg.Reference = ReferenceConfig{
		CacheEnabled: v.GetBool("ENABLE_REFERENCE_CACHE"),
		CacheTTL:     parseDuration(v.GetString("REFERENCE_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Metrics = MetricsConfig{Addr: v.GetString("METRICS_ADDR")}

	cfg.Stub = StubConfig{
		Port:           v.GetInt("STUB_PORT"),
		ChunkSize:      v.GetInt("STUB_CHUNK_SIZE"),
		ChunkDelay:     parseDuration(v.GetString("STUB_CHUNK_DELAY"), 0),
		AllowedOrigins: splitList(v.GetString("STUB_ALLOWED_ORIGINS")),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("API_BASE_PATH", "http://localhost:5000/api")
	v.SetDefault("HTTP_TIMEOUT", "5m")

	v.SetDefault("REPORT_DATE_FORMAT", "01/02/2006")
	v.SetDefault("FILENAME_DATE_FORMAT", "01/02/2006")
	v.SetDefault("REPORT_MAX_BYTES", 256<<20)

	v.SetDefault("DOWNLOAD_DIR", "./downloads")
	v.SetDefault("PARTIAL_FILE_TTL", "24h")

	v.SetDefault("BREAKER_MAX_REQUESTS", 1)
	v.SetDefault("BREAKER_INTERVAL", "1m")
	v.SetDefault("BREAKER_TIMEOUT", "30s")
	v.SetDefault("BREAKER_FAILURE_THRESHOLD", 5)

	v.SetDefault("ENABLE_REFERENCE_CACHE", false)
	v.SetDefault("REFERENCE_CACHE_TTL", "10m")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("METRICS_ADDR", "")

	v.SetDefault("STUB_PORT", 5000)
	v.SetDefault("STUB_CHUNK_SIZE", 4096)
	v.SetDefault("STUB_CHUNK_DELAY", "0s")
	v.SetDefault("STUB_ALLOWED_ORIGINS", "")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}
