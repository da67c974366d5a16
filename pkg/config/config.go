package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"checkpost/pkg/client"
	"checkpost/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoCollection   string
	MongoConnTimeout  time.Duration
	MongoOpTimeout    time.Duration

	Port string

	IngestSigningSecret string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int
	MaxIngestRows  int
	PreviewRows    int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RecentStopsLimit   int
	FilteredStopsLimit int
	ReportRowLimit     int

	RepeatVehicleWindow   time.Duration
	RepeatVehicleMinStops int
	RepeatVehicleLimit    int

	KafkaEnabled bool

	Log    *logger.Logger
	Client *client.Client
}

// Load reads the environment, after merging an optional .env file, validates
// it and logs the result. Invalid configuration is fatal.
func Load(serviceName string) *Config {
	envFileErr := loadEnvFile(getEnvStr(EnvFile, DefaultEnvFile))

	cfg := FromEnv()
	cfg.Log = logger.New(logger.Config{
		Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
	})
	cfg.Client = client.NewClient()

	if envFileErr != nil {
		cfg.Log.Warn("Failed to load env file", "error", envFileErr)
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// FromEnv builds a Config from environment variables without logging or
// validating it.
func FromEnv() *Config {
	return &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoCollection:   getEnvStr(EnvMongoCollection, DefaultMongoCollection),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),
		MongoOpTimeout:    getEnvDuration(EnvMongoOpTimeout, DefaultMongoOpTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		IngestSigningSecret: getEnvStr(EnvIngestSigningSecret, ""),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),
		MaxIngestRows:  getEnvNum(EnvMaxIngestRows, DefaultMaxIngestRows),
		PreviewRows:    getEnvNum(EnvPreviewRows, DefaultPreviewRows),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		RecentStopsLimit:   getEnvNum(EnvRecentStopsLimit, DefaultRecentStopsLimit),
		FilteredStopsLimit: getEnvNum(EnvFilteredStopsLimit, DefaultFilteredStopsLimit),
		ReportRowLimit:     getEnvNum(EnvReportRowLimit, DefaultReportRowLimit),

		RepeatVehicleWindow:   getEnvDuration(EnvRepeatVehicleWindow, DefaultRepeatVehicleWindow),
		RepeatVehicleMinStops: getEnvNum(EnvRepeatVehicleMinStops, DefaultRepeatVehicleMinStops),
		RepeatVehicleLimit:    getEnvNum(EnvRepeatVehicleLimit, DefaultRepeatVehicleLimit),

		KafkaEnabled: getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),
	}
}

func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	// variables already present in the environment win over the file
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

var mongoSchemeRegex = regexp.MustCompile(`^mongodb(\+srv)?://`)

func (cfg *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errs = append(errs, "MongoURI cannot be empty")
	} else if len(cfg.MongoURI) < 10 || !mongoSchemeRegex.MatchString(cfg.MongoURI) {
		errs = append(errs, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
	}
	if cfg.MongoDatabaseName == "" {
		errs = append(errs, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoCollection == "" || strings.ContainsAny(cfg.MongoCollection, "$\x00") {
		errs = append(errs, fmt.Sprintf("MongoCollection must be a valid collection name, got: %q", cfg.MongoCollection))
	}

	positiveDurations := []struct {
		name  string
		value time.Duration
	}{
		{"MongoConnTimeout", cfg.MongoConnTimeout},
		{"MongoOpTimeout", cfg.MongoOpTimeout},
		{"RateLimitWindow", cfg.RateLimitWindow},
		{"RequestTimeout", cfg.RequestTimeout},
		{"IdempotencyTTL", cfg.IdempotencyTTL},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
		{"RepeatVehicleWindow", cfg.RepeatVehicleWindow},
	}
	for _, d := range positiveDurations {
		if d.value <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got: %s", d.name, d.value))
		}
	}

	positiveNums := []struct {
		name  string
		value int
	}{
		{"RateLimitRequests", cfg.RateLimitRequests},
		{"MaxRequestSize", cfg.MaxRequestSize},
		{"MaxIngestRows", cfg.MaxIngestRows},
		{"PreviewRows", cfg.PreviewRows},
		{"RecentStopsLimit", cfg.RecentStopsLimit},
		{"FilteredStopsLimit", cfg.FilteredStopsLimit},
		{"ReportRowLimit", cfg.ReportRowLimit},
		{"RepeatVehicleLimit", cfg.RepeatVehicleLimit},
	}
	for _, n := range positiveNums {
		if n.value <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got: %d", n.name, n.value))
		}
	}

	if cfg.RepeatVehicleMinStops < 2 {
		errs = append(errs, fmt.Sprintf("RepeatVehicleMinStops must be at least 2, got: %d", cfg.RepeatVehicleMinStops))
	}
	if cfg.WriteTimeout > 0 && cfg.RequestTimeout > cfg.WriteTimeout {
		errs = append(errs, fmt.Sprintf("RequestTimeout (%s) must not exceed WriteTimeout (%s)", cfg.RequestTimeout, cfg.WriteTimeout))
	}

	if len(errs) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errs {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_collection", cfg.MongoCollection,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"mongo_op_timeout", cfg.MongoOpTimeout,
		"port", cfg.Port,
		"ingest_signing_enabled", cfg.IngestSigningSecret != "",
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"max_ingest_rows", cfg.MaxIngestRows,
		"preview_rows", cfg.PreviewRows,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"recent_stops_limit", cfg.RecentStopsLimit,
		"filtered_stops_limit", cfg.FilteredStopsLimit,
		"report_row_limit", cfg.ReportRowLimit,
		"repeat_vehicle_window", cfg.RepeatVehicleWindow,
		"repeat_vehicle_min_stops", cfg.RepeatVehicleMinStops,
		"repeat_vehicle_limit", cfg.RepeatVehicleLimit,
		"kafka_enabled", cfg.KafkaEnabled,
	)
}

var credentialRegex = regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)

func redactMongoURI(uri string) string {
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

// ListLimit caps a requested listing size. Unfiltered listings show only the
// most recent stops.
func (cfg *Config) ListLimit(requested int, filtered bool) int {
	ceiling := cfg.RecentStopsLimit
	if filtered {
		ceiling = cfg.FilteredStopsLimit
	}
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
