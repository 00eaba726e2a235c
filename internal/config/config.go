package config

import (
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis  RedisConfig
	Points PointsConfig
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// TelemetryConfig carries the logging and OTel switches. Empty fields fall back
// to environment-specific defaults in the observability package.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

// PointsConfig tunes the points economy. Every value has a production default.
type PointsConfig struct {
	DailyCap                  int64
	CoolingPeriod             time.Duration
	MinQualityScore           int
	QualityRequiredCategories []string
	DayLocation               *time.Location
	StorageTimeout            time.Duration
	// MaxCASRetries caps version-conflict retries per commit. Zero retries until
	// StorageTimeout elapses.
	MaxCASRetries             int
	BalanceCacheTTL           time.Duration
	FraudRulesFile            string
	Fraud                     FraudConfig
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "edupoints"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("SNOWFLAKE_NODE_ID", 1),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Telemetry: loadTelemetryConfig(),
		Points:    loadPointsConfig(),
	}

	return cfg
}

func loadTelemetryConfig() TelemetryConfig {
	protocol := getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	if traces := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}
	return TelemetryConfig{
		LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", ""))),
		LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", ""))),
		OtelEnabled:   getenvBool("OTEL_ENABLED", true),
		OtelProtocol:  strings.ToLower(strings.TrimSpace(protocol)),
		SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", -1),
	}
}

func loadPointsConfig() PointsConfig {
	defaults := DefaultPointsConfig()

	required := defaults.QualityRequiredCategories
	if raw, ok := os.LookupEnv("POINTS_QUALITY_REQUIRED_CATEGORIES"); ok {
		required = parseList(raw)
	}

	return PointsConfig{
		DailyCap:                  getenvInt64("POINTS_DAILY_CAP", defaults.DailyCap),
		CoolingPeriod:             getenvDuration("POINTS_COOLING_PERIOD", defaults.CoolingPeriod),
		MinQualityScore:           getenvInt("POINTS_MIN_QUALITY_SCORE", defaults.MinQualityScore),
		QualityRequiredCategories: required,
		DayLocation:               getenvLocation("POINTS_DAY_TIMEZONE", defaults.DayLocation),
		StorageTimeout:            getenvDuration("POINTS_STORAGE_TIMEOUT", defaults.StorageTimeout),
		MaxCASRetries:             getenvInt("POINTS_MAX_CAS_RETRIES", defaults.MaxCASRetries),
		BalanceCacheTTL:           getenvDuration("POINTS_BALANCE_CACHE_TTL", defaults.BalanceCacheTTL),
		FraudRulesFile:            strings.TrimSpace(getenv("POINTS_FRAUD_RULES_FILE", "")),
		Fraud:                     DefaultFraudConfig(),
	}
}

// DefaultPointsConfig returns the economy defaults used when no override is set.
func DefaultPointsConfig() PointsConfig {
	return PointsConfig{
		DailyCap:                  100,
		CoolingPeriod:             10 * time.Minute,
		MinQualityScore:           70,
		QualityRequiredCategories: nil,
		DayLocation:               time.UTC,
		StorageTimeout:            3 * time.Second,
		MaxCASRetries:             0,
		BalanceCacheTTL:           30 * time.Second,
		Fraud:                     DefaultFraudConfig(),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func getenvLocation(key string, def *time.Location) *time.Location {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	loc, err := time.LoadLocation(value)
	if err != nil {
		return def
	}
	return loc
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
