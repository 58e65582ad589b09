package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env         string
	ListenAddr  string
	DatabaseURL string

	LogLevel  string
	LogFormat string

	WeatherWorkers      int
	WeatherPollInterval time.Duration
	AutoWeatherCheck    bool

	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string
	GeocoderBaseURL    string
	GeocoderRPS        float64
	WeatherTimeout     time.Duration

	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string
	NarrativeTimeout time.Duration

	RedisAddr        string
	LocationCacheTTL time.Duration

	MinIO MinIOConfig

	OTLPEndpoint     string
	OTLPInsecure     bool
	MetricPolicyFile string
}

// MinIOConfig addresses the optional report archive bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (m MinIOConfig) Enabled() bool { return m.Endpoint != "" && m.Bucket != "" }

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load reads the configuration from the environment. Every malformed value is
// reported; the returned Config still carries defaults for those keys.
func Load() (Config, error) {
	p := &parser{}
	cfg := Config{
		Env:         getenv("APP_ENV", "development"),
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogFormat: getenv("LOG_FORMAT", "json"),

		WeatherWorkers:      p.int("WEATHER_WORKERS", 0),
		WeatherPollInterval: p.duration("WEATHER_POLL_INTERVAL", 500*time.Millisecond),
		AutoWeatherCheck:    p.bool("AUTO_WEATHER_CHECK", false),

		OpenWeatherAPIKey:  os.Getenv("OPENWEATHER_API_KEY"),
		OpenWeatherBaseURL: getenv("OPENWEATHER_BASE_URL", "https://api.openweathermap.org"),
		GeocoderBaseURL:    getenv("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocoderRPS:        p.float("GEOCODER_RPS", 1),
		WeatherTimeout:     p.duration("WEATHER_TIMEOUT", 15*time.Second),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getenv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:    getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		NarrativeTimeout: p.duration("NARRATIVE_TIMEOUT", 20*time.Second),

		RedisAddr:        os.Getenv("REDIS_ADDR"),
		LocationCacheTTL: p.duration("LOCATION_CACHE_TTL", 24*time.Hour),

		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getenv("MINIO_BUCKET", "insight-reports"),
			UseSSL:    p.bool("MINIO_USE_SSL", false),
		},

		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:     p.bool("OTEL_EXPORTER_OTLP_INSECURE", false),
		MetricPolicyFile: os.Getenv("METRIC_POLICY_FILE"),
	}
	if cfg.DatabaseURL == "" {
		p.errs = append(p.errs, errors.New("DATABASE_URL not set"))
	}
	if cfg.WeatherWorkers < 0 {
		p.errs = append(p.errs, fmt.Errorf("WEATHER_WORKERS must not be negative, got %d", cfg.WeatherWorkers))
	}
	if cfg.GeocoderRPS <= 0 {
		p.errs = append(p.errs, fmt.Errorf("GEOCODER_RPS must be positive, got %g", cfg.GeocoderRPS))
	}
	return cfg, errors.Join(p.errs...)
}

// DatabaseDriver reports which store DatabaseURL selects: "postgres" or "sqlite".
func (c Config) DatabaseDriver() string {
	switch {
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(c.DatabaseURL, "sqlite://"), strings.HasPrefix(c.DatabaseURL, "file:"), c.DatabaseURL == ":memory:":
		return "sqlite"
	}
	return ""
}

// SQLitePath strips the sqlite:// scheme from DatabaseURL.
func (c Config) SQLitePath() string {
	return strings.TrimPrefix(c.DatabaseURL, "sqlite://")
}

type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return out
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return def
	}
	return out
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return out
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := time.ParseDuration(v)
	if err != nil || out <= 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return out
}
