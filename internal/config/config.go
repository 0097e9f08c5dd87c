// Package config defines the process configuration for the PawTrail API, the
// refresh worker and the CLI. Configuration is loaded once at startup and is
// immutable afterwards.
//
// Values are resolved in priority order:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"pawtrail/internal/types"
)

// SecretString is the redacted secret type used for credentials.
type SecretString = types.SecretString

// Config is the top-level configuration. Components receive only the
// section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"pawtrail"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Weather       WeatherConfig
	Geocoding     GeocodingConfig
	POI           POIConfig
	Prediction    PredictionConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not the environment.
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	// MaxBodyBytes caps POST bodies; profiles are small.
	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"65536" validate:"gt=0"`
	// RateLimitPerMinute caps prediction requests per client IP. Zero
	// disables throttling.
	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30" validate:"gte=0"`
}

// DatabaseConfig holds Postgres connection settings. An empty URL runs the
// API without persistence (predictions are returned but not stored).
type DatabaseConfig struct {
	URL      SecretString `envconfig:"DATABASE_URL" validate:"omitempty,url"`
	MaxConns int32        `envconfig:"DB_MAX_CONNS" default:"10" validate:"gte=1"`
	// AutoMigrate applies the embedded schema at startup.
	AutoMigrate bool `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

// AWSConfig holds AWS resource identifiers.
type AWSConfig struct {
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	RefreshQueueURL string `envconfig:"SQS_REFRESH_QUEUE" validate:"omitempty,url"`
	ArchiveBucket   string `envconfig:"ARCHIVE_BUCKET"`
	ArchivePrefix   string `envconfig:"ARCHIVE_PREFIX" default:"predictions/"`

	// LocalStack support; empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// WeatherConfig selects live weather providers. OpenWeather is used when a key
// is present; MET Norway needs no key and serves as the fallback.
type WeatherConfig struct {
	Enabled           bool          `envconfig:"WEATHER_ENABLED" default:"true"`
	OpenWeatherAPIKey SecretString  `envconfig:"OPENWEATHER_API_KEY"`
	OpenWeatherURL    string        `envconfig:"OPENWEATHER_URL" default:"https://api.openweathermap.org/data/2.5/weather" validate:"url"`
	MetNoURL          string        `envconfig:"METNO_URL" default:"https://api.met.no/weatherapi/locationforecast/2.0/compact" validate:"url"`
	CacheTTL          time.Duration `envconfig:"WEATHER_CACHE_TTL" default:"10m"`
	UserAgent         string        `envconfig:"WEATHER_USER_AGENT" default:"PawTrail/1.0 (+https://pawtrail.app)"`
	MaxRetries        int           `envconfig:"WEATHER_MAX_RETRIES" default:"1" validate:"gte=0,lte=5"`
	HTTPClientTimeout time.Duration `envconfig:"WEATHER_HTTP_TIMEOUT" default:"4s"`
}

// GeocodingConfig configures address resolution.
type GeocodingConfig struct {
	Enabled      bool   `envconfig:"GEOCODING_ENABLED" default:"true"`
	NominatimURL string `envconfig:"NOMINATIM_URL" default:"https://nominatim.openstreetmap.org/search" validate:"url"`
	UserAgent    string `envconfig:"GEOCODING_USER_AGENT" default:"PawTrail/1.0 (+https://pawtrail.app)"`
}

// POIConfig configures OpenStreetMap lookups for hazards and attractors.
type POIConfig struct {
	Enabled     bool          `envconfig:"POI_ENABLED" default:"true"`
	OverpassURL string        `envconfig:"OVERPASS_URL" default:"https://overpass-api.de/api/interpreter" validate:"url"`
	Timeout     time.Duration `envconfig:"OVERPASS_TIMEOUT" default:"8s"`
	CacheTTL    time.Duration `envconfig:"OVERPASS_CACHE_TTL" default:"1h"`
	// CuratedDangerZones adds rows from the danger_zones table when a
	// database is configured.
	CuratedDangerZones bool `envconfig:"CURATED_DANGER_ZONES" default:"true"`
}

// PredictionConfig tunes the engine.
type PredictionConfig struct {
	UpstreamTimeout time.Duration `envconfig:"PREDICTION_UPSTREAM_TIMEOUT" default:"3s"`
	Concurrency     int           `envconfig:"PREDICTION_CONCURRENCY" default:"4" validate:"gte=1,lte=32"`
	PriorityPreset  string        `envconfig:"PRIORITY_PRESET"`
	// CalibrationFile overrides the embedded calibration table.
	CalibrationFile string `envconfig:"CALIBRATION_FILE"`
}

// ObservabilityConfig holds metrics settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"PawTrail"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
