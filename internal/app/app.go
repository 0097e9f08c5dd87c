// Package app holds the cold-start wiring shared by the API, the refresh
// worker and the CLI: logger, AWS configuration and the prediction engine
// with its upstream collaborators.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"pawtrail/internal/calibration"
	"pawtrail/internal/config"
	"pawtrail/internal/db"
	"pawtrail/internal/external"
	"pawtrail/internal/prediction"
	"pawtrail/internal/types"
)

// NewLogger returns a JSON slog.Logger at the named level. Unknown levels
// fall back to info.
func NewLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// SecretProvider returns nil for local runs and an SSM provider otherwise.
// The region is read before config loading, so it comes straight from the
// environment.
func SecretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return nil
	}
	return config.NewSSMProvider(os.Getenv("AWS_REGION"))
}

// LoadAWS loads the SDK configuration, honoring AWS_ENDPOINT_URL for
// LocalStack.
func LoadAWS(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	if cfg.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.EndpointURL)
	}
	return awsCfg, nil
}

// LoadCalibration returns the embedded table or the file named in config.
// A configured priority preset replaces the table default.
func LoadCalibration(cfg config.PredictionConfig) (*calibration.Table, error) {
	table := calibration.Default()
	if cfg.CalibrationFile != "" {
		t, err := calibration.Load(cfg.CalibrationFile)
		if err != nil {
			return nil, err
		}
		table = t
	}
	if cfg.PriorityPreset != "" {
		if _, ok := table.PriorityPreset(cfg.PriorityPreset); !ok {
			return nil, fmt.Errorf("priority preset %q not in calibration %s (have %v)",
				cfg.PriorityPreset, table.Version, table.PresetNames())
		}
		// Shallow copy: Default returns a shared table.
		t := *table
		t.DefaultPriorityPreset = cfg.PriorityPreset
		table = &t
	}
	return table, nil
}

// NewEngine builds the engine with every enabled upstream. pool may be nil;
// curated danger zones then come from OpenStreetMap only.
func NewEngine(cfg *config.Config, logger *slog.Logger, pool db.DBTX) (*prediction.Engine, error) {
	table, err := LoadCalibration(cfg.Prediction)
	if err != nil {
		return nil, err
	}

	opts := []prediction.Option{
		prediction.WithLogger(logger),
		prediction.WithUpstreamTimeout(cfg.Prediction.UpstreamTimeout),
		prediction.WithConcurrency(cfg.Prediction.Concurrency),
		prediction.WithClock(types.RealClock{}),
	}

	if cfg.Weather.Enabled {
		if chain := newWeatherChain(cfg.Weather, logger); chain != nil {
			opts = append(opts, prediction.WithWeatherService(chain))
		}
	}

	if cfg.Geocoding.Enabled {
		base := external.NewBaseClient(&http.Client{Timeout: cfg.Weather.HTTPClientTimeout}, "nominatim",
			external.DefaultRetryPolicy(), cfg.Geocoding.UserAgent,
			external.WithFailureCode(types.ErrCodeUpstreamGeocoding))
		opts = append(opts, prediction.WithGeocoder(external.NewNominatimClient(base, cfg.Geocoding.NominatimURL)))
	}

	var dangerSources []external.DangerZoneSource
	if cfg.POI.Enabled {
		osm := external.NewOverpassClient(cfg.POI.OverpassURL, nil, cfg.POI.Timeout, cfg.POI.CacheTTL)
		opts = append(opts, prediction.WithPointOfInterestProvider(osm))
		dangerSources = append(dangerSources, osm)
	}
	if pool != nil && cfg.POI.CuratedDangerZones {
		dangerSources = append(dangerSources, db.NewDangerZoneRepository(pool))
	}
	if len(dangerSources) > 0 {
		opts = append(opts, prediction.WithDangerZoneProvider(external.NewDangerZoneSet(logger, dangerSources...)))
	}

	return prediction.NewEngine(table, opts...), nil
}

// newWeatherChain puts OpenWeather first when a key is configured, with MET
// Norway as the keyless fallback.
func newWeatherChain(cfg config.WeatherConfig, logger *slog.Logger) *external.WeatherChain {
	policy := external.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}

	var providers []external.WeatherProvider
	if key := cfg.OpenWeatherAPIKey.Unmask(); key != "" {
		base := external.NewBaseClient(httpClient, "openweather", policy, cfg.UserAgent,
			external.WithFailureCode(types.ErrCodeUpstreamWeather))
		providers = append(providers, external.NewOpenWeatherClient(base, cfg.OpenWeatherURL, key))
	}
	if cfg.MetNoURL != "" {
		base := external.NewBaseClient(httpClient, "metno", policy, cfg.UserAgent,
			external.WithFailureCode(types.ErrCodeUpstreamWeather))
		providers = append(providers, external.NewMetNoClient(base, cfg.MetNoURL))
	}
	if len(providers) == 0 {
		return nil
	}
	return external.NewWeatherChain(logger, cfg.CacheTTL, providers...)
}
