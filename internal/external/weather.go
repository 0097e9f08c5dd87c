package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"pawtrail/internal/types"
)

// stormWindMS is the sustained wind speed treated as a storm regardless of
// the reported condition.
const stormWindMS = 17.0

// ---------------------------------------------------------------------------
// OpenWeatherMap
// ---------------------------------------------------------------------------

// OpenWeatherClient reads current conditions from the OpenWeatherMap
// "current weather" endpoint.
type OpenWeatherClient struct {
	*BaseClient
	endpoint string
	apiKey   string
}

// NewOpenWeatherClient creates an OpenWeatherMap client. endpoint is the
// full current-weather URL, e.g. https://api.openweathermap.org/data/2.5/weather.
func NewOpenWeatherClient(base *BaseClient, endpoint, apiKey string) *OpenWeatherClient {
	return &OpenWeatherClient{BaseClient: base, endpoint: endpoint, apiKey: apiKey}
}

type openWeatherResponse struct {
	Weather []struct {
		ID   int    `json:"id"`
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain map[string]float64 `json:"rain"`
	Snow map[string]float64 `json:"snow"`
	Dt   int64              `json:"dt"`
}

// CurrentCondition implements prediction.WeatherService.
func (c *OpenWeatherClient) CurrentCondition(ctx context.Context, at types.LatLng) (*types.WeatherSnapshot, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(at.Lat, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(at.Lng, 'f', 4, 64))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	var body openWeatherResponse
	if err := c.GetJSON(ctx, c.endpoint+"?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	if len(body.Weather) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "openweather returned no conditions", nil)
	}

	precip := body.Rain["1h"] + body.Snow["1h"]
	return &types.WeatherSnapshot{
		TemperatureC:    body.Main.Temp,
		PrecipitationMM: precip,
		WindSpeedMS:     body.Wind.Speed,
		Condition:       classifyOpenWeather(body.Weather[0].ID, body.Wind.Speed),
		ObservedAt:      time.Unix(body.Dt, 0).UTC(),
		Source:          "openweather",
	}, nil
}

// classifyOpenWeather maps OpenWeatherMap condition codes
// (https://openweathermap.org/weather-conditions) to model categories.
func classifyOpenWeather(id int, windMS float64) types.WeatherCondition {
	switch {
	case id >= 200 && id < 300, windMS >= stormWindMS, id == 771, id == 781:
		return types.WeatherStorm
	case id >= 600 && id < 700:
		return types.WeatherSnow
	case id >= 300 && id < 600:
		return types.WeatherRain
	default:
		return types.WeatherClear
	}
}

// ---------------------------------------------------------------------------
// MET Norway (yr.no)
// ---------------------------------------------------------------------------

// MetNoClient reads the first timestep of the MET Norway compact
// locationforecast. MET requires an identifying User-Agent.
type MetNoClient struct {
	*BaseClient
	endpoint string
}

// NewMetNoClient creates a MET Norway client. endpoint is the compact
// locationforecast URL.
func NewMetNoClient(base *BaseClient, endpoint string) *MetNoClient {
	return &MetNoClient{BaseClient: base, endpoint: endpoint}
}

type metNoResponse struct {
	Properties struct {
		Timeseries []struct {
			Time time.Time `json:"time"`
			Data struct {
				Instant struct {
					Details struct {
						AirTemperature float64 `json:"air_temperature"`
						WindSpeed      float64 `json:"wind_speed"`
					} `json:"details"`
				} `json:"instant"`
				Next1Hours *struct {
					Summary struct {
						SymbolCode string `json:"symbol_code"`
					} `json:"summary"`
					Details struct {
						PrecipitationAmount float64 `json:"precipitation_amount"`
					} `json:"details"`
				} `json:"next_1_hours"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

// CurrentCondition implements prediction.WeatherService.
func (c *MetNoClient) CurrentCondition(ctx context.Context, at types.LatLng) (*types.WeatherSnapshot, error) {
	// MET asks clients to truncate coordinates to four decimals.
	u := fmt.Sprintf("%s?lat=%.4f&lon=%.4f", c.endpoint, at.Lat, at.Lng)

	var body metNoResponse
	if err := c.GetJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	if len(body.Properties.Timeseries) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "met.no returned no timeseries", nil)
	}

	cur := body.Properties.Timeseries[0]
	snap := &types.WeatherSnapshot{
		TemperatureC: cur.Data.Instant.Details.AirTemperature,
		WindSpeedMS:  cur.Data.Instant.Details.WindSpeed,
		ObservedAt:   cur.Time.UTC(),
		Source:       "metno",
	}
	var symbol string
	if n := cur.Data.Next1Hours; n != nil {
		symbol = n.Summary.SymbolCode
		snap.PrecipitationMM = n.Details.PrecipitationAmount
	}
	snap.Condition = classifyMetNo(symbol, snap.WindSpeedMS)
	return snap, nil
}

// classifyMetNo maps MET symbol codes such as "lightrainshowers_day" or
// "heavysnowandthunder" to model categories.
func classifyMetNo(symbol string, windMS float64) types.WeatherCondition {
	switch {
	case strings.Contains(symbol, "thunder"), windMS >= stormWindMS:
		return types.WeatherStorm
	case strings.Contains(symbol, "snow"), strings.Contains(symbol, "sleet"):
		return types.WeatherSnow
	case strings.Contains(symbol, "rain"), strings.Contains(symbol, "drizzle"):
		return types.WeatherRain
	default:
		return types.WeatherClear
	}
}

// ---------------------------------------------------------------------------
// Chain and cache
// ---------------------------------------------------------------------------

// WeatherProvider is the contract the chain composes; it matches
// prediction.WeatherService.
type WeatherProvider interface {
	CurrentCondition(ctx context.Context, at types.LatLng) (*types.WeatherSnapshot, error)
}

// WeatherChain tries providers in order and caches successful snapshots per
// ~1 km grid cell.
type WeatherChain struct {
	providers []WeatherProvider
	cache     *cache.Cache
	logger    *slog.Logger
}

// NewWeatherChain builds a chain. A zero ttl disables caching.
func NewWeatherChain(logger *slog.Logger, ttl time.Duration, providers ...WeatherProvider) *WeatherChain {
	wc := &WeatherChain{providers: providers, logger: logger}
	if ttl > 0 {
		wc.cache = cache.New(ttl, 2*ttl)
	}
	return wc
}

// CurrentCondition implements prediction.WeatherService.
func (w *WeatherChain) CurrentCondition(ctx context.Context, at types.LatLng) (*types.WeatherSnapshot, error) {
	key := fmt.Sprintf("%.2f,%.2f", at.Lat, at.Lng)
	if w.cache != nil {
		if v, ok := w.cache.Get(key); ok {
			snap := *v.(*types.WeatherSnapshot)
			return &snap, nil
		}
	}

	var lastErr error
	for _, p := range w.providers {
		snap, err := p.CurrentCondition(ctx, at)
		if err == nil && snap != nil {
			if w.cache != nil {
				stored := *snap
				w.cache.Set(key, &stored, cache.DefaultExpiration)
			}
			return snap, nil
		}
		if err != nil {
			lastErr = err
			w.logger.WarnContext(ctx, "weather provider failed", "provider", fmt.Sprintf("%T", p), "error", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = types.NewAppError(types.ErrCodeUpstreamWeather, "no weather provider configured", nil)
	}
	return nil, lastErr
}
