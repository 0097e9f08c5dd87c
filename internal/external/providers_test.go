package external

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawtrail/internal/prediction"
	"pawtrail/internal/types"
)

var (
	_ prediction.WeatherService          = (*OpenWeatherClient)(nil)
	_ prediction.WeatherService          = (*MetNoClient)(nil)
	_ prediction.WeatherService          = (*WeatherChain)(nil)
	_ prediction.GeocodingService        = (*NominatimClient)(nil)
	_ prediction.DangerZoneProvider      = (*OverpassClient)(nil)
	_ prediction.PointOfInterestProvider = (*OverpassClient)(nil)
)

var berlin = types.LatLng{Lat: 52.52, Lng: 13.405}

func mockedBase(mt *httpmock.MockTransport, code types.ErrorCode) *BaseClient {
	return NewBaseClient(&http.Client{Transport: mt}, "mock", RetryPolicy{MaxRetries: 0}, "PawTrail-Test/1.0",
		WithWaitFunc(noWait), WithFailureCode(code))
}

const openWeatherBody = `{
  "weather": [{"id": 502, "main": "Rain"}],
  "main": {"temp": 11.5},
  "wind": {"speed": 4.2},
  "rain": {"1h": 3.1},
  "dt": 1781870400
}`

func TestOpenWeather_CurrentCondition(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder("GET", `=~^https://api\.openweathermap\.org/data/2\.5/weather`,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "secret", req.URL.Query().Get("appid"))
			assert.Equal(t, "metric", req.URL.Query().Get("units"))
			return httpmock.NewStringResponse(http.StatusOK, openWeatherBody), nil
		})

	c := NewOpenWeatherClient(mockedBase(mt, types.ErrCodeUpstreamWeather),
		"https://api.openweathermap.org/data/2.5/weather", "secret")
	snap, err := c.CurrentCondition(context.Background(), berlin)
	require.NoError(t, err)

	assert.Equal(t, types.WeatherRain, snap.Condition)
	assert.Equal(t, 11.5, snap.TemperatureC)
	assert.Equal(t, 3.1, snap.PrecipitationMM)
	assert.Equal(t, "openweather", snap.Source)
	assert.Equal(t, int64(1781870400), snap.ObservedAt.Unix())
}

func TestOpenWeather_UpstreamError(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder("GET", `=~^https://api\.openweathermap\.org/`,
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"cod":401}`))

	c := NewOpenWeatherClient(mockedBase(mt, types.ErrCodeUpstreamWeather),
		"https://api.openweathermap.org/data/2.5/weather", "bad")
	_, err := c.CurrentCondition(context.Background(), berlin)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamWeather))
}

func TestClassifyOpenWeather(t *testing.T) {
	assert.Equal(t, types.WeatherStorm, classifyOpenWeather(211, 2))
	assert.Equal(t, types.WeatherRain, classifyOpenWeather(301, 2))
	assert.Equal(t, types.WeatherRain, classifyOpenWeather(500, 2))
	assert.Equal(t, types.WeatherSnow, classifyOpenWeather(601, 2))
	assert.Equal(t, types.WeatherClear, classifyOpenWeather(800, 2))
	assert.Equal(t, types.WeatherStorm, classifyOpenWeather(800, 20))
}

const metNoBody = `{
  "properties": {
    "timeseries": [{
      "time": "2026-06-21T12:00:00Z",
      "data": {
        "instant": {"details": {"air_temperature": -2.5, "wind_speed": 3.0}},
        "next_1_hours": {
          "summary": {"symbol_code": "lightsnowshowers_day"},
          "details": {"precipitation_amount": 0.4}
        }
      }
    }]
  }
}`

func TestMetNo_CurrentCondition(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder("GET", `=~^https://api\.met\.no/weatherapi/locationforecast/2\.0/compact`,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "PawTrail-Test/1.0", req.Header.Get("User-Agent"))
			assert.Equal(t, "52.5200", req.URL.Query().Get("lat"))
			return httpmock.NewStringResponse(http.StatusOK, metNoBody), nil
		})

	c := NewMetNoClient(mockedBase(mt, types.ErrCodeUpstreamWeather),
		"https://api.met.no/weatherapi/locationforecast/2.0/compact")
	snap, err := c.CurrentCondition(context.Background(), berlin)
	require.NoError(t, err)

	assert.Equal(t, types.WeatherSnow, snap.Condition)
	assert.Equal(t, -2.5, snap.TemperatureC)
	assert.Equal(t, 0.4, snap.PrecipitationMM)
	assert.Equal(t, "metno", snap.Source)
}

func TestClassifyMetNo(t *testing.T) {
	assert.Equal(t, types.WeatherStorm, classifyMetNo("heavyrainandthunder", 1))
	assert.Equal(t, types.WeatherSnow, classifyMetNo("sleet", 1))
	assert.Equal(t, types.WeatherRain, classifyMetNo("lightrainshowers_night", 1))
	assert.Equal(t, types.WeatherClear, classifyMetNo("partlycloudy_day", 1))
	assert.Equal(t, types.WeatherClear, classifyMetNo("", 1))
}

type stubWeather struct {
	snap  *types.WeatherSnapshot
	err   error
	calls int
}

func (s *stubWeather) CurrentCondition(context.Context, types.LatLng) (*types.WeatherSnapshot, error) {
	s.calls++
	return s.snap, s.err
}

func TestWeatherChain_FallbackAndCache(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	failing := &stubWeather{err: errors.New("down")}
	working := &stubWeather{snap: &types.WeatherSnapshot{Condition: types.WeatherClear, Source: "b"}}

	chain := NewWeatherChain(logger, time.Minute, failing, working)

	snap, err := chain.CurrentCondition(context.Background(), berlin)
	require.NoError(t, err)
	assert.Equal(t, "b", snap.Source)

	// A nearby point in the same grid cell hits the cache.
	snap, err = chain.CurrentCondition(context.Background(), types.LatLng{Lat: 52.521, Lng: 13.404})
	require.NoError(t, err)
	assert.Equal(t, "b", snap.Source)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, working.calls)
}

func TestWeatherChain_AllFail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	chain := NewWeatherChain(logger, 0, &stubWeather{err: errors.New("a")}, &stubWeather{err: errors.New("b")})
	_, err := chain.CurrentCondition(context.Background(), berlin)
	assert.EqualError(t, err, "b")

	_, err = NewWeatherChain(logger, 0).CurrentCondition(context.Background(), berlin)
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamWeather))
}

func TestNominatim_Resolve(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder("GET", `=~^https://nominatim\.test/search`,
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("q") == "nowhere" {
				return httpmock.NewStringResponse(http.StatusOK, `[]`), nil
			}
			return httpmock.NewStringResponse(http.StatusOK,
				`[{"lat":"52.5163","lon":"13.3777","display_name":"Brandenburger Tor, Berlin"}]`), nil
		})

	c := NewNominatimClient(mockedBase(mt, types.ErrCodeUpstreamGeocoding), "https://nominatim.test/search")

	res, err := c.Resolve(context.Background(), "Pariser Platz, Berlin")
	require.NoError(t, err)
	assert.Equal(t, types.LatLng{Lat: 52.5163, Lng: 13.3777}, res.Location)
	assert.Equal(t, "Brandenburger Tor, Berlin", res.DisplayName)

	res, err = c.Resolve(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = c.Resolve(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

const overpassBody = `{
  "version": 0.6,
  "osm3s": {"timestamp_osm_base": "2026-06-21T12:00:00Z"},
  "elements": [
    {"type": "node", "id": 1, "lat": 52.521, "lon": 13.401, "tags": {"amenity": "restaurant", "name": "Imbiss"}},
    {"type": "node", "id": 2, "lat": 52.522, "lon": 13.402, "tags": {"amenity": "bench"}},
    {"type": "way", "id": 10, "nodes": [3, 4], "tags": {"highway": "primary", "name": "Unter den Linden"}},
    {"type": "way", "id": 11, "nodes": [3, 4], "tags": {"leisure": "park", "name": "Lustgarten"}},
    {"type": "node", "id": 3, "lat": 52.517, "lon": 13.390},
    {"type": "node", "id": 4, "lat": 52.519, "lon": 13.400}
  ]
}`

func TestOverpass_PointsOfInterestAndDangers(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder("POST", "https://overpass.test/api/interpreter",
		httpmock.NewStringResponder(http.StatusOK, overpassBody))

	c := NewOverpassClient("https://overpass.test/api/interpreter", mt, 5*time.Second, time.Minute)
	areas := []types.PredictionArea{{Center: berlin, RadiusM: 1000, Kind: types.AreaPrimary}}

	pois, err := c.FindPointsOfInterest(context.Background(), areas)
	require.NoError(t, err)
	require.Len(t, pois, 2)
	assert.Equal(t, "food", pois[0].Type)
	assert.Equal(t, "Imbiss", pois[0].Name)
	assert.Equal(t, "park", pois[1].Type)
	assert.InDelta(t, 52.518, pois[1].Location.Lat, 1e-9)

	dangers, err := c.FindDangerZones(context.Background(), areas)
	require.NoError(t, err)
	require.Len(t, dangers, 1)
	assert.Equal(t, "major_road", dangers[0].Type)
	assert.Equal(t, "medium", dangers[0].Severity)

	// Repeating the POI lookup is served from the cache.
	_, err = c.FindPointsOfInterest(context.Background(), areas)
	require.NoError(t, err)
	assert.Equal(t, 2, mt.GetTotalCallCount())
}

func TestOverpass_TransportError(t *testing.T) {
	mt := httpmock.NewMockTransport()
	mt.RegisterResponder("POST", "https://overpass.test/api/interpreter",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	c := NewOverpassClient("https://overpass.test/api/interpreter", mt, time.Second, 0)
	_, err := c.FindDangerZones(context.Background(), []types.PredictionArea{{Center: berlin, RadiusM: 500}})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamProvider))
}

func TestSearchBound_NarrowsLargeFrames(t *testing.T) {
	b, ok := searchBound([]types.PredictionArea{{Center: berlin, RadiusM: 30000}})
	require.True(t, ok)
	assert.LessOrEqual(t, b.Top()-b.Bottom(), maxSpanDeg+0.001)

	_, ok = searchBound(nil)
	assert.False(t, ok)
}
