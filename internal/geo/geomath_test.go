package geo

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawtrail/internal/types"
)

func TestDistanceKm_KnownPairs(t *testing.T) {
	london := types.LatLng{Lat: 51.5074, Lng: -0.1278}
	paris := types.LatLng{Lat: 48.8566, Lng: 2.3522}

	assert.InDelta(t, 343.5, DistanceKm(london, paris), 2.0)
	assert.InDelta(t, 0.0, DistanceKm(london, london), 1e-9)
	assert.InDelta(t, DistanceKm(london, paris), DistanceKm(paris, london), 1e-9)
}

func TestDestination_CardinalBearings(t *testing.T) {
	origin := types.LatLng{Lat: 0, Lng: 0}

	north, err := Destination(origin, 111.195, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, north.Lat, 0.001)
	assert.InDelta(t, 0.0, north.Lng, 0.001)

	east, err := Destination(origin, 111.195, math.Pi/2)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, east.Lat, 0.001)
	assert.InDelta(t, 1.0, east.Lng, 0.001)
}

func TestDestination_ZeroDistanceReturnsOrigin(t *testing.T) {
	origin := types.LatLng{Lat: 55.7558, Lng: 37.6173}
	p, err := Destination(origin, 0, 1.2)
	require.NoError(t, err)
	assert.InDelta(t, origin.Lat, p.Lat, 1e-9)
	assert.InDelta(t, origin.Lng, p.Lng, 1e-9)
}

func TestDestination_RoundTripWithinOnePercent(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 2000; i++ {
		origin := types.LatLng{
			Lat: rng.Float64()*170 - 85,
			Lng: rng.Float64()*360 - 180,
		}
		d := 0.001 + rng.Float64()*999.999
		theta := rng.Float64() * 2 * math.Pi

		dest, err := Destination(origin, d, theta)
		require.NoError(t, err)
		require.NoError(t, ValidateLatLng(dest))

		got := DistanceKm(origin, dest)
		assert.InEpsilon(t, d, got, 0.01, "origin=%v d=%v theta=%v", origin, d, theta)
	}
}

func TestDestination_AntimeridianWraps(t *testing.T) {
	p, err := Destination(types.LatLng{Lat: 0, Lng: 179.9}, 50, math.Pi/2)
	require.NoError(t, err)
	assert.Less(t, p.Lng, 0.0)
	assert.GreaterOrEqual(t, p.Lng, -180.0)
}

func TestDestination_RejectsInvalidInput(t *testing.T) {
	valid := types.LatLng{Lat: 10, Lng: 10}
	tests := []struct {
		name    string
		origin  types.LatLng
		dist    float64
		bearing float64
		field   string
	}{
		{"nan latitude", types.LatLng{Lat: math.NaN(), Lng: 0}, 1, 0, "latitude"},
		{"nan longitude", types.LatLng{Lat: 0, Lng: math.NaN()}, 1, 0, "longitude"},
		{"latitude out of range", types.LatLng{Lat: 91, Lng: 0}, 1, 0, "latitude"},
		{"longitude out of range", types.LatLng{Lat: 0, Lng: -181}, 1, 0, "longitude"},
		{"infinite latitude", types.LatLng{Lat: math.Inf(1), Lng: 0}, 1, 0, "latitude"},
		{"negative distance", valid, -1, 0, "distance"},
		{"nan distance", valid, math.NaN(), 0, "distance"},
		{"nan bearing", valid, 1, math.NaN(), "bearing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Destination(tt.origin, tt.dist, tt.bearing)
			require.Error(t, err)

			var geoErr *GeoError
			require.True(t, errors.As(err, &geoErr))
			assert.Equal(t, tt.field, geoErr.Field)
		})
	}
}

func TestValidateLatLng_Boundaries(t *testing.T) {
	assert.NoError(t, ValidateLatLng(types.LatLng{Lat: 90, Lng: 180}))
	assert.NoError(t, ValidateLatLng(types.LatLng{Lat: -90, Lng: -180}))
	assert.Error(t, ValidateLatLng(types.LatLng{Lat: -90.0001, Lng: 0}))
}
