package prediction

import (
	"context"

	"pawtrail/internal/types"
)

// WeatherService reports the current condition at a coordinate. A nil
// snapshot with a nil error means no observation is available.
type WeatherService interface {
	CurrentCondition(ctx context.Context, at types.LatLng) (*types.WeatherSnapshot, error)
}

// GeocodingService resolves free-text addresses.
type GeocodingService interface {
	Resolve(ctx context.Context, address string) (*types.GeocodeResult, error)
}

// DangerZoneProvider lists hazards near the given areas. An empty result is
// valid.
type DangerZoneProvider interface {
	FindDangerZones(ctx context.Context, areas []types.PredictionArea) ([]types.DangerZone, error)
}

// PointOfInterestProvider lists attractors near the given areas. An empty
// result is valid.
type PointOfInterestProvider interface {
	FindPointsOfInterest(ctx context.Context, areas []types.PredictionArea) ([]types.PointOfInterest, error)
}
