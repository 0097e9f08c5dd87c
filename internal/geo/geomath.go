// Package geo provides spherical-earth geodesic helpers and GeoJSON export
// for prediction results.
//
// All functions are pure. Invalid input (NaN, out-of-range coordinates,
// negative distances) is reported as a *GeoError and never replaced by a
// default location.
package geo

import (
	"fmt"
	"math"

	"pawtrail/internal/types"
)

// EarthRadiusKm is the mean earth radius used by all calculations.
const EarthRadiusKm = 6371.0

// Coordinate bounds.
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLng = -180.0
	MaxLng = 180.0
)

// GeoError reports an invalid geodesic input.
type GeoError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *GeoError) Error() string {
	return fmt.Sprintf("geo: invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

// ValidateLatLng checks that p is finite and within WGS84 bounds.
func ValidateLatLng(p types.LatLng) error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) {
		return &GeoError{Field: "latitude", Value: p.Lat, Reason: "not a finite number"}
	}
	if math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return &GeoError{Field: "longitude", Value: p.Lng, Reason: "not a finite number"}
	}
	if p.Lat < MinLat || p.Lat > MaxLat {
		return &GeoError{Field: "latitude", Value: p.Lat, Reason: "must be between -90 and 90"}
	}
	if p.Lng < MinLng || p.Lng > MaxLng {
		return &GeoError{Field: "longitude", Value: p.Lng, Reason: "must be between -180 and 180"}
	}
	return nil
}

// Destination returns the point reached by travelling distanceKm from origin
// along the initial bearing (radians, clockwise from north).
func Destination(origin types.LatLng, distanceKm, bearingRad float64) (types.LatLng, error) {
	if err := ValidateLatLng(origin); err != nil {
		return types.LatLng{}, err
	}
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return types.LatLng{}, &GeoError{Field: "distance", Value: distanceKm, Reason: "must be a finite non-negative number"}
	}
	if math.IsNaN(bearingRad) || math.IsInf(bearingRad, 0) {
		return types.LatLng{}, &GeoError{Field: "bearing", Value: bearingRad, Reason: "not a finite number"}
	}

	lat1 := toRad(origin.Lat)
	lng1 := toRad(origin.Lng)
	delta := distanceKm / EarthRadiusKm

	sinLat2 := math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(bearingRad)
	lat2 := math.Asin(clampUnit(sinLat2))
	lng2 := lng1 + math.Atan2(
		math.Sin(bearingRad)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	return types.LatLng{
		Lat: toDeg(lat2),
		Lng: normalizeLng(toDeg(lng2)),
	}, nil
}

// DistanceKm returns the haversine great-circle distance between a and b.
func DistanceKm(a, b types.LatLng) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(clampUnit(h)))
}

// DistanceM is DistanceKm in meters.
func DistanceM(a, b types.LatLng) float64 {
	return DistanceKm(a, b) * 1000
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// normalizeLng wraps a longitude into [-180, 180].
func normalizeLng(lng float64) float64 {
	lng = math.Mod(lng+540, 360) - 180
	if lng == -180 {
		return 180
	}
	return lng
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
