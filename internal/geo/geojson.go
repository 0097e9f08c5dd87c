package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"pawtrail/internal/types"
)

// DefaultCircleSegments is the vertex count used to approximate a ring.
const DefaultCircleSegments = 64

// Feature "layer" property values, used by map clients to style features.
const (
	LayerAnchor     = "anchor"
	LayerArea       = "area"
	LayerHeatmap    = "heatmap"
	LayerDangerZone = "danger_zone"
	LayerPOI        = "point_of_interest"
)

// CirclePolygon approximates a geodesic circle as a closed polygon.
func CirclePolygon(center types.LatLng, radiusM float64, segments int) (orb.Polygon, error) {
	if segments < 8 {
		segments = 8
	}
	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		bearing := 2 * math.Pi * float64(i) / float64(segments)
		p, err := Destination(center, radiusM/1000, bearing)
		if err != nil {
			return nil, err
		}
		ring = append(ring, toPoint(p))
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}, nil
}

// FeatureCollection renders a prediction result as GeoJSON: the anchor, one
// polygon per prediction area, weighted heatmap points, danger zones and
// points of interest. When includeHeatmap is false the point field is
// omitted, which keeps zone-only exports small.
func FeatureCollection(result *types.PredictionResult, includeHeatmap bool) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()

	anchor := geojson.NewFeature(toPoint(result.Anchor))
	anchor.Properties["layer"] = LayerAnchor
	anchor.Properties["prediction_id"] = result.ID
	anchor.Properties["confidence"] = result.ConfidenceScore
	fc.Append(anchor)

	for _, zone := range result.SearchZones {
		for _, area := range zone.Areas {
			poly, err := CirclePolygon(area.Center, area.RadiusM, DefaultCircleSegments)
			if err != nil {
				return nil, err
			}
			f := geojson.NewFeature(poly)
			f.Properties["layer"] = LayerArea
			f.Properties["zone_id"] = zone.ID
			f.Properties["priority"] = string(zone.Priority)
			f.Properties["kind"] = string(area.Kind)
			f.Properties["probability"] = area.Probability
			f.Properties["radius_m"] = area.RadiusM
			f.Properties["hours"] = area.TimeFrame.Hours
			f.Properties["label"] = area.TimeFrame.Label
			fc.Append(f)
		}
		for _, dz := range zone.DangerZones {
			f := geojson.NewFeature(toPoint(dz.Location))
			f.Properties["layer"] = LayerDangerZone
			f.Properties["zone_id"] = zone.ID
			f.Properties["type"] = dz.Type
			f.Properties["severity"] = dz.Severity
			if dz.Name != "" {
				f.Properties["name"] = dz.Name
			}
			fc.Append(f)
		}
		for _, poi := range zone.PointsOfInterest {
			f := geojson.NewFeature(toPoint(poi.Location))
			f.Properties["layer"] = LayerPOI
			f.Properties["zone_id"] = zone.ID
			f.Properties["type"] = poi.Type
			f.Properties["attraction_score"] = poi.AttractionScore
			if poi.Name != "" {
				f.Properties["name"] = poi.Name
			}
			fc.Append(f)
		}
	}

	if includeHeatmap {
		for _, hp := range result.HeatmapData {
			f := geojson.NewFeature(toPoint(hp.Location))
			f.Properties["layer"] = LayerHeatmap
			f.Properties["weight"] = hp.Weight
			fc.Append(f)
		}
	}

	return fc, nil
}

// Bound returns the bounding box covering every given area.
func Bound(areas []types.PredictionArea) (orb.Bound, bool) {
	var (
		b     orb.Bound
		found bool
	)
	for _, a := range areas {
		poly, err := CirclePolygon(a.Center, a.RadiusM, 16)
		if err != nil {
			continue
		}
		if !found {
			b = poly.Bound()
			found = true
			continue
		}
		b = b.Union(poly.Bound())
	}
	return b, found
}

func toPoint(p types.LatLng) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}
