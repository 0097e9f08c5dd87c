package prediction

import (
	"math"
	"math/rand/v2"

	"pawtrail/internal/calibration"
	"pawtrail/internal/geo"
	"pawtrail/internal/types"
)

// containment returns the empirical fraction of animals recovered within
// meters of the last-seen point, interpolated linearly between table anchors.
func containment(meters float64, curve []calibration.ContainmentPoint) float64 {
	if meters <= curve[0].Meters {
		return curve[0].Mass
	}
	for i := 1; i < len(curve); i++ {
		if meters <= curve[i].Meters {
			lo, hi := curve[i-1], curve[i]
			t := (meters - lo.Meters) / (hi.Meters - lo.Meters)
			return lo.Mass + t*(hi.Mass-lo.Mass)
		}
	}
	return curve[len(curve)-1].Mass
}

// temporalDecay is 1 until DecayStartHours, then decays exponentially.
func temporalDecay(hours float64, p calibration.AreaParams) float64 {
	if hours <= p.DecayStartHours {
		return 1
	}
	return math.Exp(-(hours - p.DecayStartHours) / p.DecayHours)
}

// spatialFalloff is the relative density at distance d from the center of a
// ring of radius r.
func spatialFalloff(d, r float64) float64 {
	if r <= 0 {
		return 0
	}
	x := d / r
	return math.Exp(-2 * x * x)
}

// generateAreas emits the rings for one time frame: a primary ring at the
// anchor, an expanded ring for every expansion whose threshold the frame
// passed, and a satellite ring for tracking breeds. The primary ring always
// comes first and every probability lies in [0, 1].
func generateAreas(
	anchor types.LatLng,
	frame types.PredictionTimeFrame,
	mp MovementProfile,
	radiusM float64,
	params calibration.AreaParams,
	rng *rand.Rand,
) ([]types.PredictionArea, error) {
	primaryP := clamp01(containment(radiusM, params.Containment) * temporalDecay(frame.Hours, params))

	areas := []types.PredictionArea{{
		Center:      anchor,
		RadiusM:     radiusM,
		Probability: primaryP,
		TimeFrame:   frame,
		Kind:        types.AreaPrimary,
	}}

	for _, exp := range params.Expansions {
		if frame.Hours < exp.AfterHours {
			continue
		}
		areas = append(areas, types.PredictionArea{
			Center:      anchor,
			RadiusM:     radiusM * exp.Factor,
			Probability: clamp01(primaryP * spatialFalloff((exp.Factor-1)*radiusM, radiusM)),
			TimeFrame:   frame,
			Kind:        types.AreaExpanded,
		})
	}

	sat := params.Satellite
	if mp.BreedID != "" && mp.BreedMultiplier >= sat.MinBreedMultiplier {
		offsetM := sat.OffsetFraction * radiusM
		bearing := rng.Float64() * 2 * math.Pi
		center, err := geo.Destination(anchor, offsetM/1000, bearing)
		if err != nil {
			return nil, err
		}
		areas = append(areas, types.PredictionArea{
			Center:      center,
			RadiusM:     sat.RadiusFraction * radiusM,
			Probability: clamp01(primaryP * spatialFalloff(offsetM, radiusM)),
			TimeFrame:   frame,
			Kind:        types.AreaSatellite,
		})
	}

	return areas, nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
