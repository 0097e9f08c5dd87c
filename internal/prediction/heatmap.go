package prediction

import (
	"math"
	"math/rand/v2"

	"pawtrail/internal/calibration"
	"pawtrail/internal/geo"
	"pawtrail/internal/types"
)

// anchorWeight is the weight of the last-seen point itself.
const anchorWeight = 1.0

// personalityPattern is a tag-specific hotspot shape. Distances are
// fractions of the frame's max radius.
type personalityPattern struct {
	trait    string
	weight   float64
	clusters int
	points   int
	minFrac  float64
	maxFrac  float64
	// ring places points evenly around the anchor at minFrac instead of
	// scattering them.
	ring bool
}

var personalityPatterns = []personalityPattern{
	// Friendly animals approach people: dense ring at residential distance.
	{trait: "friendly", weight: 0.6, clusters: 1, points: 16, minFrac: 0.25, ring: true},
	{trait: "curious", weight: 0.4, clusters: 2, points: 4, minFrac: 0.2, maxFrac: 0.9},
	{trait: "shy", weight: 0.35, clusters: 1, points: 8, minFrac: 0.3, maxFrac: 0.8},
	{trait: "fearful", weight: 0.35, clusters: 1, points: 12, minFrac: 0.5, maxFrac: 1.0},
	{trait: "food_motivated", weight: 0.55, clusters: 3, points: 4, minFrac: 0, maxFrac: 0.4},
}

// heatmapSynth draws a weighted point field for one time frame. All
// randomness comes from rng, so equal seeds give bit-identical output.
type heatmapSynth struct {
	params calibration.HeatmapParams
	decay  float64
	rng    *rand.Rand
	points []types.HeatmapPoint
}

// synthesizeHeatmap produces the point field for the areas of one frame.
func synthesizeHeatmap(
	anchor types.LatLng,
	areas []types.PredictionArea,
	mp MovementProfile,
	hours float64,
	tbl *calibration.Table,
	rng *rand.Rand,
) ([]types.HeatmapPoint, error) {
	s := &heatmapSynth{
		params: tbl.Heatmap,
		decay:  temporalDecay(hours, tbl.Areas),
		rng:    rng,
	}
	s.points = append(s.points, types.HeatmapPoint{Location: anchor, Weight: anchorWeight})

	maxR := maxExtentM(anchor, areas)
	if maxR <= 0 {
		return s.points, nil
	}

	if err := s.rings(anchor, maxR); err != nil {
		return nil, err
	}
	if err := s.attractors(anchor, maxR, mp); err != nil {
		return nil, err
	}
	if err := s.personality(anchor, maxR, mp); err != nil {
		return nil, err
	}
	for _, a := range areas {
		if a.Kind != types.AreaSatellite {
			continue
		}
		if err := s.cluster(a.Center, 0.5*a.RadiusM, s.params.ClusterPoints, a.Probability); err != nil {
			return nil, err
		}
	}
	return s.points, nil
}

// maxExtentM is the farthest distance from the anchor covered by any area.
func maxExtentM(anchor types.LatLng, areas []types.PredictionArea) float64 {
	var maxR float64
	for _, a := range areas {
		if r := geo.DistanceM(anchor, a.Center) + a.RadiusM; r > maxR {
			maxR = r
		}
	}
	return maxR
}

// rings lays out concentric rings whose point count grows with radius.
func (s *heatmapSynth) rings(anchor types.LatLng, maxR float64) error {
	for i := 1; i <= s.params.Rings; i++ {
		r := maxR * float64(i) / float64(s.params.Rings)
		n := s.params.BasePoints + s.params.PointsPerRing*(i-1)
		step := 2 * math.Pi / float64(n)
		base := s.tierWeight(r, maxR) * s.decay

		for j := 0; j < n; j++ {
			theta := float64(j)*step + s.signed()*s.params.AngleJitter*step/2
			p, err := geo.Destination(anchor, r/1000, theta)
			if err != nil {
				return err
			}
			s.add(p, base)
		}
	}
	return nil
}

func (s *heatmapSynth) tierWeight(r, maxR float64) float64 {
	for _, t := range s.params.Tiers {
		if t.MaxM > 0 && r <= t.MaxM {
			return t.Weight
		}
		if t.MaxFraction > 0 && r <= t.MaxFraction*maxR {
			return t.Weight
		}
	}
	return s.params.OuterWeight
}

// attractors places one cluster per behavioral coefficient above threshold.
func (s *heatmapSynth) attractors(anchor types.LatLng, maxR float64, mp MovementProfile) error {
	for _, coeff := range []float64{mp.Food, mp.Water, mp.Hiding} {
		if coeff <= s.params.AttractionThreshold {
			continue
		}
		center, err := geo.Destination(anchor,
			s.rng.Float64()*s.params.AttractionMaxFraction*maxR/1000,
			s.rng.Float64()*2*math.Pi)
		if err != nil {
			return err
		}
		spread := s.params.ClusterSpreadFraction * maxR
		if err := s.cluster(center, spread, s.params.ClusterPoints, coeff*s.decay); err != nil {
			return err
		}
	}
	return nil
}

func (s *heatmapSynth) personality(anchor types.LatLng, maxR float64, mp MovementProfile) error {
	for _, pat := range personalityPatterns {
		if !mp.HasTrait(pat.trait) {
			continue
		}
		w := pat.weight * s.decay

		if pat.ring {
			step := 2 * math.Pi / float64(pat.points)
			for j := 0; j < pat.points; j++ {
				theta := float64(j)*step + s.signed()*s.params.AngleJitter*step/2
				p, err := geo.Destination(anchor, pat.minFrac*maxR/1000, theta)
				if err != nil {
					return err
				}
				s.add(p, w)
			}
			continue
		}

		for c := 0; c < pat.clusters; c++ {
			frac := pat.minFrac + s.rng.Float64()*(pat.maxFrac-pat.minFrac)
			center, err := geo.Destination(anchor, frac*maxR/1000, s.rng.Float64()*2*math.Pi)
			if err != nil {
				return err
			}
			if err := s.cluster(center, s.params.ClusterSpreadFraction*maxR, pat.points, w); err != nil {
				return err
			}
		}
	}
	return nil
}

// cluster scatters n points within spreadM of center.
func (s *heatmapSynth) cluster(center types.LatLng, spreadM float64, n int, weight float64) error {
	for i := 0; i < n; i++ {
		p, err := geo.Destination(center, s.rng.Float64()*spreadM/1000, s.rng.Float64()*2*math.Pi)
		if err != nil {
			return err
		}
		s.add(p, weight)
	}
	return nil
}

// add appends a point with multiplicative jitter, clamped to [0, 1].
func (s *heatmapSynth) add(p types.LatLng, weight float64) {
	jitter := 1 + s.signed()*s.params.WeightJitter
	s.points = append(s.points, types.HeatmapPoint{Location: p, Weight: clamp01(weight * jitter)})
}

// signed returns a uniform value in [-1, 1).
func (s *heatmapSynth) signed() float64 {
	return s.rng.Float64()*2 - 1
}
