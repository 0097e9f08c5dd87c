package prediction

import (
	"math"

	"pawtrail/internal/calibration"
)

// confidence returns the overall score for the elapsed hours. It is
// non-increasing in hours and always within [Min, Max].
func confidence(hours float64, weatherAvailable bool, ct calibration.ConfidenceTable) float64 {
	score := ct.Beyond
	for _, step := range ct.Steps {
		if hours <= step.MaxHours {
			score = step.Score
			break
		}
	}
	if !weatherAvailable {
		score *= ct.NoWeatherFactor
	}
	if math.IsNaN(score) {
		return ct.Min
	}
	return math.Max(ct.Min, math.Min(ct.Max, score))
}
