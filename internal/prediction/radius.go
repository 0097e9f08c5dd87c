package prediction

import (
	"math"

	"pawtrail/internal/calibration"
	"pawtrail/internal/types"
)

// RadiusInput is everything a RadiusModel may use for one time frame.
// Weather is empty when no condition is known.
type RadiusInput struct {
	Profile     MovementProfile
	Hours       float64
	Weather     types.WeatherCondition
	Environment types.Environment
}

// RadiusBreakdown explains a computed radius. Guarded lists the factors
// that were non-finite, non-positive or absent from the calibration table
// and were replaced by 1.0.
type RadiusBreakdown struct {
	BaseM      float64
	Multiplier float64
	CapM       float64
	RadiusM    float64
	Guarded    []string
}

// RadiusModel computes the likely travel radius for a time frame.
// Implementations must return a finite RadiusM > 0 that is non-decreasing
// in Hours when every other input is held fixed.
type RadiusModel interface {
	Radius(in RadiusInput) RadiusBreakdown
}

// CalibratedRadiusModel is the default model: a distance bucket scaled by
// profile, environment and weather multipliers, then capped.
type CalibratedRadiusModel struct {
	table *calibration.Table
}

var _ RadiusModel = (*CalibratedRadiusModel)(nil)

// NewCalibratedRadiusModel builds the default model over a calibration table.
func NewCalibratedRadiusModel(table *calibration.Table) *CalibratedRadiusModel {
	return &CalibratedRadiusModel{table: table}
}

// baseDistanceM returns the median recovery distance for the elapsed-hours
// bucket containing hours. Hours past the last bucket use the last bucket.
func (m *CalibratedRadiusModel) baseDistanceM(hours float64) float64 {
	buckets := m.table.DistanceBuckets
	for _, b := range buckets {
		if hours <= b.Hours {
			return b.Meters
		}
	}
	return buckets[len(buckets)-1].Meters
}

// capM returns the radius ceiling for the given elapsed hours.
func (m *CalibratedRadiusModel) capM(hours float64) float64 {
	if hours <= m.table.Caps.EarlyHours {
		return m.table.Caps.EarlyMaxM
	}
	return m.table.Caps.MaxM
}

// Radius implements RadiusModel.
func (m *CalibratedRadiusModel) Radius(in RadiusInput) RadiusBreakdown {
	out := RadiusBreakdown{
		BaseM:      m.baseDistanceM(in.Hours),
		CapM:       m.capM(in.Hours),
		Multiplier: 1,
	}

	envFactor, envOK := m.environmentFactor(in.Environment)
	weatherFactor, weatherOK := m.weatherFactor(in.Weather)
	if !envOK {
		envFactor = math.NaN()
	}
	if !weatherOK {
		weatherFactor = math.NaN()
	}

	factors := []struct {
		name  string
		value float64
	}{
		{"size", in.Profile.SizeMultiplier},
		{"breed", in.Profile.BreedMultiplier},
		{"age", in.Profile.AgeMultiplier},
		{"species_range", in.Profile.RangeFactor},
		{"personality", personalityFactor(in.Profile)},
		{"environment", envFactor},
		{"weather", weatherFactor},
	}
	for _, f := range factors {
		if !usableFactor(f.value) {
			out.Guarded = append(out.Guarded, f.name)
			continue
		}
		out.Multiplier *= f.value
	}

	r := out.BaseM * out.Multiplier
	if !usableFactor(r) {
		out.Guarded = append(out.Guarded, "radius")
		r = out.BaseM
	}
	out.RadiusM = math.Min(r, out.CapM)
	return out
}

func personalityFactor(mp MovementProfile) float64 {
	if mp.Personality == "" {
		return 1
	}
	return mp.PersonalityRadius
}

// environmentFactor reports false for an environment the table does not
// know. An empty environment means suburban.
func (m *CalibratedRadiusModel) environmentFactor(env types.Environment) (float64, bool) {
	if env == "" {
		env = types.EnvironmentSuburban
	}
	v, ok := m.table.Environment[string(env)]
	return v, ok
}

// weatherFactor reports false for a condition the table does not know. An
// empty condition means no weather is known and is neutral.
func (m *CalibratedRadiusModel) weatherFactor(w types.WeatherCondition) (float64, bool) {
	if w == "" {
		return 1, true
	}
	v, ok := m.table.Weather[string(w)]
	return v, ok
}

func usableFactor(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
