package types

import "strings"

// Species of the missing animal.
type Species string

const (
	SpeciesDog Species = "dog"
	SpeciesCat Species = "cat"
)

// ParseSpecies normalizes free text to a Species.
func ParseSpecies(s string) (Species, bool) {
	switch Species(strings.ToLower(strings.TrimSpace(s))) {
	case SpeciesDog:
		return SpeciesDog, true
	case SpeciesCat:
		return SpeciesCat, true
	}
	return "", false
}

// Size bucket of the animal.
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// Environment classifies the terrain around the anchor.
type Environment string

const (
	EnvironmentUrban    Environment = "urban"
	EnvironmentSuburban Environment = "suburban"
	EnvironmentRural    Environment = "rural"
)

// WeatherCondition is the coarse category used by the movement model.
type WeatherCondition string

const (
	WeatherClear WeatherCondition = "clear"
	WeatherRain  WeatherCondition = "rain"
	WeatherSnow  WeatherCondition = "snow"
	WeatherStorm WeatherCondition = "storm"
)

// Priority of a search zone.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// AreaKind distinguishes the rings emitted for one time frame.
type AreaKind string

const (
	AreaPrimary   AreaKind = "primary"
	AreaExpanded  AreaKind = "expanded"
	AreaSatellite AreaKind = "satellite"
)
