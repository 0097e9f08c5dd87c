package types

import "time"

// LatLng is a WGS84 coordinate in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// PetProfile is the immutable input to a prediction run. LastSeenLocation is
// optional only when LastSeenAddress can be geocoded.
type PetProfile struct {
	ID               string           `json:"id"`
	Name             string           `json:"name,omitempty"`
	Species          Species          `json:"species" validate:"required,oneof=dog cat"`
	Breed            string           `json:"breed,omitempty" validate:"max=120"`
	AgeYears         *float64         `json:"age_years,omitempty" validate:"omitempty,gte=0,lte=40"`
	Size             Size             `json:"size,omitempty"`
	Personality      []string         `json:"personality,omitempty" validate:"max=16,dive,max=64"`
	LastSeenLocation *LatLng          `json:"last_seen_location,omitempty" validate:"required_without=LastSeenAddress"`
	LastSeenAddress  string           `json:"last_seen_address,omitempty" validate:"max=512"`
	LastSeenTime     time.Time        `json:"last_seen_time"`
	WeatherCondition *WeatherSnapshot `json:"weather_condition,omitempty"`
	Environment      Environment      `json:"environment,omitempty" validate:"omitempty,oneof=urban suburban rural"`
}

// WeatherSnapshot is the current condition at a coordinate as reported by a
// WeatherService, or as supplied by the caller.
type WeatherSnapshot struct {
	TemperatureC    float64          `json:"temperature_c"`
	PrecipitationMM float64          `json:"precipitation_mm"`
	WindSpeedMS     float64          `json:"wind_speed_ms"`
	Condition       WeatherCondition `json:"condition" validate:"omitempty,oneof=clear rain snow storm"`
	ObservedAt      time.Time        `json:"observed_at"`
	Source          string           `json:"source,omitempty"`
}

// PredictionTimeFrame is one caller-supplied horizon, e.g. {6, "6 hours"}.
type PredictionTimeFrame struct {
	Hours float64 `json:"hours" validate:"gt=0,lte=8760"`
	Label string  `json:"label"`
}

// PredictionArea is one probability-weighted ring for a time frame.
type PredictionArea struct {
	Center      LatLng              `json:"center"`
	RadiusM     float64             `json:"radius_m"`
	Probability float64             `json:"probability"`
	TimeFrame   PredictionTimeFrame `json:"time_frame"`
	Kind        AreaKind            `json:"kind"`
}

// HeatmapPoint is a discretized intensity sample. Weights are independent
// per-point intensities and do not sum to one.
type HeatmapPoint struct {
	Location LatLng  `json:"location"`
	Weight   float64 `json:"weight"`
}

// DangerZone is a hazard near a search zone (road, water body, construction).
type DangerZone struct {
	Location LatLng `json:"location"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
}

// PointOfInterest is a place a lost animal may be drawn to.
type PointOfInterest struct {
	Location        LatLng  `json:"location"`
	Name            string  `json:"name,omitempty"`
	Type            string  `json:"type"`
	AttractionScore float64 `json:"attraction_score"`
}

// SearchZone groups the areas of one time frame with its priority and
// search guidance.
type SearchZone struct {
	ID                         string              `json:"id"`
	TimeFrame                  PredictionTimeFrame `json:"time_frame"`
	Priority                   Priority            `json:"priority"`
	Areas                      []PredictionArea    `json:"areas"`
	DangerZones                []DangerZone        `json:"danger_zones"`
	PointsOfInterest           []PointOfInterest   `json:"points_of_interest"`
	SearchStrategy             string              `json:"search_strategy"`
	EstimatedSearchTimeMinutes float64             `json:"estimated_search_time_minutes"`
}

// PredictionResult is the sole output artifact of a prediction run. It is
// owned by the caller once returned.
type PredictionResult struct {
	ID                 string         `json:"id"`
	PetProfile         PetProfile     `json:"pet_profile"`
	Anchor             LatLng         `json:"anchor"`
	SearchZones        []SearchZone   `json:"search_zones"`
	HeatmapData        []HeatmapPoint `json:"heatmap_data"`
	Recommendations    []string       `json:"recommendations"`
	ConfidenceScore    float64        `json:"confidence_score"`
	LastUpdated        time.Time      `json:"last_updated"`
	Degraded           bool           `json:"degraded"`
	DegradedReasons    []string       `json:"degraded_reasons,omitempty"`
	CalibrationVersion string         `json:"calibration_version"`
	PriorityPreset     string         `json:"priority_preset"`
	Seed               uint64         `json:"seed"`
}

// GeocodeResult is a resolved address.
type GeocodeResult struct {
	Location    LatLng `json:"location"`
	DisplayName string `json:"display_name,omitempty"`
}
