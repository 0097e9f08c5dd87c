// Package calibration holds the versioned constants of the movement model:
// distance buckets, multipliers, breed and personality lookup tables,
// probability and heatmap parameters, priority presets and the confidence
// table.
//
// A default table is embedded in the binary. Deployments may override it
// with a YAML file (CALIBRATION_FILE); overrides are validated as strictly
// as the default, and every prediction records the version it used.
package calibration

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Table is the complete calibration. It is read-only after Parse returns.
type Table struct {
	Version               string                         `yaml:"version" validate:"required"`
	DistanceBuckets       []DistanceBucket               `yaml:"distance_buckets" validate:"required,min=1,dive"`
	Caps                  Caps                           `yaml:"caps"`
	Species               map[string]SpeciesCoefficients `yaml:"species" validate:"required,dive"`
	Size                  map[string]float64             `yaml:"size" validate:"required,dive,gt=0"`
	Age                   AgeMultipliers                 `yaml:"age"`
	Environment           map[string]float64             `yaml:"environment" validate:"required,dive,gt=0"`
	Weather               map[string]float64             `yaml:"weather" validate:"required,dive,gt=0"`
	Breeds                []BreedEntry                   `yaml:"breeds" validate:"dive"`
	Personality           []PersonalityPreset            `yaml:"personality" validate:"dive"`
	Areas                 AreaParams                     `yaml:"areas"`
	Heatmap               HeatmapParams                  `yaml:"heatmap"`
	PriorityPresets       map[string]PriorityThresholds  `yaml:"priority_presets" validate:"required,min=1,dive"`
	DefaultPriorityPreset string                         `yaml:"default_priority_preset" validate:"required"`
	Confidence            ConfidenceTable                `yaml:"confidence"`
	Search                SearchParams                   `yaml:"search"`
}

// DistanceBucket maps an elapsed-hours bucket to a median travel distance.
type DistanceBucket struct {
	Hours  float64 `yaml:"hours" validate:"gt=0"`
	Meters float64 `yaml:"meters" validate:"gt=0"`
}

// Caps bound the final radius. EarlyMaxM applies while elapsed hours are at
// most EarlyHours.
type Caps struct {
	EarlyHours float64 `yaml:"early_hours" validate:"gte=0"`
	EarlyMaxM  float64 `yaml:"early_max_m" validate:"gt=0"`
	MaxM       float64 `yaml:"max_m" validate:"gt=0,gtefield=EarlyMaxM"`
}

// SpeciesCoefficients are the base behavioral coefficients of a species.
type SpeciesCoefficients struct {
	BaseSpeedKmh     float64 `yaml:"base_speed_kmh" validate:"gt=0"`
	Hiding           float64 `yaml:"hiding" validate:"gte=0,lte=1"`
	Water            float64 `yaml:"water" validate:"gte=0,lte=1"`
	Food             float64 `yaml:"food" validate:"gte=0,lte=1"`
	HumanInteraction float64 `yaml:"human_interaction" validate:"gte=0,lte=1"`
	RangeFactor      float64 `yaml:"range_factor" validate:"gt=0"`
}

// AgeMultipliers encode the juvenile and senior adjustments.
type AgeMultipliers struct {
	JuvenileBelowYears float64 `yaml:"juvenile_below_years" validate:"gte=0"`
	Juvenile           float64 `yaml:"juvenile" validate:"gt=0"`
	SeniorAboveYears   float64 `yaml:"senior_above_years" validate:"gtfield=JuvenileBelowYears"`
	Senior             float64 `yaml:"senior" validate:"gt=0"`
}

// BreedEntry is a canonical breed with its independence multiplier.
type BreedEntry struct {
	ID         string   `yaml:"id" validate:"required"`
	Species    string   `yaml:"species" validate:"required"`
	Multiplier float64  `yaml:"multiplier" validate:"gte=1,lte=3"`
	Aliases    []string `yaml:"aliases" validate:"required,min=1,dive,required"`
}

// PersonalityPreset is a discrete radius/approachability preset selected by
// personality tags.
type PersonalityPreset struct {
	ID               string   `yaml:"id" validate:"required"`
	Tags             []string `yaml:"tags" validate:"required,min=1,dive,required"`
	RadiusMultiplier float64  `yaml:"radius_multiplier" validate:"gt=0"`
	Approachability  float64  `yaml:"approachability" validate:"gte=0,lte=1"`
	FoodBonus        float64  `yaml:"food_bonus" validate:"gte=0,lte=1"`
}

// ContainmentPoint is one anchor of the empirical cumulative distance curve.
type ContainmentPoint struct {
	Meters float64 `yaml:"meters" validate:"gte=0"`
	Mass   float64 `yaml:"mass" validate:"gte=0,lte=1"`
}

// Expansion adds a ring at Factor times the radius after AfterHours.
type Expansion struct {
	AfterHours float64 `yaml:"after_hours" validate:"gte=0"`
	Factor     float64 `yaml:"factor" validate:"gt=1"`
}

// SatelliteParams configure the off-center tracking-pursuit ring.
type SatelliteParams struct {
	MinBreedMultiplier float64 `yaml:"min_breed_multiplier" validate:"gte=1"`
	OffsetFraction     float64 `yaml:"offset_fraction" validate:"gt=0,lte=2"`
	RadiusFraction     float64 `yaml:"radius_fraction" validate:"gt=0,lte=1"`
}

// AreaParams configure the distance-probability function and ring layout.
type AreaParams struct {
	Containment     []ContainmentPoint `yaml:"containment" validate:"required,min=2,dive"`
	DecayStartHours float64            `yaml:"decay_start_hours" validate:"gte=0"`
	DecayHours      float64            `yaml:"decay_hours" validate:"gt=0"`
	Expansions      []Expansion        `yaml:"expansions" validate:"dive"`
	Satellite       SatelliteParams    `yaml:"satellite"`
}

// WeightTier assigns Weight to points within MaxM meters, or within
// MaxFraction of the max radius when MaxM is zero.
type WeightTier struct {
	MaxM        float64 `yaml:"max_m" validate:"gte=0"`
	MaxFraction float64 `yaml:"max_fraction" validate:"gte=0,lte=1"`
	Weight      float64 `yaml:"weight" validate:"gte=0,lte=1"`
}

// HeatmapParams configure point synthesis.
type HeatmapParams struct {
	Rings                 int          `yaml:"rings" validate:"gte=1,lte=100"`
	BasePoints            int          `yaml:"base_points" validate:"gte=1"`
	PointsPerRing         int          `yaml:"points_per_ring" validate:"gte=0"`
	AngleJitter           float64      `yaml:"angle_jitter" validate:"gte=0,lte=1"`
	WeightJitter          float64      `yaml:"weight_jitter" validate:"gte=0,lt=1"`
	Tiers                 []WeightTier `yaml:"tiers" validate:"required,min=1,dive"`
	OuterWeight           float64      `yaml:"outer_weight" validate:"gte=0,lte=1"`
	AttractionThreshold   float64      `yaml:"attraction_threshold" validate:"gte=0,lte=1"`
	AttractionMaxFraction float64      `yaml:"attraction_max_fraction" validate:"gt=0,lte=1"`
	ClusterPoints         int          `yaml:"cluster_points" validate:"gte=1"`
	ClusterSpreadFraction float64      `yaml:"cluster_spread_fraction" validate:"gt=0,lte=1"`
}

// PriorityThresholds map elapsed hours to a priority class.
type PriorityThresholds struct {
	HighMaxHours   float64 `yaml:"high_max_hours" validate:"gt=0"`
	MediumMaxHours float64 `yaml:"medium_max_hours" validate:"gtfield=HighMaxHours"`
}

// ConfidenceStep is one row of the confidence lookup table.
type ConfidenceStep struct {
	MaxHours float64 `yaml:"max_hours" validate:"gt=0"`
	Score    float64 `yaml:"score" validate:"gte=0,lte=1"`
}

// ConfidenceTable is the recovery-rate calibrated confidence lookup.
type ConfidenceTable struct {
	Steps           []ConfidenceStep `yaml:"steps" validate:"required,min=1,dive"`
	Beyond          float64          `yaml:"beyond" validate:"gte=0,lte=1"`
	NoWeatherFactor float64          `yaml:"no_weather_factor" validate:"gt=0,lte=1"`
	Min             float64          `yaml:"min" validate:"gte=0,lte=1"`
	Max             float64          `yaml:"max" validate:"gtefield=Min,lte=1"`
}

// SearchParams drive the estimated search time.
type SearchParams struct {
	WalkingSpeedKmh    float64 `yaml:"walking_speed_kmh" validate:"gt=0"`
	SweepWidthM        float64 `yaml:"sweep_width_m" validate:"gt=0"`
	CoverageEfficiency float64 `yaml:"coverage_efficiency" validate:"gt=0,lte=1"`
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// Default returns the embedded calibration table. It panics if the embedded
// table is invalid, which is a build defect.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = Parse(defaultYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("calibration: embedded table invalid: %v", defaultErr))
	}
	return defaultTable
}

// DefaultYAML returns a copy of the embedded table source.
func DefaultYAML() []byte {
	return bytes.Clone(defaultYAML)
}

// Load reads and validates a calibration override file. An empty path
// returns the embedded default.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("calibration: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML calibration table. Unknown keys are
// rejected.
func Parse(data []byte) (*Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t Table
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("calibration: decoding: %w", err)
	}
	if err := validator.New().Struct(t); err != nil {
		return nil, fmt.Errorf("calibration: validation: %w", err)
	}
	if err := t.check(); err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	t.normalize()
	return &t, nil
}

// check enforces the ordering invariants that struct tags cannot express.
func (t *Table) check() error {
	for i := 1; i < len(t.DistanceBuckets); i++ {
		prev, cur := t.DistanceBuckets[i-1], t.DistanceBuckets[i]
		if cur.Hours <= prev.Hours {
			return fmt.Errorf("distance bucket %d: hours must be strictly increasing", i)
		}
		if cur.Meters < prev.Meters {
			return fmt.Errorf("distance bucket %d: meters must be non-decreasing", i)
		}
	}
	for i := 1; i < len(t.Areas.Containment); i++ {
		prev, cur := t.Areas.Containment[i-1], t.Areas.Containment[i]
		if cur.Meters <= prev.Meters || cur.Mass < prev.Mass {
			return fmt.Errorf("containment point %d: curve must be increasing", i)
		}
	}
	for i := 1; i < len(t.Confidence.Steps); i++ {
		prev, cur := t.Confidence.Steps[i-1], t.Confidence.Steps[i]
		if cur.MaxHours <= prev.MaxHours {
			return fmt.Errorf("confidence step %d: hours must be strictly increasing", i)
		}
		if cur.Score > prev.Score {
			return fmt.Errorf("confidence step %d: scores must be non-increasing", i)
		}
	}
	if last := t.Confidence.Steps[len(t.Confidence.Steps)-1]; t.Confidence.Beyond > last.Score {
		return errors.New("confidence: beyond score exceeds last step")
	}
	for _, tier := range t.Heatmap.Tiers {
		if (tier.MaxM == 0) == (tier.MaxFraction == 0) {
			return errors.New("heatmap tier: exactly one of max_m and max_fraction must be set")
		}
	}
	if _, ok := t.PriorityPresets[t.DefaultPriorityPreset]; !ok {
		return fmt.Errorf("default priority preset %q is not defined", t.DefaultPriorityPreset)
	}
	for _, key := range []string{"dog", "cat"} {
		if _, ok := t.Species[key]; !ok {
			return fmt.Errorf("species %q missing", key)
		}
	}
	return nil
}

// normalize folds every alias and tag so lookups only normalize the input
// side.
func (t *Table) normalize() {
	for i := range t.Breeds {
		for j, a := range t.Breeds[i].Aliases {
			t.Breeds[i].Aliases[j] = NormalizeText(a)
		}
	}
	for i := range t.Personality {
		for j, tag := range t.Personality[i].Tags {
			t.Personality[i].Tags[j] = NormalizeText(tag)
		}
	}
	sort.SliceStable(t.Areas.Expansions, func(i, j int) bool {
		return t.Areas.Expansions[i].AfterHours < t.Areas.Expansions[j].AfterHours
	})
}

// PriorityPreset returns the named threshold preset; an empty name selects
// the table default.
func (t *Table) PriorityPreset(name string) (PriorityThresholds, bool) {
	if name == "" {
		name = t.DefaultPriorityPreset
	}
	p, ok := t.PriorityPresets[name]
	return p, ok
}

// PresetNames returns the defined priority preset names in sorted order.
func (t *Table) PresetNames() []string {
	names := make([]string, 0, len(t.PriorityPresets))
	for n := range t.PriorityPresets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// YAML renders the table back to YAML.
func (t *Table) YAML() ([]byte, error) {
	return yaml.Marshal(t)
}
