package prediction

import (
	"log/slog"
	"math"
	"strings"

	"pawtrail/internal/calibration"
	"pawtrail/internal/types"
)

// MovementProfile is the behavioral view of a pet derived from its
// PetProfile. It is computed fresh for every prediction and never mutated.
type MovementProfile struct {
	Species types.Species

	BaseSpeedKmh     float64
	Hiding           float64
	Water            float64
	Food             float64
	HumanInteraction float64
	RangeFactor      float64

	BreedID         string
	BreedMultiplier float64
	AgeMultiplier   float64
	SizeMultiplier  float64
	Size            types.Size

	// Personality is the dominant preset ID ("" when no tag matched).
	// Traits lists every matched preset in table order; the hotspot and
	// recommendation rules use all of them, the radius only the dominant one.
	Personality       string
	PersonalityRadius float64
	Approachability   float64
	Traits            []string
}

// HasTrait reports whether any personality tag matched the preset.
func (mp MovementProfile) HasTrait(id string) bool {
	for _, t := range mp.Traits {
		if t == id {
			return true
		}
	}
	return false
}

// normalizeProfile maps a PetProfile onto the calibration table. It returns
// an InvalidProfile AppError for an unknown species; every other gap falls
// back to a neutral multiplier. Non-finite inputs are reported in guards.
func normalizeProfile(p types.PetProfile, tbl *calibration.Table, logger *slog.Logger) (MovementProfile, []string, error) {
	species, ok := types.ParseSpecies(string(p.Species))
	if !ok {
		return MovementProfile{}, nil, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidProfile,
			"species must be one of: dog, cat",
			nil,
			map[string]any{"field": "species", "value": string(p.Species)},
		)
	}
	coeff := tbl.Species[string(species)]

	mp := MovementProfile{
		Species:          species,
		BaseSpeedKmh:     coeff.BaseSpeedKmh,
		Hiding:           coeff.Hiding,
		Water:            coeff.Water,
		Food:             coeff.Food,
		HumanInteraction: coeff.HumanInteraction,
		RangeFactor:      coeff.RangeFactor,
		BreedMultiplier:  1.0,
		AgeMultiplier:    1.0,
		SizeMultiplier:   1.0,
		Size:             types.SizeMedium,
		Approachability:  coeff.HumanInteraction,
	}
	var guards []string

	switch size := types.Size(strings.ToLower(strings.TrimSpace(string(p.Size)))); size {
	case types.SizeSmall, types.SizeMedium, types.SizeLarge:
		mp.Size = size
		mp.SizeMultiplier = tbl.Size[string(size)]
	default:
		logger.Info("size missing or unrecognized; using neutral multiplier",
			"pet_id", p.ID, "size", string(p.Size))
	}

	if p.AgeYears != nil {
		age := *p.AgeYears
		switch {
		case math.IsNaN(age) || math.IsInf(age, 0) || age < 0:
			guards = append(guards, "age")
		case age < tbl.Age.JuvenileBelowYears:
			mp.AgeMultiplier = tbl.Age.Juvenile
		case age > tbl.Age.SeniorAboveYears:
			mp.AgeMultiplier = tbl.Age.Senior
		}
	}

	if entry, ok := lookupBreed(p.Breed, species, tbl.Breeds); ok {
		mp.BreedID = entry.ID
		mp.BreedMultiplier = entry.Multiplier
	}

	applyPersonality(&mp, p.Personality, tbl.Personality)

	return mp, guards, nil
}

// lookupBreed matches free breed text against the canonical breed table.
// When several aliases match ("greyhound" also contains "hound"), the entry
// with the largest multiplier wins.
func lookupBreed(raw string, species types.Species, breeds []calibration.BreedEntry) (calibration.BreedEntry, bool) {
	text := calibration.NormalizeText(raw)
	if text == "" {
		return calibration.BreedEntry{}, false
	}

	var (
		best  calibration.BreedEntry
		found bool
	)
	for _, b := range breeds {
		if b.Species != string(species) {
			continue
		}
		for _, alias := range b.Aliases {
			if alias != "" && strings.Contains(text, alias) {
				if !found || b.Multiplier > best.Multiplier {
					best = b
					found = true
				}
				break
			}
		}
	}
	return best, found
}

// applyPersonality resolves tags to presets. The dominant preset is the one
// with the largest radius multiplier; ties keep table order.
func applyPersonality(mp *MovementProfile, tags []string, presets []calibration.PersonalityPreset) {
	normalized := make([]string, 0, len(tags))
	for _, t := range tags {
		if n := calibration.NormalizeText(t); n != "" {
			normalized = append(normalized, n)
		}
	}
	if len(normalized) == 0 {
		return
	}

	var dominant *calibration.PersonalityPreset
	for i := range presets {
		preset := &presets[i]
		if !matchesAny(normalized, preset.Tags) {
			continue
		}
		mp.Traits = append(mp.Traits, preset.ID)
		mp.Food = math.Min(1, mp.Food+preset.FoodBonus)
		if dominant == nil || preset.RadiusMultiplier > dominant.RadiusMultiplier {
			dominant = preset
		}
	}
	if dominant == nil {
		return
	}
	mp.Personality = dominant.ID
	mp.PersonalityRadius = dominant.RadiusMultiplier
	mp.Approachability = dominant.Approachability
}

// matchesAny reports whether any tag contains an alias at the start of a
// word. Aliases may be stems ("дружелюб") or span words ("food motivated").
// A word prefixed in place ("unfriendly") or a match right after a negation
// ("not friendly") does not count.
func matchesAny(tags, aliases []string) bool {
	for _, t := range tags {
		words := strings.Fields(t)
		for i := range words {
			if i > 0 && negations[words[i-1]] {
				continue
			}
			rest := strings.Join(words[i:], " ")
			for _, a := range aliases {
				if a != "" && strings.HasPrefix(rest, a) {
					return true
				}
			}
		}
	}
	return false
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "non": true, "un": true,
	"не": true, "нет": true, "ни": true,
}
