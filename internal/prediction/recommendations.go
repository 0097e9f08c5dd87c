package prediction

import (
	"fmt"
	"time"

	"github.com/sj14/astral/pkg/astral"

	"pawtrail/internal/types"
)

// recommendationInput is the global context the rules evaluate. Hours is
// the elapsed time since the pet went missing.
type recommendationInput struct {
	hours            float64
	mp               MovementProfile
	weather          types.WeatherCondition
	weatherAvailable bool
	anchor           types.LatLng
	at               time.Time
}

type recommendationRule struct {
	when func(in recommendationInput) bool
	text func(in recommendationInput) string
}

func fixed(s string) func(recommendationInput) string {
	return func(recommendationInput) string { return s }
}

// recommendationRules are evaluated in order. A rule whose text is empty is
// skipped.
var recommendationRules = []recommendationRule{
	{
		when: func(in recommendationInput) bool { return in.hours <= 2 },
		text: fixed("Start searching now within walking distance; most pets are found close to where they went missing."),
	},
	{
		when: func(in recommendationInput) bool { return in.hours <= 24 },
		text: fixed("Alert neighbors and post the report in local lost-pet groups today."),
	},
	{
		when: func(in recommendationInput) bool { return in.hours > 24 },
		text: fixed("Contact every shelter, animal control office and vet clinic within the outer search ring."),
	},
	{
		when: func(in recommendationInput) bool { return in.hours > 72 },
		text: fixed("Set up a feeding station or humane trap at the last-seen point and watch it with a trail camera."),
	},
	{
		when: func(in recommendationInput) bool {
			return in.weather == types.WeatherRain || in.weather == types.WeatherStorm
		},
		text: fixed("Bad weather keeps animals sheltered: check porches, sheds, carports and under vehicles."),
	},
	{
		when: func(in recommendationInput) bool { return in.weather == types.WeatherSnow },
		text: fixed("Snow preserves tracks: look for paw prints around the last-seen point early in the day."),
	},
	{
		when: func(in recommendationInput) bool { return !in.weatherAvailable },
		text: fixed("Weather data was unavailable; refresh the prediction once current conditions are known."),
	},
	{
		when: func(in recommendationInput) bool { return in.mp.Species == types.SpeciesCat },
		text: fixed("Cats usually hide silently within a few houses: search at night with a flashlight and look for eye shine."),
	},
	{
		when: func(in recommendationInput) bool { return in.mp.BreedID != "" },
		text: fixed("Tracking breeds follow scent: walk the off-center satellite area along trails and field edges."),
	},
	{
		when: func(in recommendationInput) bool { return in.mp.HasTrait("fearful") || in.mp.HasTrait("shy") },
		text: fixed("Do not chase or call loudly; a frightened animal may bolt. Sit quietly nearby and let it come to you."),
	},
	{
		when: func(in recommendationInput) bool { return in.mp.HasTrait("friendly") },
		text: fixed("Friendly pets approach people: ask delivery drivers, mail carriers and dog walkers to watch for it."),
	},
	{
		when: func(in recommendationInput) bool { return in.mp.HasTrait("food_motivated") || in.mp.Food > 0.7 },
		text: fixed("Leave strong-smelling food near the last-seen point and check restaurant bins and dumpsters."),
	},
	{
		when: func(in recommendationInput) bool { return !in.at.IsZero() },
		text: twilightText,
	},
}

// twilightText names the civil dawn and dusk at the anchor. It returns ""
// where the sun does not cross the civil depression that day.
func twilightText(in recommendationInput) string {
	obs := astral.Observer{Latitude: in.anchor.Lat, Longitude: in.anchor.Lng}
	dawn, err := astral.Dawn(obs, in.at, astral.DepressionCivil)
	if err != nil {
		return ""
	}
	dusk, err := astral.Dusk(obs, in.at, astral.DepressionCivil)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("Search at civil dawn (%s UTC) and dusk (%s UTC), when lost animals move most and streets are quiet.",
		dawn.UTC().Format("15:04"), dusk.UTC().Format("15:04"))
}

// recommend evaluates every rule in order and returns the deduplicated texts.
func recommend(in recommendationInput) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(recommendationRules))
	for _, r := range recommendationRules {
		if !r.when(in) {
			continue
		}
		text := r.text(in)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
	}
	return out
}
