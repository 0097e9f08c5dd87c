package prediction

import (
	"fmt"
	"math"
	"strings"

	"pawtrail/internal/calibration"
	"pawtrail/internal/geo"
	"pawtrail/internal/types"
)

// prioritize maps elapsed hours to a priority class.
func prioritize(hours float64, th calibration.PriorityThresholds) types.Priority {
	switch {
	case hours <= th.HighMaxHours:
		return types.PriorityHigh
	case hours <= th.MediumMaxHours:
		return types.PriorityMedium
	default:
		return types.PriorityLow
	}
}

var timeStrategies = []struct {
	maxHours float64
	text     string
}{
	{6, "Search the primary ring on foot right away: walk the last-seen route, check under cars and porches, and leave a worn item of clothing at the last-seen point."},
	{24, "Canvass neighbors inside the primary ring; ask them to check garages, sheds and yards, and collect any camera footage."},
	{72, "Work the outer rings: post flyers at intersections and shops, and register the report with every shelter and vet clinic in range."},
	{math.Inf(1), "Run a long-range campaign: revisit shelters in person, set up feeding stations along travel corridors and keep online listings current."},
}

var sizeNotes = map[types.Size]string{
	types.SizeSmall:  "Small animals hide in tight spaces: check under decks, in hedges, drainage pipes and basement window wells.",
	types.SizeMedium: "Check parks, alleys and sheltered corners along common walking routes.",
	types.SizeLarge:  "Large animals travel farther and are noticed: gather sighting reports along roads, trails and open fields.",
}

var environmentNotes = map[types.Environment]string{
	types.EnvironmentUrban:    "Urban area: focus on alleys, parking garages, courtyards and building basements; traffic funnels movement.",
	types.EnvironmentSuburban: "Suburban area: search backyards, greenbelts, school grounds and parks.",
	types.EnvironmentRural:    "Rural area: cover field edges, tree lines, farm outbuildings and stream banks; open terrain extends travel.",
}

// searchStrategy assembles the per-zone guidance: elapsed-time strategy,
// size note, environment note and, for independent breeds, a breed note.
func searchStrategy(hours float64, mp MovementProfile, env types.Environment) string {
	var lines []string
	for _, ts := range timeStrategies {
		if hours <= ts.maxHours {
			lines = append(lines, ts.text)
			break
		}
	}
	if note, ok := sizeNotes[mp.Size]; ok {
		lines = append(lines, note)
	}
	if env == "" {
		env = types.EnvironmentSuburban
	}
	if note, ok := environmentNotes[env]; ok {
		lines = append(lines, note)
	}
	if mp.BreedID != "" {
		lines = append(lines, fmt.Sprintf(
			"Independent or tracking breed (%s): expect scent-driven travel off-center along trails and field edges; check the satellite area.",
			strings.ReplaceAll(mp.BreedID, "_", " ")))
	}
	return strings.Join(lines, "\n")
}

// sweptAreaKm2 is the ground to cover for a zone: the largest concentric
// ring plus every off-center disc. Nested rings are not double counted.
func sweptAreaKm2(anchor types.LatLng, areas []types.PredictionArea) float64 {
	var concentricM, extra float64
	for _, a := range areas {
		rKm := a.RadiusM / 1000
		if a.Kind == types.AreaSatellite || geo.DistanceM(anchor, a.Center) > 1 {
			extra += math.Pi * rKm * rKm
			continue
		}
		concentricM = math.Max(concentricM, a.RadiusM)
	}
	rKm := concentricM / 1000
	return math.Pi*rKm*rKm + extra
}

// estimatedSearchMinutes converts swept area into walking time at the
// calibrated sweep rate.
func estimatedSearchMinutes(anchor types.LatLng, areas []types.PredictionArea, p calibration.SearchParams) float64 {
	rateKm2PerHour := p.WalkingSpeedKmh * (p.SweepWidthM / 1000) * p.CoverageEfficiency
	minutes := sweptAreaKm2(anchor, areas) / rateKm2PerHour * 60
	return math.Round(minutes)
}
