package prediction

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawtrail/internal/calibration"
	"pawtrail/internal/geo"
	"pawtrail/internal/types"
)

var nyc = types.LatLng{Lat: 40.7128, Lng: -74.0060}

func mustProfile(t *testing.T, p types.PetProfile) MovementProfile {
	t.Helper()
	mp, guards, err := normalizeProfile(p, calibration.Default(), discardLogger())
	require.NoError(t, err)
	require.Empty(t, guards)
	return mp
}

// --- ProfileNormalizer ---

func TestNormalizeProfile_Breeds(t *testing.T) {
	tests := []struct {
		species types.Species
		breed   string
		wantID  string
		wantMul float64
	}{
		{types.SpeciesDog, "Siberian Husky", "siberian_husky", 2.0},
		{types.SpeciesDog, "Сибирский хаски", "siberian_husky", 2.0},
		{types.SpeciesDog, "Greyhound", "greyhound", 1.5},
		{types.SpeciesDog, "Jack-Russell terrier", "jack_russell", 1.4},
		{types.SpeciesDog, "Labrador", "", 1.0},
		{types.SpeciesDog, "", "", 1.0},
		{types.SpeciesCat, "Bengal", "bengal", 1.4},
		{types.SpeciesDog, "Bengal", "", 1.0},
	}
	for _, tt := range tests {
		t.Run(string(tt.species)+"/"+tt.breed, func(t *testing.T) {
			mp := mustProfile(t, types.PetProfile{Species: tt.species, Breed: tt.breed})
			assert.Equal(t, tt.wantID, mp.BreedID)
			assert.Equal(t, tt.wantMul, mp.BreedMultiplier)
		})
	}
}

func TestNormalizeProfile_AgeAndSize(t *testing.T) {
	age := func(v float64) *float64 { return &v }

	mp := mustProfile(t, types.PetProfile{Species: types.SpeciesDog, AgeYears: age(0.5), Size: "LARGE"})
	assert.Equal(t, 0.5, mp.AgeMultiplier)
	assert.Equal(t, 1.5, mp.SizeMultiplier)

	mp = mustProfile(t, types.PetProfile{Species: types.SpeciesDog, AgeYears: age(9), Size: "giant"})
	assert.Equal(t, 0.7, mp.AgeMultiplier)
	assert.Equal(t, 1.0, mp.SizeMultiplier)
	assert.Equal(t, types.SizeMedium, mp.Size)

	mp = mustProfile(t, types.PetProfile{Species: types.SpeciesCat, AgeYears: age(4)})
	assert.Equal(t, 1.0, mp.AgeMultiplier)
	assert.Equal(t, 0.5, mp.RangeFactor)

	_, guards, err := normalizeProfile(types.PetProfile{Species: types.SpeciesDog, AgeYears: age(math.Inf(1))},
		calibration.Default(), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"age"}, guards)
}

func TestNormalizeProfile_PersonalityLargestRadiusWins(t *testing.T) {
	mp := mustProfile(t, types.PetProfile{
		Species:     types.SpeciesDog,
		Personality: []string{"Friendly", "a bit SKITTISH"},
	})
	assert.Equal(t, "fearful", mp.Personality)
	assert.Equal(t, 1.6, mp.PersonalityRadius)
	assert.Equal(t, 0.1, mp.Approachability)
	assert.Equal(t, []string{"friendly", "fearful"}, mp.Traits)

	mp = mustProfile(t, types.PetProfile{Species: types.SpeciesDog, Personality: []string{"любит еду"}})
	assert.Equal(t, "food_motivated", mp.Personality)
	assert.InDelta(t, 0.9, mp.Food, 1e-9)

	mp = mustProfile(t, types.PetProfile{Species: types.SpeciesCat, Personality: []string{"sleepy"}})
	assert.Empty(t, mp.Personality)
	assert.Equal(t, 0.3, mp.Approachability)
}

func TestNormalizeProfile_NegatedTraitsDoNotMatch(t *testing.T) {
	tests := []struct {
		tag  string
		want string
	}{
		{"unfriendly", ""},
		{"not friendly", ""},
		{"Non-Social", ""},
		{"недружелюбный", ""},
		{"не дружелюбный", ""},
		{"very friendly", "friendly"},
		{"дружелюбный", "friendly"},
		{"not friendly but curious", "curious"},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			mp := mustProfile(t, types.PetProfile{Species: types.SpeciesDog, Personality: []string{tt.tag}})
			assert.Equal(t, tt.want, mp.Personality)
		})
	}
}

func TestLookupBreed_ShortIAliasStaysDistinct(t *testing.T) {
	breeds := []calibration.BreedEntry{{
		ID:         "yorkshire_terrier",
		Species:    string(types.SpeciesDog),
		Multiplier: 1.1,
		Aliases:    []string{calibration.NormalizeText("Йоркширский")},
	}}

	got, ok := lookupBreed("Мой ЙОРКШИРСКИЙ терьер", types.SpeciesDog, breeds)
	require.True(t, ok)
	assert.Equal(t, "yorkshire_terrier", got.ID)

	_, ok = lookupBreed("иоркширскии терьер", types.SpeciesDog, breeds)
	assert.False(t, ok)
}

func TestNormalizeProfile_UnknownSpecies(t *testing.T) {
	_, _, err := normalizeProfile(types.PetProfile{Species: "parrot"}, calibration.Default(), discardLogger())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidProfile))
}

// --- MovementRadiusModel ---

func TestBaseDistance_Monotonic(t *testing.T) {
	m := NewCalibratedRadiusModel(calibration.Default())
	prev := 0.0
	for h := 0.25; h <= 1000; h *= 1.3 {
		d := m.baseDistanceM(h)
		assert.GreaterOrEqual(t, d, prev, "hours=%v", h)
		prev = d
	}
	assert.Equal(t, 750.0, m.baseDistanceM(0.5))
	assert.Equal(t, 1500.0, m.baseDistanceM(1.01))
	assert.Equal(t, 20000.0, m.baseDistanceM(5000))
}

func TestRadius_MultiplierChainAndCaps(t *testing.T) {
	m := NewCalibratedRadiusModel(calibration.Default())
	mp := mustProfile(t, types.PetProfile{Species: types.SpeciesDog, Size: types.SizeLarge, Breed: "husky"})

	// 3000 * 1.5 * 2.0 = 9000, capped at 4000 within the first day.
	rb := m.Radius(RadiusInput{Profile: mp, Hours: 24, Environment: types.EnvironmentRural})
	assert.Equal(t, 4000.0, rb.RadiusM)
	assert.Equal(t, 4000.0, rb.CapM)

	// 20000 * 1.5 * 2.0 * 1.8 exceeds the 30 km policy cap.
	rb = m.Radius(RadiusInput{Profile: mp, Hours: 400, Environment: types.EnvironmentRural})
	assert.Equal(t, 30000.0, rb.RadiusM)

	rb = m.Radius(RadiusInput{Profile: mp, Hours: 72, Weather: types.WeatherSnow, Environment: types.EnvironmentUrban})
	assert.InDelta(t, 6000*1.5*2.0*0.6*0.4, rb.RadiusM, 1e-6)
	assert.Empty(t, rb.Guarded)
}

func TestRadius_GuardsNonFiniteFactors(t *testing.T) {
	m := NewCalibratedRadiusModel(calibration.Default())
	mp := mustProfile(t, types.PetProfile{Species: types.SpeciesDog})
	mp.BreedMultiplier = math.NaN()
	mp.SizeMultiplier = 0

	rb := m.Radius(RadiusInput{Profile: mp, Hours: 1})
	assert.Equal(t, 750.0, rb.RadiusM)
	assert.ElementsMatch(t, []string{"size", "breed"}, rb.Guarded)
}

func TestRadius_UnknownTableKeysAreGuarded(t *testing.T) {
	m := NewCalibratedRadiusModel(calibration.Default())
	mp := mustProfile(t, types.PetProfile{Species: types.SpeciesDog})

	rb := m.Radius(RadiusInput{Profile: mp, Hours: 1, Weather: "Storm"})
	assert.Equal(t, 750.0, rb.RadiusM)
	assert.Equal(t, []string{"weather"}, rb.Guarded)

	rb = m.Radius(RadiusInput{Profile: mp, Hours: 1, Environment: "desert"})
	assert.Equal(t, 750.0, rb.RadiusM)
	assert.Equal(t, []string{"environment"}, rb.Guarded)

	rb = m.Radius(RadiusInput{Profile: mp, Hours: 1})
	assert.Empty(t, rb.Guarded)
}

// --- AreaGenerator ---

func TestGenerateAreas_ExpansionsAndProbabilities(t *testing.T) {
	tbl := calibration.Default()
	mp := mustProfile(t, types.PetProfile{Species: types.SpeciesDog})
	rng := rand.New(rand.NewPCG(1, 0))

	areas, err := generateAreas(nyc, types.PredictionTimeFrame{Hours: 12}, mp, 2000, tbl.Areas, rng)
	require.NoError(t, err)
	require.Len(t, areas, 3)

	assert.Equal(t, types.AreaPrimary, areas[0].Kind)
	assert.Equal(t, 3000.0, areas[1].RadiusM)
	assert.Equal(t, 4000.0, areas[2].RadiusM)

	// 2000 m lies between the 1600 m (0.7) and 5000 m (0.85) anchors.
	wantPrimary := 0.7 + (400.0/3400.0)*0.15
	assert.InDelta(t, wantPrimary, areas[0].Probability, 1e-9)
	assert.InDelta(t, wantPrimary*math.Exp(-0.5), areas[1].Probability, 1e-9)
	assert.InDelta(t, wantPrimary*math.Exp(-2), areas[2].Probability, 1e-9)
	for _, a := range areas {
		assert.Equal(t, nyc, a.Center)
	}
}

func TestGenerateAreas_TemporalDecayAfterOneDay(t *testing.T) {
	tbl := calibration.Default()
	mp := mustProfile(t, types.PetProfile{Species: types.SpeciesDog})

	early, err := generateAreas(nyc, types.PredictionTimeFrame{Hours: 24}, mp, 5000, tbl.Areas, rand.New(rand.NewPCG(1, 0)))
	require.NoError(t, err)
	late, err := generateAreas(nyc, types.PredictionTimeFrame{Hours: 96}, mp, 5000, tbl.Areas, rand.New(rand.NewPCG(1, 0)))
	require.NoError(t, err)

	assert.InDelta(t, 0.85, early[0].Probability, 1e-9)
	assert.InDelta(t, 0.85*math.Exp(-1), late[0].Probability, 1e-9)
}

func TestGenerateAreas_SatelliteGeometry(t *testing.T) {
	tbl := calibration.Default()
	mp := mustProfile(t, types.PetProfile{Species: types.SpeciesDog, Breed: "beagle"})

	areas, err := generateAreas(nyc, types.PredictionTimeFrame{Hours: 1}, mp, 1000, tbl.Areas, rand.New(rand.NewPCG(7, 0)))
	require.NoError(t, err)
	require.Len(t, areas, 2)

	sat := areas[1]
	assert.Equal(t, types.AreaSatellite, sat.Kind)
	assert.InDelta(t, 600, geo.DistanceM(nyc, sat.Center), 6)
	assert.Equal(t, 500.0, sat.RadiusM)
	assert.InDelta(t, areas[0].Probability*math.Exp(-2*0.36), sat.Probability, 1e-9)
}

// --- HeatmapSynthesizer ---

func TestSynthesizeHeatmap_PointCounts(t *testing.T) {
	tbl := calibration.Default()
	areas := []types.PredictionArea{{Center: nyc, RadiusM: 750, Kind: types.AreaPrimary}}

	// dog: food 0.7 and water 0.6 exceed the threshold, hiding 0.3 does not.
	mp := mustProfile(t, types.PetProfile{Species: types.SpeciesDog})
	points, err := synthesizeHeatmap(nyc, areas, mp, 1, tbl, rand.New(rand.NewPCG(1, 0)))
	require.NoError(t, err)
	assert.Len(t, points, 1+260+2*6)

	mp = mustProfile(t, types.PetProfile{Species: types.SpeciesDog, Personality: []string{"friendly"}})
	points, err = synthesizeHeatmap(nyc, areas, mp, 1, tbl, rand.New(rand.NewPCG(1, 0)))
	require.NoError(t, err)
	assert.Len(t, points, 1+260+2*6+16)
}

func TestSynthesizeHeatmap_AnchorAndBounds(t *testing.T) {
	tbl := calibration.Default()
	mp := mustProfile(t, types.PetProfile{Species: types.SpeciesCat, Breed: "bengal", Personality: []string{"curious", "shy"}})
	areas, err := generateAreas(nyc, types.PredictionTimeFrame{Hours: 48}, mp, 1500, tbl.Areas, rand.New(rand.NewPCG(3, 0)))
	require.NoError(t, err)

	points, err := synthesizeHeatmap(nyc, areas, mp, 48, tbl, rand.New(rand.NewPCG(3, 1)))
	require.NoError(t, err)
	require.NotEmpty(t, points)
	assert.Equal(t, types.HeatmapPoint{Location: nyc, Weight: 1}, points[0])

	maxR := maxExtentM(nyc, areas)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.Weight, 0.0)
		assert.LessOrEqual(t, p.Weight, 1.0)
		assert.LessOrEqual(t, geo.DistanceM(nyc, p.Location), maxR*1.1)
	}
}

func TestSynthesizeHeatmap_TierWeights(t *testing.T) {
	tbl := calibration.Default()
	s := &heatmapSynth{params: tbl.Heatmap}
	assert.Equal(t, 0.9, s.tierWeight(300, 10000))
	assert.Equal(t, 0.7, s.tierWeight(1500, 10000))
	assert.Equal(t, 0.5, s.tierWeight(4000, 10000))
	assert.Equal(t, 0.3, s.tierWeight(7000, 10000))
	assert.Equal(t, 0.15, s.tierWeight(9000, 10000))
}

// --- ZonePrioritizer ---

func TestPrioritize(t *testing.T) {
	ext, _ := calibration.Default().PriorityPreset("extended")
	assert.Equal(t, types.PriorityHigh, prioritize(24, ext))
	assert.Equal(t, types.PriorityMedium, prioritize(24.5, ext))
	assert.Equal(t, types.PriorityLow, prioritize(73, ext))

	rapid, _ := calibration.Default().PriorityPreset("rapid")
	assert.Equal(t, types.PriorityHigh, prioritize(3, rapid))
	assert.Equal(t, types.PriorityMedium, prioritize(12, rapid))
	assert.Equal(t, types.PriorityLow, prioritize(13, rapid))
}

func TestSearchStrategy_Sections(t *testing.T) {
	mp := mustProfile(t, types.PetProfile{Species: types.SpeciesDog, Size: types.SizeSmall, Breed: "beagle"})
	s := searchStrategy(48, mp, types.EnvironmentUrban)

	lines := strings.Split(s, "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "outer rings")
	assert.Contains(t, lines[1], "Small animals")
	assert.Contains(t, lines[2], "Urban area")
	assert.Contains(t, lines[3], "beagle")

	mp = mustProfile(t, types.PetProfile{Species: types.SpeciesDog})
	assert.Len(t, strings.Split(searchStrategy(1, mp, ""), "\n"), 3)
}

func TestEstimatedSearchMinutes(t *testing.T) {
	search := calibration.Default().Search
	areas := []types.PredictionArea{
		{Center: nyc, RadiusM: 1000, Kind: types.AreaPrimary},
		{Center: nyc, RadiusM: 1500, Kind: types.AreaExpanded},
	}
	// pi * 1.5^2 km2 at 0.2 km2/h.
	assert.Equal(t, math.Round(math.Pi*2.25/0.2*60), estimatedSearchMinutes(nyc, areas, search))

	off, err := geo.Destination(nyc, 0.6, 1)
	require.NoError(t, err)
	areas = append(areas, types.PredictionArea{Center: off, RadiusM: 500, Kind: types.AreaSatellite})
	assert.Equal(t, math.Round(math.Pi*2.5/0.2*60), estimatedSearchMinutes(nyc, areas, search))
}

// --- ConfidenceEstimator ---

func TestConfidence_MonotonicAndBounded(t *testing.T) {
	ct := calibration.Default().Confidence
	for _, weather := range []bool{true, false} {
		prev := 1.0
		for h := 0.1; h < 2000; h *= 1.2 {
			c := confidence(h, weather, ct)
			assert.LessOrEqual(t, c, prev, "hours=%v weather=%v", h, weather)
			assert.GreaterOrEqual(t, c, 0.1)
			assert.LessOrEqual(t, c, 0.95)
			prev = c
		}
	}
	assert.Equal(t, 0.93, confidence(12, true, ct))
	assert.Equal(t, 0.70, confidence(72, true, ct))
	assert.Equal(t, 0.20, confidence(500, true, ct))
	assert.InDelta(t, 0.18, confidence(500, false, ct), 1e-9)
}

// --- RecommendationEngine ---

func TestRecommend_RulesAndDedup(t *testing.T) {
	mp := mustProfile(t, types.PetProfile{Species: types.SpeciesCat, Personality: []string{"fearful", "shy"}})
	recs := recommend(recommendationInput{
		hours:            1,
		mp:               mp,
		weather:          types.WeatherRain,
		weatherAvailable: true,
		anchor:           nyc,
		at:               testNow,
	})

	joined := strings.Join(recs, "\n")
	assert.Contains(t, joined, "Start searching now")
	assert.Contains(t, joined, "porches")
	assert.Contains(t, joined, "eye shine")
	assert.Contains(t, joined, "civil dawn")
	assert.NotContains(t, joined, "shelter, animal control")

	seen := map[string]bool{}
	for _, r := range recs {
		assert.False(t, seen[r], "duplicate recommendation %q", r)
		seen[r] = true
	}
}

func TestRecommend_LongElapsedWithoutWeather(t *testing.T) {
	mp := mustProfile(t, types.PetProfile{Species: types.SpeciesDog, Breed: "beagle"})
	recs := recommend(recommendationInput{hours: 100, mp: mp})

	joined := strings.Join(recs, "\n")
	assert.NotContains(t, joined, "Start searching now")
	assert.Contains(t, joined, "animal control")
	assert.Contains(t, joined, "feeding station")
	assert.Contains(t, joined, "Weather data was unavailable")
	assert.Contains(t, joined, "satellite area")
	assert.NotContains(t, joined, "civil dawn")
}
