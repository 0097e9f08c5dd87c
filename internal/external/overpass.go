package external

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/paulmach/orb"
	"github.com/serjvanilla/go-overpass"
	"github.com/sony/gobreaker/v2"

	"pawtrail/internal/geo"
	"pawtrail/internal/types"
)

const (
	// maxSpanDeg bounds the query box; larger frames are narrowed to the
	// primary ring. 0.1 degrees is roughly 11 km of latitude.
	maxSpanDeg   = 0.1
	maxOSMResult = 50
	metersPerDeg = 111320.0
)

// OverpassClient finds hazards and attractors in OpenStreetMap through an
// Overpass API endpoint. Results are cached per query.
type OverpassClient struct {
	endpoint  string
	transport http.RoundTripper
	timeout   time.Duration
	breaker   *gobreaker.CircuitBreaker[overpass.Result]
	cache     *cache.Cache
}

// NewOverpassClient creates a client. A nil transport uses
// http.DefaultTransport; a zero cacheTTL disables caching.
func NewOverpassClient(endpoint string, transport http.RoundTripper, timeout, cacheTTL time.Duration) *OverpassClient {
	if transport == nil {
		transport = http.DefaultTransport
	}
	c := &OverpassClient{
		endpoint:  endpoint,
		transport: transport,
		timeout:   timeout,
		breaker: gobreaker.NewCircuitBreaker[overpass.Result](gobreaker.Settings{
			Name:        "overpass",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
		}),
	}
	if cacheTTL > 0 {
		c.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return c
}

// ctxTransport binds outgoing requests to a context, since the overpass
// library builds its own requests.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

func (c *OverpassClient) query(ctx context.Context, q string) (overpass.Result, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(q); ok {
			return v.(overpass.Result), nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	client := overpass.NewWithSettings(c.endpoint, 1, &http.Client{Transport: ctxTransport{ctx: ctx, base: c.transport}})

	res, err := c.breaker.Execute(func() (overpass.Result, error) {
		return client.Query(q)
	})
	if err != nil {
		return overpass.Result{}, types.NewAppError(types.ErrCodeUpstreamProvider, "overpass query failed", err)
	}
	if c.cache != nil {
		c.cache.Set(q, res, cache.DefaultExpiration)
	}
	return res, nil
}

// searchBound returns the box to query for a set of areas.
func searchBound(areas []types.PredictionArea) (orb.Bound, bool) {
	b, ok := geo.Bound(areas)
	if !ok || b.Top()-b.Bottom() <= maxSpanDeg {
		return b, ok
	}
	primary := areas[0]
	primary.RadiusM = min(primary.RadiusM, maxSpanDeg*metersPerDeg/2)
	return geo.Bound([]types.PredictionArea{primary})
}

func bboxFilter(b orb.Bound) string {
	return fmt.Sprintf("(%.5f,%.5f,%.5f,%.5f)", b.Bottom(), b.Left(), b.Top(), b.Right())
}

// osmFeature is a node or way reduced to a point.
type osmFeature struct {
	id   int64
	loc  types.LatLng
	tags map[string]string
}

func features(res overpass.Result) []osmFeature {
	out := make([]osmFeature, 0, len(res.Nodes)+len(res.Ways))
	for _, n := range res.Nodes {
		if len(n.Tags) == 0 {
			// Untagged nodes are way geometry.
			continue
		}
		out = append(out, osmFeature{id: n.ID, loc: types.LatLng{Lat: n.Lat, Lng: n.Lon}, tags: n.Tags})
	}
	for _, w := range res.Ways {
		loc, ok := wayCenter(w)
		if !ok {
			continue
		}
		out = append(out, osmFeature{id: w.ID, loc: loc, tags: w.Tags})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func wayCenter(w *overpass.Way) (types.LatLng, bool) {
	if w.Bounds != nil {
		return types.LatLng{
			Lat: (w.Bounds.Min.Lat + w.Bounds.Max.Lat) / 2,
			Lng: (w.Bounds.Min.Lon + w.Bounds.Max.Lon) / 2,
		}, true
	}
	var lat, lng float64
	var n int
	for _, node := range w.Nodes {
		if node == nil {
			continue
		}
		lat += node.Lat
		lng += node.Lon
		n++
	}
	if n == 0 {
		return types.LatLng{}, false
	}
	return types.LatLng{Lat: lat / float64(n), Lng: lng / float64(n)}, true
}

// ---------------------------------------------------------------------------
// Points of interest
// ---------------------------------------------------------------------------

type poiClass struct {
	key, value string
	kind       string
	score      float64
}

var poiClasses = []poiClass{
	{"amenity", "animal_shelter", "animal_shelter", 0.9},
	{"amenity", "restaurant", "food", 0.8},
	{"amenity", "fast_food", "food", 0.8},
	{"amenity", "cafe", "food", 0.6},
	{"amenity", "waste_disposal", "food_waste", 0.6},
	{"leisure", "dog_park", "park", 0.8},
	{"leisure", "park", "park", 0.7},
	{"amenity", "drinking_water", "water", 0.6},
	{"natural", "water", "water", 0.6},
	{"amenity", "veterinary", "veterinary", 0.5},
}

// FindPointsOfInterest implements prediction.PointOfInterestProvider.
func (c *OverpassClient) FindPointsOfInterest(ctx context.Context, areas []types.PredictionArea) ([]types.PointOfInterest, error) {
	b, ok := searchBound(areas)
	if !ok {
		return []types.PointOfInterest{}, nil
	}
	res, err := c.query(ctx, buildQuery(b, poiSelectors()))
	if err != nil {
		return nil, err
	}

	pois := []types.PointOfInterest{}
	for _, f := range features(res) {
		cls, ok := matchPOI(f.tags)
		if !ok {
			continue
		}
		pois = append(pois, types.PointOfInterest{
			Location:        f.loc,
			Name:            f.tags["name"],
			Type:            cls.kind,
			AttractionScore: cls.score,
		})
	}
	sort.SliceStable(pois, func(i, j int) bool { return pois[i].AttractionScore > pois[j].AttractionScore })
	if len(pois) > maxOSMResult {
		pois = pois[:maxOSMResult]
	}
	return pois, nil
}

func matchPOI(tags map[string]string) (poiClass, bool) {
	for _, cls := range poiClasses {
		if tags[cls.key] == cls.value {
			return cls, true
		}
	}
	return poiClass{}, false
}

func poiSelectors() []string {
	return []string{
		`node["amenity"~"^(animal_shelter|restaurant|fast_food|cafe|waste_disposal|drinking_water|veterinary)$"]`,
		`node["leisure"~"^(park|dog_park)$"]`,
		`way["leisure"~"^(park|dog_park)$"]`,
		`way["natural"="water"]`,
	}
}

// ---------------------------------------------------------------------------
// Danger zones
// ---------------------------------------------------------------------------

type dangerClass struct {
	key, value string
	kind       string
	severity   string
}

var dangerClasses = []dangerClass{
	{"highway", "motorway", "highway", "high"},
	{"highway", "trunk", "highway", "high"},
	{"railway", "rail", "railway", "high"},
	{"highway", "primary", "major_road", "medium"},
	{"waterway", "river", "water", "medium"},
	{"waterway", "canal", "water", "medium"},
	{"natural", "water", "water", "medium"},
	{"landuse", "construction", "construction", "low"},
}

// FindDangerZones implements prediction.DangerZoneProvider.
func (c *OverpassClient) FindDangerZones(ctx context.Context, areas []types.PredictionArea) ([]types.DangerZone, error) {
	b, ok := searchBound(areas)
	if !ok {
		return []types.DangerZone{}, nil
	}
	res, err := c.query(ctx, buildQuery(b, []string{
		`way["highway"~"^(motorway|trunk|primary)$"]`,
		`way["railway"="rail"]`,
		`way["waterway"~"^(river|canal)$"]`,
		`way["natural"="water"]`,
		`way["landuse"="construction"]`,
	}))
	if err != nil {
		return nil, err
	}

	zones := []types.DangerZone{}
	for _, f := range features(res) {
		for _, cls := range dangerClasses {
			if f.tags[cls.key] != cls.value {
				continue
			}
			zones = append(zones, types.DangerZone{
				Location: f.loc,
				Name:     f.tags["name"],
				Type:     cls.kind,
				Severity: cls.severity,
			})
			break
		}
	}
	if len(zones) > maxOSMResult {
		zones = zones[:maxOSMResult]
	}
	return zones, nil
}

func buildQuery(b orb.Bound, selectors []string) string {
	bbox := bboxFilter(b)
	var sb strings.Builder
	sb.WriteString("[out:json][timeout:10];\n(\n")
	for _, s := range selectors {
		sb.WriteString("  ")
		sb.WriteString(s)
		sb.WriteString(bbox)
		sb.WriteString(";\n")
	}
	sb.WriteString(");\nout body;\n>;\nout skel qt;\n")
	return sb.String()
}
