// Package prediction estimates where a lost pet has plausibly traveled.
//
// Given a PetProfile and a list of elapsed-time horizons, Engine.Predict
// derives a movement profile, computes a capped travel radius per horizon,
// emits probability-weighted rings, synthesizes a heatmap point field and
// attaches priority, search guidance, a confidence score and rule-based
// recommendations. Every constant comes from a calibration.Table.
//
// Heatmap jitter is drawn from a per-frame PCG source derived from the
// prediction seed, so equal inputs and seeds reproduce bit-identical points
// even when frames are computed concurrently.
package prediction

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pawtrail/internal/calibration"
	"pawtrail/internal/geo"
	"pawtrail/internal/types"
)

const (
	// DefaultUpstreamTimeout bounds each collaborator call.
	DefaultUpstreamTimeout = 3 * time.Second
	// DefaultConcurrency is the number of frames computed in parallel.
	DefaultConcurrency = 4
	// MaxTimeFrames bounds a single request.
	MaxTimeFrames = 32
	// maxFrameHours is one year.
	maxFrameHours = 8760
)

// Degraded reasons recorded on PredictionResult.DegradedReasons.
const (
	ReasonWeatherUnavailable = "weather_unavailable"
	ReasonDangerZones        = "danger_zones_unavailable"
	ReasonPointsOfInterest   = "points_of_interest_unavailable"
	ReasonComputationGuard   = "computation_guard"
)

// DefaultTimeFrames are used by callers that do not supply horizons.
func DefaultTimeFrames() []types.PredictionTimeFrame {
	return []types.PredictionTimeFrame{
		{Hours: 1, Label: "1 hour"},
		{Hours: 6, Label: "6 hours"},
		{Hours: 24, Label: "24 hours"},
		{Hours: 72, Label: "3 days"},
		{Hours: 168, Label: "1 week"},
	}
}

// Engine is safe for concurrent use. It holds no per-prediction state.
type Engine struct {
	table       *calibration.Table
	radius      RadiusModel
	weather     WeatherService
	geocoder    GeocodingService
	dangers     DangerZoneProvider
	pois        PointOfInterestProvider
	clock       types.Clock
	logger      *slog.Logger
	timeout     time.Duration
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRadiusModel replaces the calibrated radius model.
func WithRadiusModel(m RadiusModel) Option { return func(e *Engine) { e.radius = m } }

// WithWeatherService sets the live weather collaborator.
func WithWeatherService(s WeatherService) Option { return func(e *Engine) { e.weather = s } }

// WithGeocoder sets the address resolver.
func WithGeocoder(g GeocodingService) Option { return func(e *Engine) { e.geocoder = g } }

// WithDangerZoneProvider sets the hazard lookup.
func WithDangerZoneProvider(p DangerZoneProvider) Option { return func(e *Engine) { e.dangers = p } }

// WithPointOfInterestProvider sets the attractor lookup.
func WithPointOfInterestProvider(p PointOfInterestProvider) Option {
	return func(e *Engine) { e.pois = p }
}

// WithClock sets the clock used for timestamps and elapsed time.
func WithClock(c types.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithUpstreamTimeout bounds every collaborator call.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithConcurrency sets how many frames are computed in parallel.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine builds an Engine over a calibration table. A nil table selects
// the embedded default.
func NewEngine(table *calibration.Table, opts ...Option) *Engine {
	if table == nil {
		table = calibration.Default()
	}
	e := &Engine{
		table:       table,
		clock:       types.RealClock{},
		logger:      slog.Default(),
		timeout:     DefaultUpstreamTimeout,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.radius == nil {
		e.radius = NewCalibratedRadiusModel(table)
	}
	return e
}

// Calibration returns the table the engine predicts with, so callers can
// report its version and presets. The table is shared and must not be
// modified.
func (e *Engine) Calibration() *calibration.Table {
	return e.table
}

// PredictOption customizes a single Predict call.
type PredictOption func(*predictConfig)

type predictConfig struct {
	seed         *uint64
	anchor       *types.LatLng
	preset       string
	predictionID string
	skipWeather  bool
}

// WithSeed pins the heatmap RNG seed. Without it the seed is derived from
// the profile, so repeated calls with the same profile are reproducible.
func WithSeed(seed uint64) PredictOption {
	return func(c *predictConfig) { c.seed = &seed }
}

// WithAnchor centers the prediction on an alternate point, such as a home
// or sighting location, instead of the last-seen location.
func WithAnchor(p types.LatLng) PredictOption {
	return func(c *predictConfig) { c.anchor = &p }
}

// WithPriorityPreset selects a named priority threshold preset.
func WithPriorityPreset(name string) PredictOption {
	return func(c *predictConfig) { c.preset = name }
}

// WithPredictionID reuses an existing prediction ID, for refreshes.
func WithPredictionID(id string) PredictOption {
	return func(c *predictConfig) { c.predictionID = id }
}

// WithoutLiveWeather skips the weather collaborator.
func WithoutLiveWeather() PredictOption {
	return func(c *predictConfig) { c.skipWeather = true }
}

// run carries the per-call state shared by frame workers.
type run struct {
	anchor      types.LatLng
	mp          MovementProfile
	weather     types.WeatherCondition
	environment types.Environment
	thresholds  calibration.PriorityThresholds
	seed        uint64
	zoneNS      uuid.UUID
	degraded    *degradation
}

type frameOutput struct {
	zone    types.SearchZone
	heatmap []types.HeatmapPoint
}

// Predict runs the full pipeline. Invalid profiles and time frames fail
// with typed AppErrors; collaborator failures and non-finite multipliers
// are recovered and reported through Degraded and DegradedReasons.
func (e *Engine) Predict(
	ctx context.Context,
	profile types.PetProfile,
	frames []types.PredictionTimeFrame,
	opts ...PredictOption,
) (*types.PredictionResult, error) {
	start := time.Now()
	cfg := predictConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := validateFrames(frames); err != nil {
		return nil, err
	}
	if cfg.preset == "" {
		cfg.preset = e.table.DefaultPriorityPreset
	}
	thresholds, ok := e.table.PriorityPreset(cfg.preset)
	if !ok {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPreset,
			fmt.Sprintf("unknown priority preset %q", cfg.preset), nil,
			map[string]any{"available": e.table.PresetNames()})
	}

	logger := e.logger.With("pet_id", profile.ID)
	deg := &degradation{}

	mp, guards, err := normalizeProfile(profile, e.table, logger)
	if err != nil {
		return nil, err
	}
	for _, g := range guards {
		deg.guard(logger, g, 0)
	}

	anchor, resolved, err := e.resolveAnchor(ctx, profile, cfg.anchor, logger)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot := e.resolveWeather(ctx, profile, anchor, cfg.skipWeather, deg, logger)
	weatherAvailable := snapshot != nil
	var condition types.WeatherCondition
	if snapshot != nil {
		condition = snapshot.Condition
	}

	now := e.clock.Now()
	id := cfg.predictionID
	if id == "" {
		id = uuid.NewString()
	}
	seed := derivedSeed(profile, anchor)
	if cfg.seed != nil {
		seed = *cfg.seed
	}

	r := &run{
		anchor:      anchor,
		mp:          mp,
		weather:     condition,
		environment: profile.Environment,
		thresholds:  thresholds,
		seed:        seed,
		zoneNS:      uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)),
		degraded:    deg,
	}

	outputs := make([]frameOutput, len(frames))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, frame := range frames {
		g.Go(func() error {
			out, err := e.computeFrame(gCtx, i, frame, r, logger)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "prediction failed", err)
	}

	result := &types.PredictionResult{
		ID:                 id,
		PetProfile:         profile,
		Anchor:             anchor,
		SearchZones:        make([]types.SearchZone, 0, len(frames)),
		LastUpdated:        now,
		CalibrationVersion: e.table.Version,
		PriorityPreset:     cfg.preset,
		Seed:               seed,
	}
	result.PetProfile.LastSeenLocation = resolved
	result.PetProfile.WeatherCondition = snapshot
	for _, out := range outputs {
		result.SearchZones = append(result.SearchZones, out.zone)
		result.HeatmapData = append(result.HeatmapData, out.heatmap...)
	}

	elapsed := elapsedHours(profile.LastSeenTime, now, frames)
	result.ConfidenceScore = confidence(elapsed, weatherAvailable, e.table.Confidence)
	result.Recommendations = recommend(recommendationInput{
		hours:            elapsed,
		mp:               mp,
		weather:          condition,
		weatherAvailable: weatherAvailable,
		anchor:           anchor,
		at:               now,
	})
	result.DegradedReasons = deg.list()
	result.Degraded = len(result.DegradedReasons) > 0

	logger.Info("prediction complete",
		"prediction_id", id,
		"frames", len(frames),
		"heatmap_points", len(result.HeatmapData),
		"confidence", result.ConfidenceScore,
		"degraded", result.Degraded,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (e *Engine) computeFrame(ctx context.Context, idx int, frame types.PredictionTimeFrame, r *run, logger *slog.Logger) (frameOutput, error) {
	rb := e.radius.Radius(RadiusInput{
		Profile:     r.mp,
		Hours:       frame.Hours,
		Weather:     r.weather,
		Environment: r.environment,
	})
	for _, g := range rb.Guarded {
		r.degraded.guard(logger, g, frame.Hours)
	}
	radiusM := rb.RadiusM
	if !usableFactor(radiusM) {
		r.degraded.guard(logger, "radius_model", frame.Hours)
		radiusM = NewCalibratedRadiusModel(e.table).baseDistanceM(frame.Hours)
	}

	rng := rand.New(rand.NewPCG(r.seed, uint64(idx)))

	areas, err := generateAreas(r.anchor, frame, r.mp, radiusM, e.table.Areas, rng)
	if err != nil {
		return frameOutput{}, types.NewAppError(types.ErrCodeInternalUnexpected, "generating areas", err)
	}
	points, err := synthesizeHeatmap(r.anchor, areas, r.mp, frame.Hours, e.table, rng)
	if err != nil {
		return frameOutput{}, types.NewAppError(types.ErrCodeInternalUnexpected, "synthesizing heatmap", err)
	}

	zone := types.SearchZone{
		ID:                         uuid.NewSHA1(r.zoneNS, binary.BigEndian.AppendUint64(nil, uint64(idx))).String(),
		TimeFrame:                  frame,
		Priority:                   prioritize(frame.Hours, r.thresholds),
		Areas:                      areas,
		DangerZones:                e.findDangerZones(ctx, areas, r.degraded, logger),
		PointsOfInterest:           e.findPointsOfInterest(ctx, areas, r.degraded, logger),
		SearchStrategy:             searchStrategy(frame.Hours, r.mp, r.environment),
		EstimatedSearchTimeMinutes: estimatedSearchMinutes(r.anchor, areas, e.table.Search),
	}
	return frameOutput{zone: zone, heatmap: points}, nil
}

// resolveAnchor returns the prediction center and the resolved last-seen
// location (nil when it could not be determined).
func (e *Engine) resolveAnchor(ctx context.Context, p types.PetProfile, override *types.LatLng, logger *slog.Logger) (types.LatLng, *types.LatLng, error) {
	if p.LastSeenLocation != nil {
		if err := geo.ValidateLatLng(*p.LastSeenLocation); err != nil {
			return types.LatLng{}, nil, invalidProfile("last_seen_location", "last seen location is not a valid coordinate", err)
		}
	}
	if override != nil {
		if err := geo.ValidateLatLng(*override); err != nil {
			return types.LatLng{}, nil, invalidProfile("anchor", "anchor is not a valid coordinate", err)
		}
	}

	resolved := p.LastSeenLocation
	if resolved == nil && p.LastSeenAddress != "" && e.geocoder != nil {
		gctx, cancel := context.WithTimeout(ctx, e.timeout)
		res, err := e.geocoder.Resolve(gctx, p.LastSeenAddress)
		cancel()
		switch {
		case err != nil:
			logger.Warn("geocoding failed", "error", err)
		case res == nil:
			logger.Warn("address could not be resolved")
		case geo.ValidateLatLng(res.Location) != nil:
			logger.Warn("geocoder returned an invalid coordinate", "lat", res.Location.Lat, "lng", res.Location.Lng)
		default:
			loc := res.Location
			resolved = &loc
		}
	}

	switch {
	case override != nil:
		return *override, resolved, nil
	case resolved != nil:
		return *resolved, resolved, nil
	case p.LastSeenAddress != "":
		return types.LatLng{}, nil, invalidProfile("last_seen_address", "last seen address could not be resolved", nil)
	default:
		return types.LatLng{}, nil, invalidProfile("last_seen_location", "last seen location is required", nil)
	}
}

func invalidProfile(field, msg string, err error) error {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidProfile, msg, err,
		map[string]any{"field": field})
}

// resolveWeather returns the caller-supplied snapshot, else a live one, else
// nil. A failed lookup marks the result degraded.
func (e *Engine) resolveWeather(ctx context.Context, p types.PetProfile, at types.LatLng, skip bool, deg *degradation, logger *slog.Logger) *types.WeatherSnapshot {
	if p.WeatherCondition != nil {
		snap := *p.WeatherCondition
		return &snap
	}
	if skip || e.weather == nil {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	snap, err := e.weather.CurrentCondition(wctx, at)
	if err != nil || snap == nil {
		logger.Warn("weather unavailable; using neutral multiplier",
			"code", types.ErrCodeUpstreamWeather, "error", err)
		deg.add(ReasonWeatherUnavailable)
		return nil
	}
	return snap
}

func (e *Engine) findDangerZones(ctx context.Context, areas []types.PredictionArea, deg *degradation, logger *slog.Logger) []types.DangerZone {
	if e.dangers == nil {
		return []types.DangerZone{}
	}
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	zones, err := e.dangers.FindDangerZones(cctx, areas)
	if err != nil {
		logger.Warn("danger zone lookup failed", "code", types.ErrCodeUpstreamProvider, "error", err)
		deg.add(ReasonDangerZones)
		return []types.DangerZone{}
	}
	if zones == nil {
		zones = []types.DangerZone{}
	}
	return zones
}

func (e *Engine) findPointsOfInterest(ctx context.Context, areas []types.PredictionArea, deg *degradation, logger *slog.Logger) []types.PointOfInterest {
	if e.pois == nil {
		return []types.PointOfInterest{}
	}
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	pois, err := e.pois.FindPointsOfInterest(cctx, areas)
	if err != nil {
		logger.Warn("point of interest lookup failed", "code", types.ErrCodeUpstreamProvider, "error", err)
		deg.add(ReasonPointsOfInterest)
		return []types.PointOfInterest{}
	}
	if pois == nil {
		pois = []types.PointOfInterest{}
	}
	return pois
}

func validateFrames(frames []types.PredictionTimeFrame) error {
	if len(frames) == 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidTimeFrame, "at least one time frame is required", nil)
	}
	if len(frames) > MaxTimeFrames {
		return types.NewAppError(types.ErrCodeValidationInvalidTimeFrame,
			fmt.Sprintf("at most %d time frames are allowed", MaxTimeFrames), nil)
	}
	for i, f := range frames {
		if math.IsNaN(f.Hours) || math.IsInf(f.Hours, 0) || f.Hours <= 0 || f.Hours > maxFrameHours {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidTimeFrame,
				fmt.Sprintf("time frame hours must be in (0, %d]", maxFrameHours), nil,
				map[string]any{"index": i, "hours": fmt.Sprint(f.Hours)})
		}
	}
	return nil
}

// elapsedHours is the time since the pet went missing. Without a usable
// last-seen time it falls back to the shortest requested horizon.
func elapsedHours(lastSeen, now time.Time, frames []types.PredictionTimeFrame) float64 {
	if !lastSeen.IsZero() && !lastSeen.After(now) {
		return now.Sub(lastSeen).Hours()
	}
	minH := frames[0].Hours
	for _, f := range frames[1:] {
		minH = math.Min(minH, f.Hours)
	}
	return minH
}

// derivedSeed hashes the identifying inputs so a profile without an
// explicit seed still reproduces its heatmap.
func derivedSeed(p types.PetProfile, anchor types.LatLng) uint64 {
	h := fnv.New64a()
	h.Write([]byte(p.ID))
	var buf [8]byte
	for _, v := range []uint64{
		uint64(p.LastSeenTime.UnixNano()),
		math.Float64bits(anchor.Lat),
		math.Float64bits(anchor.Lng),
	} {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	return h.Sum64()
}

// degradation collects recovered failures from concurrent frame workers.
type degradation struct {
	mu      sync.Mutex
	reasons map[string]struct{}
}

func (d *degradation) add(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reasons == nil {
		d.reasons = make(map[string]struct{})
	}
	d.reasons[reason] = struct{}{}
}

// guard records a factor replaced by its neutral value.
func (d *degradation) guard(logger *slog.Logger, factor string, hours float64) {
	logger.Warn("unusable multiplier replaced with neutral default",
		"code", types.ErrCodeInternalComputationGuard, "factor", factor, "frame_hours", hours)
	d.add(ReasonComputationGuard + ":" + factor)
}

// list returns the reasons sorted, for stable output.
func (d *degradation) list() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.reasons) == 0 {
		return nil
	}
	out := make([]string, 0, len(d.reasons))
	for r := range d.reasons {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
