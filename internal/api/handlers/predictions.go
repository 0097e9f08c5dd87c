// Package handlers contains the HTTP handlers for the PawTrail API.
//
// Routes mounted under /v1:
//   - POST /predictions                    run the engine and store the result
//   - GET  /predictions/{id}               stored result
//   - GET  /predictions/{id}/geojson       stored result as a FeatureCollection
//   - POST /predictions/{id}/refresh       queue a recompute with live weather
//   - GET  /pets/{petID}/predictions       recent results for one pet
//   - GET  /calibration                    active calibration table
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pawtrail/internal/calibration"
	"pawtrail/internal/core"
	"pawtrail/internal/db"
	"pawtrail/internal/geo"
	"pawtrail/internal/metrics"
	"pawtrail/internal/prediction"
	"pawtrail/internal/types"
)

// Predictor is the engine contract the handler needs.
type Predictor interface {
	Predict(ctx context.Context, profile types.PetProfile, frames []types.PredictionTimeFrame, opts ...prediction.PredictOption) (*types.PredictionResult, error)
	Calibration() *calibration.Table
}

// PredictionStore persists results. Defined locally so handlers can be
// tested without Postgres.
type PredictionStore interface {
	Save(ctx context.Context, res *types.PredictionResult) error
	Get(ctx context.Context, id string) (*types.PredictionResult, error)
	ListByPet(ctx context.Context, petID string, limit int) ([]db.PredictionSummary, error)
	MarkRefreshRequested(ctx context.Context, id string, at time.Time) error
}

// RefreshRequester enqueues refresh jobs.
type RefreshRequester interface {
	RequestRefresh(ctx context.Context, predictionID, reason string) (string, error)
}

// PredictionHandler serves the prediction endpoints.
type PredictionHandler struct {
	engine       Predictor
	store        PredictionStore
	refresh      RefreshRequester
	metrics      metrics.Recorder
	validator    *core.Validator
	clock        types.Clock
	maxBodyBytes int64
	logger       *slog.Logger
}

// PredictionHandlerOption configures optional collaborators.
type PredictionHandlerOption func(*PredictionHandler)

// WithStore enables persistence and the read endpoints.
func WithStore(s PredictionStore) PredictionHandlerOption {
	return func(h *PredictionHandler) { h.store = s }
}

// WithRefreshRequester enables POST /predictions/{id}/refresh. It also needs
// a store.
func WithRefreshRequester(q RefreshRequester) PredictionHandlerOption {
	return func(h *PredictionHandler) { h.refresh = q }
}

// WithMetrics records one PredictionCount/PredictionLatency sample per
// created prediction. The default is metrics.Noop.
func WithMetrics(m metrics.Recorder) PredictionHandlerOption {
	return func(h *PredictionHandler) { h.metrics = m }
}

// WithClock sets the clock used to timestamp refresh requests. The default is
// types.RealClock.
func WithClock(c types.Clock) PredictionHandlerOption {
	return func(h *PredictionHandler) { h.clock = c }
}

// WithMaxBodyBytes caps the POST /predictions body. Zero or a negative value
// keeps core.DecodeJSON's default limit.
func WithMaxBodyBytes(n int64) PredictionHandlerOption {
	return func(h *PredictionHandler) { h.maxBodyBytes = n }
}

// NewPredictionHandler creates the handler. engine and val are required; a
// nil logger falls back to slog.Default. Without WithStore only
// POST /predictions and GET /calibration are mounted.
func NewPredictionHandler(engine Predictor, val *core.Validator, logger *slog.Logger, opts ...PredictionHandlerOption) *PredictionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &PredictionHandler{
		engine:    engine,
		validator: val,
		logger:    logger,
		metrics:   metrics.Noop{},
		clock:     types.RealClock{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the endpoints. Read and refresh routes exist only
// when their backing collaborators are configured.
func (h *PredictionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/predictions", h.HandleCreate)
	r.Get("/calibration", h.HandleCalibration)

	if h.store == nil {
		return
	}
	r.Get("/predictions/{id}", h.HandleGet)
	r.Get("/predictions/{id}/geojson", h.HandleGeoJSON)
	r.Get("/pets/{petID}/predictions", h.HandleListByPet)
	if h.refresh != nil {
		r.Post("/predictions/{id}/refresh", h.HandleRefresh)
	}
}

// CreatePredictionRequest is the POST /v1/predictions body.
type CreatePredictionRequest struct {
	Profile        types.PetProfile            `json:"profile"`
	TimeFrames     []types.PredictionTimeFrame `json:"time_frames,omitempty" validate:"max=12,dive"`
	Seed           *uint64                     `json:"seed,omitempty"`
	Anchor         *types.LatLng               `json:"anchor,omitempty"`
	PriorityPreset string                      `json:"priority_preset,omitempty" validate:"max=64"`
}

// HandleCreate handles POST /v1/predictions.
func (h *PredictionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreatePredictionRequest
	if err := core.DecodeJSON(w, r, &req, h.maxBodyBytes); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	frames := req.TimeFrames
	if len(frames) == 0 {
		frames = prediction.DefaultTimeFrames()
	}
	var opts []prediction.PredictOption
	if req.Seed != nil {
		opts = append(opts, prediction.WithSeed(*req.Seed))
	}
	if req.Anchor != nil {
		opts = append(opts, prediction.WithAnchor(*req.Anchor))
	}
	if req.PriorityPreset != "" {
		opts = append(opts, prediction.WithPriorityPreset(req.PriorityPreset))
	}

	start := time.Now()
	res, err := h.engine.Predict(r.Context(), req.Profile, frames, opts...)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.metrics.RecordPrediction(r.Context(), res.PetProfile.Species, "api", res.Degraded,
		time.Since(start), len(res.HeatmapData))

	if h.store != nil {
		if err := h.store.Save(r.Context(), res); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to store prediction",
				"prediction_id", res.ID, "error", err)
			core.Error(w, r, err)
			return
		}
	}

	h.logger.InfoContext(r.Context(), "prediction created",
		"prediction_id", res.ID,
		"pet_id", res.PetProfile.ID,
		"zones", len(res.SearchZones),
		"degraded", res.Degraded,
	)
	w.Header().Set("Location", "/v1/predictions/"+res.ID)
	core.Data(w, r, http.StatusCreated, res)
}

// HandleGet handles GET /v1/predictions/{id}.
func (h *PredictionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	res, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, res)
}

// HandleGeoJSON handles GET /v1/predictions/{id}/geojson. ?heatmap=false
// drops the point features.
func (h *PredictionHandler) HandleGeoJSON(w http.ResponseWriter, r *http.Request) {
	includeHeatmap := true
	if v := r.URL.Query().Get("heatmap"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField,
				"heatmap must be true or false", err))
			return
		}
		includeHeatmap = b
	}

	res, err := h.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	fc, err := geo.FeatureCollection(res, includeHeatmap)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build GeoJSON", err))
		return
	}
	body, err := fc.MarshalJSON()
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode GeoJSON", err))
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// HandleListByPet handles GET /v1/pets/{petID}/predictions?limit=N.
func (h *PredictionHandler) HandleListByPet(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField,
				"limit must be an integer", err))
			return
		}
		limit = n
	}
	rows, err := h.store.ListByPet(r.Context(), chi.URLParam(r, "petID"), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, rows)
}

type refreshResponse struct {
	PredictionID string `json:"prediction_id"`
	TraceID      string `json:"trace_id"`
	Status       string `json:"status"`
}

// HandleRefresh handles POST /v1/predictions/{id}/refresh. The prediction
// must exist; the recompute happens asynchronously in the refresh worker.
func (h *PredictionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.MarkRefreshRequested(r.Context(), id, h.clock.Now()); err != nil {
		core.Error(w, r, err)
		return
	}
	traceID, err := h.refresh.RequestRefresh(r.Context(), id, "manual")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusAccepted, refreshResponse{PredictionID: id, TraceID: traceID, Status: "queued"})
}

type calibrationResponse struct {
	Version               string   `json:"version"`
	DefaultPriorityPreset string   `json:"default_priority_preset"`
	PriorityPresets       []string `json:"priority_presets"`
}

// HandleCalibration handles GET /v1/calibration. ?format=yaml returns the
// full table.
func (h *PredictionHandler) HandleCalibration(w http.ResponseWriter, r *http.Request) {
	table := h.engine.Calibration()
	if r.URL.Query().Get("format") == "yaml" {
		body, err := table.YAML()
		if err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to render calibration", err))
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}
	core.Data(w, r, http.StatusOK, calibrationResponse{
		Version:               table.Version,
		DefaultPriorityPreset: table.DefaultPriorityPreset,
		PriorityPresets:       table.PresetNames(),
	})
}
