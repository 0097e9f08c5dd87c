package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"pawtrail/internal/payload"
	"pawtrail/internal/types"
)

// PredictionRepository persists prediction results. The full result is kept
// as a zstd-compressed JSON payload; the scalar columns exist for listing
// and operations queries.
type PredictionRepository struct {
	db DBTX
}

// NewPredictionRepository creates a repository over a pool or transaction.
func NewPredictionRepository(db DBTX) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// PredictionSummary is a lightweight listing row.
type PredictionSummary struct {
	ID                 string    `json:"id"`
	PetID              string    `json:"pet_id"`
	Species            string    `json:"species"`
	ConfidenceScore    float64   `json:"confidence_score"`
	Degraded           bool      `json:"degraded"`
	CalibrationVersion string    `json:"calibration_version"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Save upserts a result keyed by its ID. A refresh keeps the original
// created_at and clears any pending refresh marker.
func (r *PredictionRepository) Save(ctx context.Context, res *types.PredictionResult) error {
	if res == nil || res.ID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "prediction id is required", nil)
	}
	blob, err := payload.Encode(res)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode prediction", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO predictions
			(id, pet_id, species, calibration_version, seed, confidence, degraded, payload, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			calibration_version = EXCLUDED.calibration_version,
			seed = EXCLUDED.seed,
			confidence = EXCLUDED.confidence,
			degraded = EXCLUDED.degraded,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at,
			refresh_requested_at = NULL`,
		res.ID,
		res.PetProfile.ID,
		string(res.PetProfile.Species),
		res.CalibrationVersion,
		int64(res.Seed),
		res.ConfidenceScore,
		res.Degraded,
		blob,
		res.LastUpdated,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save prediction", err)
	}
	return nil
}

// Get loads a stored result.
func (r *PredictionRepository) Get(ctx context.Context, id string) (*types.PredictionResult, error) {
	var blob []byte
	err := r.db.QueryRow(ctx, `SELECT payload FROM predictions WHERE id = $1`, id).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPrediction, "prediction not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load prediction", err)
	}

	var res types.PredictionResult
	if err := payload.Decode(blob, &res); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "stored prediction is corrupt", err)
	}
	return &res, nil
}

// ListByPet returns the newest predictions for a pet, newest first.
func (r *PredictionRepository) ListByPet(ctx context.Context, petID string, limit int) ([]PredictionSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, pet_id, species, confidence, degraded, calibration_version, updated_at
		 FROM predictions
		 WHERE pet_id = $1
		 ORDER BY updated_at DESC
		 LIMIT $2`, petID, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list predictions", err)
	}
	defer rows.Close()

	out := make([]PredictionSummary, 0)
	for rows.Next() {
		var s PredictionSummary
		if err := rows.Scan(&s.ID, &s.PetID, &s.Species, &s.ConfidenceScore, &s.Degraded,
			&s.CalibrationVersion, &s.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan prediction row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating prediction rows", err)
	}
	return out, nil
}

// MarkRefreshRequested stamps a pending refresh. It fails with
// not_found_prediction when the ID is unknown.
func (r *PredictionRepository) MarkRefreshRequested(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE predictions SET refresh_requested_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark refresh", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPrediction, "prediction not found", nil)
	}
	return nil
}
