package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pawtrail/internal/payload"
	"pawtrail/internal/types"
)

func sampleResult() *types.PredictionResult {
	return &types.PredictionResult{
		ID: "4b1d0c55-3f7e-4f0a-9a43-8d1b2c7e6f10",
		PetProfile: types.PetProfile{
			ID:      "pet-7",
			Species: types.SpeciesDog,
		},
		Anchor:             types.LatLng{Lat: 40.7128, Lng: -74.006},
		HeatmapData:        []types.HeatmapPoint{{Location: types.LatLng{Lat: 40.7128, Lng: -74.006}, Weight: 1}},
		Recommendations:    []string{"Start searching now"},
		ConfidenceScore:    0.8,
		LastUpdated:        time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC),
		CalibrationVersion: "2024.1",
		Seed:               1<<63 + 5,
	}
}

func TestPredictionRepository_Save(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)
	res := sampleResult()

	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return assert.Contains(t, sql, "ON CONFLICT (id) DO UPDATE")
	}), mock.MatchedBy(func(args []any) bool {
		if len(args) != 9 || args[0] != res.ID || args[1] != "pet-7" || args[2] != "dog" {
			return false
		}
		// Seeds above MaxInt64 survive as their two's-complement bit pattern.
		if uint64(args[4].(int64)) != res.Seed {
			return false
		}
		var back types.PredictionResult
		return payload.Decode(args[7].([]byte), &back) == nil && back.ID == res.ID
	})).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Save(context.Background(), res))
	db.AssertExpectations(t)
}

func TestPredictionRepository_Save_Errors(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)

	err := repo.Save(context.Background(), &types.PredictionResult{})
	assert.True(t, types.IsCode(err, types.ErrCodeValidationMissingField))

	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))
	err = repo.Save(context.Background(), sampleResult())
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestPredictionRepository_Get(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)
	res := sampleResult()
	blob, err := payload.Encode(res)
	require.NoError(t, err)

	row := &mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*[]byte) = blob
		return nil
	}}
	db.On("QueryRow", mock.Anything, mock.Anything, []any{res.ID}).Return(row)

	got, err := repo.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Seed, got.Seed)
	assert.Equal(t, res.PetProfile.ID, got.PetProfile.ID)
	assert.Equal(t, res.HeatmapData, got.HeatmapData)
	assert.True(t, res.LastUpdated.Equal(got.LastUpdated))
}

func TestPredictionRepository_Get_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundPrediction))
}

func TestPredictionRepository_Get_Corrupt(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(&mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*[]byte) = []byte("garbage")
		return nil
	}})

	_, err := repo.Get(context.Background(), "x")
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestPredictionRepository_ListByPet(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)
	ts := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)

	rows := newMockRows([][]any{
		{"a", "pet-7", "dog", 0.8, false, "2024.1", ts},
		{"b", "pet-7", "dog", 0.5, true, "2024.1", ts.Add(-time.Hour)},
	})
	db.On("Query", mock.Anything, mock.Anything, []any{"pet-7", 20}).Return(rows, nil)

	out, err := repo.ListByPet(context.Background(), "pet-7", 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.True(t, out[1].Degraded)
	assert.True(t, rows.closed)
}

func TestPredictionRepository_MarkRefreshRequested(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPredictionRepository(db)
	at := time.Date(2026, 6, 21, 13, 0, 0, 0, time.UTC)

	db.On("Exec", mock.Anything, mock.Anything, []any{"known", at}).Return(pgconn.NewCommandTag("UPDATE 1"), nil)
	db.On("Exec", mock.Anything, mock.Anything, []any{"unknown", at}).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	require.NoError(t, repo.MarkRefreshRequested(context.Background(), "known", at))
	err := repo.MarkRefreshRequested(context.Background(), "unknown", at)
	assert.True(t, types.IsCode(err, types.ErrCodeNotFoundPrediction))
}
