package external

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"pawtrail/internal/types"
)

// DangerZoneSource is any backend that lists hazards near prediction areas.
type DangerZoneSource interface {
	FindDangerZones(ctx context.Context, areas []types.PredictionArea) ([]types.DangerZone, error)
}

// DangerZoneSet queries several sources in parallel and merges their
// results. It fails only when every source fails.
type DangerZoneSet struct {
	sources []DangerZoneSource
	logger  *slog.Logger
}

// NewDangerZoneSet merges sources in the given order; earlier sources win
// when zones overlap. logger receives per-source failures.
func NewDangerZoneSet(logger *slog.Logger, sources ...DangerZoneSource) *DangerZoneSet {
	return &DangerZoneSet{sources: sources, logger: logger}
}

// FindDangerZones merges source results in source order. Zones of the same
// type within 25 m of an earlier one are dropped.
func (s *DangerZoneSet) FindDangerZones(ctx context.Context, areas []types.PredictionArea) ([]types.DangerZone, error) {
	if len(s.sources) == 0 {
		return []types.DangerZone{}, nil
	}

	results := make([][]types.DangerZone, len(s.sources))
	errs := make([]error, len(s.sources))
	var g errgroup.Group
	for i, src := range s.sources {
		g.Go(func() error {
			results[i], errs[i] = src.FindDangerZones(ctx, areas)
			return nil
		})
	}
	_ = g.Wait()

	var (
		out     = make([]types.DangerZone, 0)
		lastErr error
		ok      int
	)
	for i := range s.sources {
		if errs[i] != nil {
			lastErr = errs[i]
			s.logger.WarnContext(ctx, "danger zone source failed", "source", i, "error", errs[i])
			continue
		}
		ok++
		for _, z := range results[i] {
			if !duplicateZone(out, z) {
				out = append(out, z)
			}
		}
	}
	if ok == 0 {
		return nil, lastErr
	}
	return out, nil
}

func duplicateZone(existing []types.DangerZone, z types.DangerZone) bool {
	for _, e := range existing {
		if e.Type != z.Type {
			continue
		}
		// Equirectangular approximation is accurate at this scale.
		dLat := (e.Location.Lat - z.Location.Lat) * metersPerDeg
		dLng := (e.Location.Lng - z.Location.Lng) * metersPerDeg * math.Cos(z.Location.Lat*math.Pi/180)
		if math.Hypot(dLat, dLng) < 25 {
			return true
		}
	}
	return false
}
