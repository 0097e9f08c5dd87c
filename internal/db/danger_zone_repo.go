package db

import (
	"context"
	"math"

	"pawtrail/internal/geo"
	"pawtrail/internal/types"
)

// maxCuratedZones bounds the rows read for one lookup.
const maxCuratedZones = 200

// DangerZoneRepository serves operator-curated hazards (known busy
// crossings, open water, construction sites) stored in danger_zones.
type DangerZoneRepository struct {
	db DBTX
}

// NewDangerZoneRepository creates a repository over a pool or transaction.
func NewDangerZoneRepository(db DBTX) *DangerZoneRepository {
	return &DangerZoneRepository{db: db}
}

// FindDangerZones returns active zones inside the bounding box of the given
// areas that also fall within at least one area's radius.
func (r *DangerZoneRepository) FindDangerZones(ctx context.Context, areas []types.PredictionArea) ([]types.DangerZone, error) {
	bound, ok := geo.Bound(areas)
	if !ok {
		return []types.DangerZone{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT name, zone_type, severity, location_lat, location_lon
		 FROM danger_zones
		 WHERE active
		   AND location_lat BETWEEN $1 AND $2
		   AND location_lon BETWEEN $3 AND $4
		 ORDER BY id
		 LIMIT $5`,
		bound.Bottom(), bound.Top(), bound.Left(), bound.Right(), maxCuratedZones)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query danger zones", err)
	}
	defer rows.Close()

	out := make([]types.DangerZone, 0)
	for rows.Next() {
		var z types.DangerZone
		if err := rows.Scan(&z.Name, &z.Type, &z.Severity, &z.Location.Lat, &z.Location.Lng); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan danger zone", err)
		}
		if withinAny(z.Location, areas) {
			out = append(out, z)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating danger zones", err)
	}
	return out, nil
}

func withinAny(p types.LatLng, areas []types.PredictionArea) bool {
	for _, a := range areas {
		if math.IsNaN(a.RadiusM) {
			continue
		}
		if geo.DistanceM(a.Center, p) <= a.RadiusM {
			return true
		}
	}
	return false
}
