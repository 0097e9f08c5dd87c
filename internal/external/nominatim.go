package external

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"pawtrail/internal/types"
)

// NominatimClient resolves addresses with an OSM Nominatim search endpoint.
type NominatimClient struct {
	*BaseClient
	endpoint string
}

// NewNominatimClient creates a geocoder. endpoint is the search URL, e.g.
// https://nominatim.openstreetmap.org/search.
func NewNominatimClient(base *BaseClient, endpoint string) *NominatimClient {
	return &NominatimClient{BaseClient: base, endpoint: endpoint}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Resolve implements prediction.GeocodingService. An address with no match
// returns (nil, nil).
func (c *NominatimClient) Resolve(ctx context.Context, address string) (*types.GeocodeResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")

	var places []nominatimPlace
	if err := c.GetJSON(ctx, c.endpoint+"?"+q.Encode(), &places); err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, nil
	}

	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lng, errLng := strconv.ParseFloat(places[0].Lon, 64)
	if errLat != nil || errLng != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeocoding, "nominatim returned a malformed coordinate", nil)
	}
	return &types.GeocodeResult{
		Location:    types.LatLng{Lat: lat, Lng: lng},
		DisplayName: places[0].DisplayName,
	}, nil
}
