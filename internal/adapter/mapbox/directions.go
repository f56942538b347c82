package mapbox

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// ProviderName labels route metrics and results served by this package.
const ProviderName = "mapbox"

// Directions implements domain.Router. profile is a Mapbox routing profile
// such as "driving" or "walking"; an empty profile means "driving".
func (c *Client) Directions(ctx context.Context, origin, destination domain.Coordinate, profile string) (domain.Route, error) {
	if profile == "" {
		profile = "driving"
	}

	// Mapbox uses lon,lat order.
	waypoints := fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", origin.Lon, origin.Lat, destination.Lon, destination.Lat)
	u := fmt.Sprintf("%s/%s/%s", c.directionsURL, url.PathEscape(profile), waypoints)
	params := url.Values{
		"access_token": {c.token},
		"geometries":   {"geojson"},
		"overview":     {"full"},
	}

	start := time.Now()
	var dirResp directionsResponse
	err := c.getJSON(ctx, u+"?"+params.Encode(), &dirResp)
	c.metrics.RouteAPIDuration.WithLabelValues(ProviderName).Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Route{}, fmt.Errorf("%w: %w", domain.ErrRoutingUnavailable, err)
	}

	if dirResp.Code != "Ok" || len(dirResp.Routes) == 0 {
		return domain.Route{}, fmt.Errorf("%w: mapbox code %q: %s", domain.ErrRoutingUnavailable, dirResp.Code, dirResp.Message)
	}

	r := dirResp.Routes[0]
	path := make([]domain.Coordinate, 0, len(r.Geometry.Coordinates))
	for _, pt := range r.Geometry.Coordinates {
		if len(pt) < 2 {
			continue
		}
		path = append(path, domain.Coordinate{Lat: pt[1], Lon: pt[0]})
	}

	return domain.Route{
		Path:           path,
		DistanceMeters: r.Distance,
		Duration:       time.Duration(r.Duration * float64(time.Second)),
	}, nil
}

type directionsResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Routes  []directionsRow `json:"routes"`
}

type directionsRow struct {
	Distance float64 `json:"distance"` // metres
	Duration float64 `json:"duration"` // seconds
	Geometry struct {
		Coordinates [][]float64 `json:"coordinates"` // [lon, lat]
	} `json:"geometry"`
}
