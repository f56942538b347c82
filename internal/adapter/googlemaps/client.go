// Package googlemaps implements domain.Router with the Google Directions API
// and domain.Locator with the Google Geolocation API.
package googlemaps

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"googlemaps.github.io/maps"

	"github.com/couchcryptid/crisis-sim/internal/domain"
	"github.com/couchcryptid/crisis-sim/internal/observability"
)

// ProviderName labels route metrics and results served by this package.
const ProviderName = "google"

// Client wraps a maps.Client.
type Client struct {
	api     *maps.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a Google Maps client. baseURL overrides the API host and
// is empty outside tests.
func NewClient(apiKey, baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) (*Client, error) {
	opts := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if baseURL != "" {
		opts = append(opts, maps.WithBaseURL(baseURL))
	}
	api, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create google maps client: %w", err)
	}
	return &Client{api: api, metrics: metrics, logger: logger}, nil
}

// Directions implements domain.Router. profile accepts the Mapbox-style names
// "driving", "walking" and "cycling" as well as Google's own modes.
func (c *Client) Directions(ctx context.Context, origin, destination domain.Coordinate, profile string) (domain.Route, error) {
	req := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        travelMode(profile),
	}

	start := time.Now()
	routes, _, err := c.api.Directions(ctx, req)
	c.metrics.RouteAPIDuration.WithLabelValues(ProviderName).Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.Route{}, fmt.Errorf("%w: google directions: %w", domain.ErrRoutingUnavailable, err)
	}
	if len(routes) == 0 {
		return domain.Route{}, fmt.Errorf("%w: google directions: no route found", domain.ErrRoutingUnavailable)
	}

	r := routes[0]
	points, err := r.OverviewPolyline.Decode()
	if err != nil {
		return domain.Route{}, fmt.Errorf("%w: decode polyline: %w", domain.ErrRoutingUnavailable, err)
	}

	route := domain.Route{Path: make([]domain.Coordinate, 0, len(points))}
	for _, p := range points {
		route.Path = append(route.Path, domain.Coordinate{Lat: p.Lat, Lon: p.Lng})
	}
	for _, leg := range r.Legs {
		if leg == nil {
			continue
		}
		route.DistanceMeters += float64(leg.Meters)
		route.Duration += leg.Duration
	}
	return route, nil
}

// Locate implements domain.Locator using IP-based geolocation of the host.
func (c *Client) Locate(ctx context.Context) (domain.Coordinate, error) {
	res, err := c.api.Geolocate(ctx, &maps.GeolocationRequest{ConsiderIP: true})
	if err != nil {
		return domain.Coordinate{}, fmt.Errorf("google geolocate: %w", err)
	}
	coord := domain.Coordinate{Lat: res.Location.Lat, Lon: res.Location.Lng}
	if !coord.Valid() || coord == (domain.Coordinate{}) {
		return domain.Coordinate{}, fmt.Errorf("google geolocate: invalid location %v", res.Location)
	}
	c.logger.Debug("device located", "lat", coord.Lat, "lon", coord.Lon, "accuracy_m", res.Accuracy)
	return coord, nil
}

func latLng(c domain.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

func travelMode(profile string) maps.Mode {
	switch profile {
	case "walking":
		return maps.TravelModeWalking
	case "cycling", "bicycling":
		return maps.TravelModeBicycling
	case "transit":
		return maps.TravelModeTransit
	default:
		return maps.TravelModeDriving
	}
}
