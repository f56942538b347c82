// Package resolver answers nearest-facility and routing queries against the
// shared facility table.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/crisis-sim/internal/domain"
	"github.com/couchcryptid/crisis-sim/internal/observability"
)

// FacilitySource supplies a copy of the current facility table.
type FacilitySource interface {
	Facilities() []domain.Facility
}

// Options configures a Resolver.
type Options struct {
	// Default is used when device location is unavailable.
	Default domain.Coordinate
	// Timeout bounds each routing and geolocation call.
	Timeout time.Duration
	// Profile is the travel profile requested from the router.
	Profile string
	// Provider labels successful routes, e.g. "mapbox".
	Provider string
}

// DefaultOrigin is central Doha.
var DefaultOrigin = domain.Coordinate{Lat: 25.2854, Lon: 51.5310}

// Resolver reads facilities and never writes them.
type Resolver struct {
	facilities FacilitySource
	router     domain.Router
	locator    domain.Locator
	geocoder   domain.Geocoder
	opts       Options
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Resolver. router, locator and geocoder may be nil.
func New(facilities FacilitySource, router domain.Router, locator domain.Locator, geocoder domain.Geocoder,
	opts Options, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	if opts.Default == (domain.Coordinate{}) {
		opts.Default = DefaultOrigin
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Profile == "" {
		opts.Profile = "driving"
	}
	if opts.Provider == "" {
		opts.Provider = "router"
	}
	return &Resolver{
		facilities: facilities,
		router:     router,
		locator:    locator,
		geocoder:   geocoder,
		opts:       opts,
		logger:     logger,
		metrics:    metrics,
	}
}

// NearestFacility runs Nearest over the current facility table.
func (r *Resolver) NearestFacility(_ context.Context, origin domain.Coordinate, category *domain.FacilityCategory) (Match, error) {
	m, err := Nearest(r.facilities.Facilities(), origin, category)
	if err != nil {
		r.metrics.NearestLookups.WithLabelValues("none").Inc()
		return Match{}, err
	}
	r.metrics.NearestLookups.WithLabelValues("found").Inc()
	return m, nil
}

// Route asks the router for a path and falls back to a straight line on any
// failure. It never returns an error.
func (r *Resolver) Route(ctx context.Context, origin, destination domain.Coordinate) RouteResult {
	if r.router == nil {
		r.metrics.RouteRequests.WithLabelValues(ProviderStraightLine, "fallback").Inc()
		return StraightLine(origin, destination)
	}

	route, err := r.directions(ctx, origin, destination)
	if err != nil {
		r.logger.Warn("routing failed, using straight line",
			"provider", r.opts.Provider,
			"origin", origin,
			"destination", destination,
			"error", err,
		)
		r.metrics.RouteRequests.WithLabelValues(r.opts.Provider, "fallback").Inc()
		return StraightLine(origin, destination)
	}

	r.metrics.RouteRequests.WithLabelValues(r.opts.Provider, "success").Inc()
	d := route.Duration
	return RouteResult{
		Path:           route.Path,
		DistanceMeters: route.DistanceMeters,
		Duration:       &d,
		Provider:       r.opts.Provider,
	}
}

func (r *Resolver) directions(ctx context.Context, origin, destination domain.Coordinate) (domain.Route, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	route, err := r.router.Directions(ctx, origin, destination, r.opts.Profile)
	if err != nil {
		return domain.Route{}, err
	}
	if len(route.Path) < 2 {
		return domain.Route{}, fmt.Errorf("%w: route has %d points", domain.ErrRoutingUnavailable, len(route.Path))
	}
	return route, nil
}

// Guidance is a nearest facility together with the route to it.
type Guidance struct {
	Origin Origin      `json:"origin"`
	Match  Match       `json:"match"`
	Route  RouteResult `json:"route"`
}

// Guide finds the nearest facility to origin and routes to it.
func (r *Resolver) Guide(ctx context.Context, origin Origin, category *domain.FacilityCategory) (Guidance, error) {
	m, err := r.NearestFacility(ctx, origin.Coordinate, category)
	if err != nil {
		return Guidance{}, err
	}
	return Guidance{
		Origin: origin,
		Match:  m,
		Route:  r.Route(ctx, origin.Coordinate, m.Facility.Location),
	}, nil
}

// Origin sources.
const (
	SourceDevice  = "device"
	SourceDefault = "default"
	SourceRequest = "request"
)

// Origin is a starting point with where it came from.
type Origin struct {
	domain.Coordinate
	Source string `json:"source"`
	Label  string `json:"label,omitempty"`
}

// Locate returns the device's coarse position, or the configured default when
// no locator is set or it fails. The origin is labelled by reverse geocoding
// when a geocoder is set.
func (r *Resolver) Locate(ctx context.Context) Origin {
	origin := Origin{Coordinate: r.opts.Default, Source: SourceDefault}
	if r.locator != nil {
		lctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		c, err := r.locator.Locate(lctx)
		cancel()
		switch {
		case err != nil:
			r.logger.Warn("device location unavailable, using default", "error", err)
		case !c.Valid():
			r.logger.Warn("device location out of range, using default", "lat", c.Lat, "lon", c.Lon)
		default:
			origin = Origin{Coordinate: c, Source: SourceDevice}
		}
	}
	origin.Label = r.Label(ctx, origin.Coordinate)
	return origin
}

// Label reverse-geocodes c, returning "" when no geocoder answers.
func (r *Resolver) Label(ctx context.Context, c domain.Coordinate) string {
	if r.geocoder == nil {
		return ""
	}
	gctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return domain.LabelCoordinate(gctx, c, r.geocoder, r.logger)
}
