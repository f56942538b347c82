package resolver

import (
	"encoding/json"
	"time"

	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// ProviderStraightLine names the fallback used when no router answers.
const ProviderStraightLine = "straight_line"

// RouteResult has the same shape whether it came from a routing service or
// the straight-line fallback; Degraded tells them apart.
type RouteResult struct {
	Path           []domain.Coordinate
	DistanceMeters float64
	Duration       *time.Duration // nil when degraded
	Degraded       bool
	Provider       string
}

type routeJSON struct {
	Path            []domain.Coordinate `json:"path"`
	DistanceMeters  float64             `json:"distance_meters"`
	DurationSeconds *float64            `json:"duration_seconds"`
	Degraded        bool                `json:"degraded"`
	Provider        string              `json:"provider"`
}

// MarshalJSON renders Duration as seconds, or null when unset.
func (r RouteResult) MarshalJSON() ([]byte, error) {
	var secs *float64
	if r.Duration != nil {
		s := r.Duration.Seconds()
		secs = &s
	}
	path := r.Path
	if path == nil {
		path = []domain.Coordinate{}
	}
	return json.Marshal(routeJSON{path, r.DistanceMeters, secs, r.Degraded, r.Provider})
}

func (r *RouteResult) UnmarshalJSON(b []byte) error {
	var v routeJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = RouteResult{Path: v.Path, DistanceMeters: v.DistanceMeters, Degraded: v.Degraded, Provider: v.Provider}
	if v.DurationSeconds != nil {
		d := time.Duration(*v.DurationSeconds * float64(time.Second))
		r.Duration = &d
	}
	return nil
}

// StraightLine is the degraded route: the two endpoints and their
// great-circle distance, with no duration.
func StraightLine(origin, destination domain.Coordinate) RouteResult {
	return RouteResult{
		Path:           []domain.Coordinate{origin, destination},
		DistanceMeters: domain.HaversineMeters(origin, destination),
		Degraded:       true,
		Provider:       ProviderStraightLine,
	}
}
