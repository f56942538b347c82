//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/crisis-sim/internal/domain"
	"github.com/couchcryptid/crisis-sim/internal/observability"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, 10*time.Second, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_ForwardGeocode(t *testing.T) {
	c := smokeClient(t)

	result, err := c.ForwardGeocode(context.Background(), "Al Wakrah", "Qatar")
	require.NoError(t, err)

	assert.InDelta(t, 25.17, result.Lat, 0.1, "lat should be near Al Wakrah")
	assert.InDelta(t, 51.60, result.Lon, 0.1, "lon should be near Al Wakrah")
	assert.Contains(t, result.FormattedAddress, "Qatar")
	assert.Greater(t, result.Confidence, 0.5)
}

func TestSmoke_ReverseGeocode(t *testing.T) {
	c := smokeClient(t)

	result, err := c.ReverseGeocode(context.Background(), 25.2854, 51.5310)
	require.NoError(t, err)

	assert.NotEmpty(t, result.FormattedAddress)
	assert.NotEmpty(t, result.PlaceName)
}

func TestSmoke_Directions(t *testing.T) {
	c := smokeClient(t)

	route, err := c.Directions(context.Background(),
		domain.Coordinate{Lat: 25.2854, Lon: 51.5310},
		domain.Coordinate{Lat: 25.2921, Lon: 51.5028},
		"driving")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(route.Path), 2)
	assert.Greater(t, route.DistanceMeters, 1000.0)
	assert.Positive(t, route.Duration)
}

func TestSmoke_CachedGeocoder(t *testing.T) {
	c := smokeClient(t)
	cached := NewCachedGeocoder(c, 10, observability.NewMetricsForTesting())

	r1, err := cached.ForwardGeocode(context.Background(), "Lusail", "Qatar")
	require.NoError(t, err)
	assert.Contains(t, r1.FormattedAddress, "Lusail")

	r2, err := cached.ForwardGeocode(context.Background(), "Lusail", "Qatar")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
