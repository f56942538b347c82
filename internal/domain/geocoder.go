package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves place names used in alerts and labels coordinates.
type Geocoder interface {
	// ForwardGeocode converts a place name to coordinates. region biases the
	// search (e.g. "Qatar") and may be empty.
	ForwardGeocode(ctx context.Context, name, region string) (GeocodingResult, error)

	// ReverseGeocode converts coordinates to place details.
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}

// Locator provides a best-effort, coarse position of the calling device.
type Locator interface {
	Locate(ctx context.Context) (Coordinate, error)
}
