package domain

import (
	"context"
	"log/slog"
)

// EnrichAlerts forward-geocodes each alert's Location into Geo. Alerts that
// already carry coordinates are left alone. If geocoder is nil or a lookup
// fails, the alert is kept without coordinates (graceful degradation).
func EnrichAlerts(ctx context.Context, alerts []Alert, geocoder Geocoder, region string, logger *slog.Logger) []Alert {
	if geocoder == nil {
		return alerts
	}

	out := make([]Alert, len(alerts))
	for i, a := range alerts {
		out[i] = EnrichAlert(ctx, a, geocoder, region, logger)
	}
	return out
}

// EnrichAlert geocodes a single alert. See EnrichAlerts.
func EnrichAlert(ctx context.Context, alert Alert, geocoder Geocoder, region string, logger *slog.Logger) Alert {
	if geocoder == nil || alert.Geo != nil || alert.Location == "" {
		return alert
	}

	result, err := geocoder.ForwardGeocode(ctx, alert.Location, region)
	if err != nil {
		logger.Warn("forward geocoding failed",
			"alert_type", alert.Type,
			"location", alert.Location,
			"region", region,
			"error", err,
		)
		return alert
	}
	if result.Lat == 0 && result.Lon == 0 {
		return alert
	}

	geo := Coordinate{Lat: result.Lat, Lon: result.Lon}
	if !geo.Valid() {
		return alert
	}
	alert.Geo = &geo
	return alert
}

// LabelCoordinate reverse-geocodes c into a display name. It returns "" when
// geocoder is nil or the lookup fails.
func LabelCoordinate(ctx context.Context, c Coordinate, geocoder Geocoder, logger *slog.Logger) string {
	if geocoder == nil {
		return ""
	}
	result, err := geocoder.ReverseGeocode(ctx, c.Lat, c.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed", "lat", c.Lat, "lon", c.Lon, "error", err)
		return ""
	}
	if result.PlaceName != "" {
		return result.PlaceName
	}
	return result.FormattedAddress
}
