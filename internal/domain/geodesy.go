package domain

import "math"

const earthRadiusMeters = 6371008.8

// PlanarDistance is the Euclidean distance between two points in degrees.
func PlanarDistance(a, b Coordinate) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lon-b.Lon)
}

// HaversineMeters is the great-circle distance between two points.
func HaversineMeters(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
