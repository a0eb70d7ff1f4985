// Package geo provides geodesic math and coordinate sanity checks for
// attendance submissions.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius used for great-circle math.
const earthRadiusMeters = 6371000.0

// Coordinate is a WGS-84 style latitude/longitude sample. AccuracyMeters is
// the reported horizontal accuracy of the fix; nil when the client did not
// supply one.
type Coordinate struct {
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`
	AccuracyMeters *float64 `json:"accuracy_meters,omitempty"`
}

// DistanceMeters calculates the great-circle distance between two coordinates
// using the Haversine formula. It is total: NaN inputs propagate NaN, callers
// are expected to validate first.
func DistanceMeters(a, b Coordinate) float64 {
	lat1Rad := a.Latitude * math.Pi / 180
	lat2Rad := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}
