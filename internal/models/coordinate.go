package models

import "math"

// Coordinate represents a geographical point. It lives only in request and
// response payloads; nothing in this service persists it.
type Coordinate struct {
	Lat float64 `json:"lat"` // Latitude of the geographical point, in [-90, 90].
	Lon float64 `json:"lon"` // Longitude of the geographical point, in [-180, 180].
}

// Valid reports whether both components are finite and within the WGS84 range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}
