package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether the point lies within WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!(p.Lat == 0 && p.Lng == 0)
}

// DistanceKm returns the great-circle distance between two points in
// kilometres, rounded to 0.1 km.
func DistanceKm(a, b Point) float64 {
	return math.Round(haversineKm(a, b)*10) / 10
}

// DistanceM returns the great-circle distance between two points in metres.
func DistanceM(a, b Point) float64 {
	return haversineKm(a, b) * 1000
}

// ETAMinutes derives a travel estimate from a distance in kilometres. This is
// a fixed heuristic, not a routing estimate; pricing and clients assume it.
func ETAMinutes(distanceKm float64) int {
	return int(math.Round(distanceKm * 2))
}

func haversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
