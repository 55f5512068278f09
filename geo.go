package stationfinder

import "math"

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometers between two
// points given in decimal degrees, computed with the haversine formula.
// Symmetric, and zero for coincident points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	// Float error can push a just outside [0,1] for antipodal or coincident
	// points, which would take Asin/Sqrt out of their domains.
	if a < 0 {
		a = 0
	}
	if a > 1 {
		a = 1
	}

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// validLatLon reports whether the pair is a usable WGS84 coordinate.
func validLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
