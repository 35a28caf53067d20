package geo

import "math"

// earthRadiusM is the spherical-Earth radius used for all distance math.
const earthRadiusM = 6371000.0

// Point is a WGS84 latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// Average returns the arithmetic mean position of the given points.
func Average(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var lat, lng float64
	for _, p := range points {
		lat += p.Lat
		lng += p.Lng
	}
	n := float64(len(points))
	return Point{Lat: lat / n, Lng: lng / n}
}

const (
	// Per-pairing step bounds: anything under MinStepM is stationary
	// jitter, anything over MaxStepM is a GPS teleport.
	MinStepM = 1.5
	MaxStepM = 15.0
)

// ValidStep returns d when it falls inside the plausible walking band
// [MinStepM, MaxStepM], and 0 otherwise.
func ValidStep(d float64) float64 {
	if d > MaxStepM || d < MinStepM {
		return 0
	}
	return d
}
