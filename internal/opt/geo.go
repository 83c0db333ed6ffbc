package opt

import "math"

const (
	earthRadiusKm = 6378.137

	// AverageSpeedKph is the constant driving speed used for every leg.
	AverageSpeedKph = 20.0
	// ServiceTimeSeconds is spent at every task location.
	ServiceTimeSeconds = 0.0
)

// DistanceKm returns the chord distance between two points on the earth sphere.
func DistanceKm(a, b Location) float64 {
	ax, ay, az := unitVector(a)
	bx, by, bz := unitVector(b)
	dx, dy, dz := bx-ax, by-ay, bz-az
	return math.Sqrt(dx*dx+dy*dy+dz*dz) * earthRadiusKm
}

func unitVector(l Location) (x, y, z float64) {
	lat := l.Lat * math.Pi / 180
	lng := l.Lng * math.Pi / 180
	return math.Cos(lat) * math.Cos(lng), math.Cos(lat) * math.Sin(lng), math.Sin(lat)
}

// TravelTimeSeconds converts a distance to seconds at the given speed.
// A non-positive speed never arrives.
func TravelTimeSeconds(distanceKm, speedKph float64) float64 {
	if speedKph <= 0 {
		return math.Inf(1)
	}
	return distanceKm / speedKph * 3600
}
