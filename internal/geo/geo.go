// Package geo holds the spherical-earth math used to place followers
// around a leader.
package geo

import "math"

// EarthRadiusM is the mean earth radius in meters.
const EarthRadiusM = 6371008.8

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Project returns the coordinate reached by travelling distanceM meters from
// the leader along bearing leaderHeadingDeg+relativeAngleDeg. Angles are
// degrees clockwise from true north. NaN inputs yield NaN outputs.
func Project(leaderLat, leaderLon, leaderHeadingDeg, distanceM, relativeAngleDeg float64) (lat, lon float64) {
	bearing := radians(leaderHeadingDeg) + radians(relativeAngleDeg)
	return Destination(leaderLat, leaderLon, bearing, distanceM)
}

// Destination solves the forward problem on a sphere: start point, bearing in
// radians and distance in meters to end point in degrees.
func Destination(lat, lon, bearingRad, distanceM float64) (float64, float64) {
	phi1 := radians(lat)
	lambda1 := radians(lon)
	delta := distanceM / EarthRadiusM

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(bearingRad))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(bearingRad)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2),
	)
	return degrees(phi2), normalizeLon(degrees(lambda2))
}

// normalizeLon wraps a longitude into [-180, 180).
func normalizeLon(lon float64) float64 {
	if lon >= -180 && lon < 180 {
		return lon
	}
	return math.Mod(math.Mod(lon+180, 360)+360, 360) - 180
}

// Distance calculates the haversine distance in meters between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

// Bearing returns the initial great-circle bearing from the first point to the
// second in degrees, in [0, 360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := radians(lat1), radians(lat2)
	dLon := radians(lon2 - lon1)
	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)
	return NormalizeHeading(degrees(math.Atan2(y, x)))
}

// NormalizeHeading wraps a heading into [0, 360).
func NormalizeHeading(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
