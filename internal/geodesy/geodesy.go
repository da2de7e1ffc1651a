// Package geodesy provides the WGS-84 environment models the navigation
// filter needs: Earth rotation rate and transport rate resolved in the local
// NED frame, normal gravity, and the meridian/transverse radii of curvature.
// All functions are stateless; angles are radians, lengths meters.
package geodesy

import "math"

// WGS-84 constants.
const (
	SemiMajorAxis = 6378137.0             // equatorial radius, m
	Eccentricity2 = 6.69437999014e-3      // first eccentricity squared
	EarthRateMag  = 7.2921151467e-5       // Earth rotation rate, rad/s
	Deg           = math.Pi / 180         // degrees to radians
)

// Vec3 is a plain 3-vector in the local NED frame (north, east, down).
type Vec3 [3]float64

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v[0] + w[0], v[1] + w[1], v[2] + w[2]}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v[0] - w[0], v[1] - w[1], v[2] - w[2]}
}

// Scale returns s*v.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{s * v[0], s * v[1], s * v[2]}
}

// Cross returns the cross product v × w.
func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		v[1]*w[2] - v[2]*w[1],
		v[2]*w[0] - v[0]*w[2],
		v[0]*w[1] - v[1]*w[0],
	}
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// EarthRate returns the Earth rotation rate vector resolved in the NED frame
// at geodetic latitude lat.
func EarthRate(lat float64) Vec3 {
	return Vec3{
		EarthRateMag * math.Cos(lat),
		0,
		-EarthRateMag * math.Sin(lat),
	}
}

// TransportRate returns the rotation rate of the NED frame with respect to
// the Earth frame caused by vehicle motion over the curved surface.
func TransportRate(lat, vN, vE, h float64) Vec3 {
	rm, rn := Radii(lat)
	return Vec3{
		vE / (rn + h),
		-vN / (rm + h),
		-vE * math.Tan(lat) / (rn + h),
	}
}

// Gravity returns the local gravity vector in the NED frame (down positive)
// using the Somigliana normal-gravity model with a free-air altitude
// correction.
func Gravity(lat, h float64) Vec3 {
	s2 := math.Sin(lat) * math.Sin(lat)
	g0 := 9.7803253359 * (1 + 0.00193185265241*s2) / math.Sqrt(1-Eccentricity2*s2)
	g := g0 - 3.086e-6*h
	return Vec3{0, 0, g}
}

// Radii returns the meridian (north-south) and transverse/normal (east-west)
// radii of curvature at geodetic latitude lat.
func Radii(lat float64) (rm, rn float64) {
	s2 := math.Sin(lat) * math.Sin(lat)
	den := 1 - Eccentricity2*s2
	rn = SemiMajorAxis / math.Sqrt(den)
	rm = SemiMajorAxis * (1 - Eccentricity2) / (den * math.Sqrt(den))
	return rm, rn
}
