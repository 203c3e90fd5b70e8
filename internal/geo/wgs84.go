// Package geo places local model coordinates on the WGS84 ellipsoid.
package geo

import (
	"math"

	pmath "github.com/Faultbox/meshtiler/pkg/math"
)

// WGS84 ellipsoid parameters.
const (
	SemiMajorAxis = 6378137.0
	Flattening    = 1 / 298.257223563
)

var eccentricitySq = Flattening * (2 - Flattening)

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// CartographicToECEF converts longitude and latitude in degrees and height in
// meters to earth-centered earth-fixed coordinates.
func CartographicToECEF(lon, lat, height float64) pmath.Vec3 {
	lambda, phi := radians(lon), radians(lat)
	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	n := SemiMajorAxis / math.Sqrt(1-eccentricitySq*sinPhi*sinPhi)
	return pmath.Vec3{
		X: (n + height) * cosPhi * math.Cos(lambda),
		Y: (n + height) * cosPhi * math.Sin(lambda),
		Z: (n*(1-eccentricitySq) + height) * sinPhi,
	}
}

// enuBasis returns the east, north and up unit vectors at lon, lat.
func enuBasis(lon, lat float64) (east, north, up pmath.Vec3) {
	lambda, phi := radians(lon), radians(lat)
	sinL, cosL := math.Sin(lambda), math.Cos(lambda)
	sinP, cosP := math.Sin(phi), math.Cos(phi)
	east = pmath.Vec3{X: -sinL, Y: cosL}
	north = pmath.Vec3{X: -sinP * cosL, Y: -sinP * sinL, Z: cosP}
	up = pmath.Vec3{X: cosP * cosL, Y: cosP * sinL, Z: sinP}
	return east, north, up
}

// ENUToECEF returns the matrix taking east-north-up coordinates around the
// given origin to ECEF.
func ENUToECEF(lon, lat, height float64) pmath.Mat4 {
	e, n, u := enuBasis(lon, lat)
	return pmath.FromColumns(e, n, u, CartographicToECEF(lon, lat, height))
}

// ENUOffset rotates an east-north-up offset at lon, lat into ECEF.
func ENUOffset(lon, lat float64, offset pmath.Vec3) pmath.Vec3 {
	e, n, u := enuBasis(lon, lat)
	return e.Scale(offset.X).Add(n.Scale(offset.Y)).Add(u.Scale(offset.Z))
}

// TransformWithOffset is ENUToECEF with its translation moved by an
// east-north-up offset, for models whose local origin is not the anchor.
func TransformWithOffset(lon, lat, height float64, offset pmath.Vec3) pmath.Mat4 {
	d := ENUOffset(lon, lat, offset)
	return pmath.Translate(d.X, d.Y, d.Z).Mul(ENUToECEF(lon, lat, height))
}
