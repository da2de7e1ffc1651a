// Package attitude provides rotation representations and conversions used by
// the strapdown mechanization and the fusion filter: aerospace 3-2-1 Euler
// angles (roll, pitch, yaw), the body-to-NED direction cosine matrix, and the
// scalar-first unit quaternion. All conversions are deterministic and
// stateless.
package attitude

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/navsense/fusion/internal/geodesy"
)

// ErrDegenerateQuaternion reports a quaternion whose norm is zero or
// non-finite so it cannot be renormalized to a valid rotation.
var ErrDegenerateQuaternion = errors.New("attitude: quaternion norm is zero or non-finite")

// Quaternion is a scalar-first unit quaternion rotating the body frame into
// the NED navigation frame.
type Quaternion struct {
	W, X, Y, Z float64
}

// Skew returns the 3x3 skew-symmetric matrix [v×] such that Skew(v)*w = v × w.
func Skew(v geodesy.Vec3) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v[2], v[1],
		v[2], 0, -v[0],
		-v[1], v[0], 0,
	})
}

// EulerToDCM builds the body-to-NED direction cosine matrix from roll, pitch,
// yaw (radians).
func EulerToDCM(roll, pitch, yaw float64) *mat.Dense {
	cr, sr := math.Cos(roll), math.Sin(roll)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cy, sy := math.Cos(yaw), math.Sin(yaw)
	return mat.NewDense(3, 3, []float64{
		cp * cy, sr*sp*cy - cr*sy, cr*sp*cy + sr*sy,
		cp * sy, sr*sp*sy + cr*cy, cr*sp*sy - sr*cy,
		-sp, sr * cp, cr * cp,
	})
}

// DCMToEuler recovers roll, pitch, yaw from a body-to-NED direction cosine
// matrix. Pitch is clamped to ±π/2 to guard against roundoff outside the
// asin domain.
func DCMToEuler(c mat.Matrix) (roll, pitch, yaw float64) {
	s := -c.At(2, 0)
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	pitch = math.Asin(s)
	roll = math.Atan2(c.At(2, 1), c.At(2, 2))
	yaw = math.Atan2(c.At(1, 0), c.At(0, 0))
	return roll, pitch, yaw
}

// EulerToQuat builds the body-to-NED quaternion from roll, pitch, yaw.
func EulerToQuat(roll, pitch, yaw float64) Quaternion {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	return Quaternion{
		W: cr*cp*cy + sr*sp*sy,
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
	}
}

// Euler recovers roll, pitch, yaw from the quaternion.
func (q Quaternion) Euler() (roll, pitch, yaw float64) {
	roll = math.Atan2(2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))
	s := 2 * (q.W*q.Y - q.Z*q.X)
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	pitch = math.Asin(s)
	yaw = math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
	return roll, pitch, yaw
}

// DCM returns the body-to-NED direction cosine matrix equivalent to q.
func (q Quaternion) DCM() *mat.Dense {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// DCMToQuat converts a rotation matrix to a quaternion using Shepperd's
// method, branching on the largest diagonal term for numerical stability.
func DCMToQuat(c mat.Matrix) Quaternion {
	tr := c.At(0, 0) + c.At(1, 1) + c.At(2, 2)
	var q Quaternion
	switch {
	case tr > c.At(0, 0) && tr > c.At(1, 1) && tr > c.At(2, 2):
		s := 2 * math.Sqrt(1+tr)
		q = Quaternion{
			W: s / 4,
			X: (c.At(2, 1) - c.At(1, 2)) / s,
			Y: (c.At(0, 2) - c.At(2, 0)) / s,
			Z: (c.At(1, 0) - c.At(0, 1)) / s,
		}
	case c.At(0, 0) > c.At(1, 1) && c.At(0, 0) > c.At(2, 2):
		s := 2 * math.Sqrt(1+c.At(0, 0)-c.At(1, 1)-c.At(2, 2))
		q = Quaternion{
			W: (c.At(2, 1) - c.At(1, 2)) / s,
			X: s / 4,
			Y: (c.At(0, 1) + c.At(1, 0)) / s,
			Z: (c.At(0, 2) + c.At(2, 0)) / s,
		}
	case c.At(1, 1) > c.At(2, 2):
		s := 2 * math.Sqrt(1+c.At(1, 1)-c.At(0, 0)-c.At(2, 2))
		q = Quaternion{
			W: (c.At(0, 2) - c.At(2, 0)) / s,
			X: (c.At(0, 1) + c.At(1, 0)) / s,
			Y: s / 4,
			Z: (c.At(1, 2) + c.At(2, 1)) / s,
		}
	default:
		s := 2 * math.Sqrt(1+c.At(2, 2)-c.At(0, 0)-c.At(1, 1))
		q = Quaternion{
			W: (c.At(1, 0) - c.At(0, 1)) / s,
			X: (c.At(0, 2) + c.At(2, 0)) / s,
			Y: (c.At(1, 2) + c.At(2, 1)) / s,
			Z: s / 4,
		}
	}
	n, _ := q.Normalized()
	return n
}

// FromRotationVector returns the quaternion for a rotation of |rv| radians
// about rv, using the half-angle series for small rotations to avoid a
// divide by zero.
func FromRotationVector(rv geodesy.Vec3) Quaternion {
	n := rv.Norm()
	var k float64
	if n < 1e-12 {
		k = 0.5 - n*n/48
	} else {
		k = math.Sin(n/2) / n
	}
	return Quaternion{
		W: math.Cos(n / 2),
		X: k * rv[0],
		Y: k * rv[1],
		Z: k * rv[2],
	}
}

// Mul returns the Hamilton product q ⊗ r.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return Quaternion{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// Norm returns the quaternion's Euclidean norm.
func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Normalized returns the unit quaternion in the same direction as q.
// ErrDegenerateQuaternion is returned when the norm is zero or non-finite.
func (q Quaternion) Normalized() (Quaternion, error) {
	n := q.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return q, ErrDegenerateQuaternion
	}
	return Quaternion{q.W / n, q.X / n, q.Y / n, q.Z / n}, nil
}

// Rotate applies the rotation q to a body-frame vector, resolving it in the
// navigation frame.
func (q Quaternion) Rotate(v geodesy.Vec3) geodesy.Vec3 {
	// v' = q ⊗ (0,v) ⊗ q*
	t := q.Mul(Quaternion{0, v[0], v[1], v[2]}).Mul(Quaternion{q.W, -q.X, -q.Y, -q.Z})
	return geodesy.Vec3{t.X, t.Y, t.Z}
}
