package attitude

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/navsense/fusion/internal/geodesy"
)

// Rotation is the attitude object maintained by the navigation state. Two
// implementations exist, one holding a quaternion and one holding a direction
// cosine matrix; both integrate body/navigation rates the same way and both
// accept the same small-angle correction, so the filter does not care which
// one a run is configured with.
type Rotation interface {
	// DCM returns the body-to-NED direction cosine matrix.
	DCM() *mat.Dense
	// Euler returns roll, pitch, yaw derived from the rotation object.
	Euler() (roll, pitch, yaw float64)
	// Rotate resolves a body-frame vector in the navigation frame.
	Rotate(v geodesy.Vec3) geodesy.Vec3
	// Integrate advances the rotation by one strapdown step: bodyRate is the
	// bias-corrected angular rate ω_ib^b, navRate is ω_in^n, both in rad/s.
	Integrate(bodyRate, navRate geodesy.Vec3, dt float64) Rotation
	// Correct left-applies the small-angle perturbation (I + [phi×]) and
	// restores the representation to a valid rotation.
	Correct(phi geodesy.Vec3) (Rotation, error)
	// Validity returns how far the representation has strayed from a unit
	// rotation: |norm−1| for a quaternion, |det−1| for a matrix.
	Validity() float64
}

// QuatRotation is the quaternion-backed Rotation.
type QuatRotation struct {
	q Quaternion
}

// NewQuatRotation builds a quaternion rotation object from Euler angles.
func NewQuatRotation(roll, pitch, yaw float64) *QuatRotation {
	return &QuatRotation{q: EulerToQuat(roll, pitch, yaw)}
}

func (r *QuatRotation) DCM() *mat.Dense { return r.q.DCM() }

func (r *QuatRotation) Euler() (float64, float64, float64) { return r.q.Euler() }

func (r *QuatRotation) Rotate(v geodesy.Vec3) geodesy.Vec3 { return r.q.Rotate(v) }

func (r *QuatRotation) Integrate(bodyRate, navRate geodesy.Vec3, dt float64) Rotation {
	// q ← q(−ω_in·dt) ⊗ q ⊗ q(ω_ib·dt)
	qn := FromRotationVector(navRate.Scale(-dt))
	qb := FromRotationVector(bodyRate.Scale(dt))
	return &QuatRotation{q: qn.Mul(r.q).Mul(qb)}
}

func (r *QuatRotation) Correct(phi geodesy.Vec3) (Rotation, error) {
	// First-order correction q ← (1, φ/2) ⊗ q, then renormalize. The
	// renormalization is mandatory: it is what keeps the quaternion from
	// drifting off the unit sphere over many epochs.
	dq := Quaternion{W: 1, X: phi[0] / 2, Y: phi[1] / 2, Z: phi[2] / 2}
	q, err := dq.Mul(r.q).Normalized()
	if err != nil {
		return nil, err
	}
	return &QuatRotation{q: q}, nil
}

func (r *QuatRotation) Validity() float64 { return math.Abs(r.q.Norm() - 1) }

// DCMRotation is the matrix-backed Rotation.
type DCMRotation struct {
	c *mat.Dense
}

// NewDCMRotation builds a matrix rotation object from Euler angles.
func NewDCMRotation(roll, pitch, yaw float64) *DCMRotation {
	return &DCMRotation{c: EulerToDCM(roll, pitch, yaw)}
}

func (r *DCMRotation) DCM() *mat.Dense { return mat.DenseCopyOf(r.c) }

func (r *DCMRotation) Euler() (float64, float64, float64) { return DCMToEuler(r.c) }

func (r *DCMRotation) Rotate(v geodesy.Vec3) geodesy.Vec3 {
	var out mat.VecDense
	out.MulVec(r.c, mat.NewVecDense(3, []float64{v[0], v[1], v[2]}))
	return geodesy.Vec3{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

func (r *DCMRotation) Integrate(bodyRate, navRate geodesy.Vec3, dt float64) Rotation {
	// C ← (I − [ω_in·dt×]) C (I + [ω_ib·dt×])
	left := eyePlusSkew(navRate.Scale(-dt))
	right := eyePlusSkew(bodyRate.Scale(dt))
	next := mat.NewDense(3, 3, nil)
	next.Product(left, r.c, right)
	return &DCMRotation{c: orthonormalize(next)}
}

func (r *DCMRotation) Correct(phi geodesy.Vec3) (Rotation, error) {
	// The orthonormalization here mirrors the quaternion renormalization:
	// without it the (I + [φ×]) factors accumulate determinant drift over
	// many epochs.
	next := mat.NewDense(3, 3, nil)
	next.Mul(eyePlusSkew(phi), r.c)
	return &DCMRotation{c: orthonormalize(next)}, nil
}

func (r *DCMRotation) Validity() float64 { return math.Abs(mat.Det(r.c) - 1) }

// orthonormalize applies one symmetric correction pass, C ← C·(3I − CᵀC)/2,
// pulling a near-orthonormal matrix back onto the rotation group.
func orthonormalize(c *mat.Dense) *mat.Dense {
	var ctc, corr mat.Dense
	ctc.Mul(c.T(), c)
	corr.Scale(-0.5, &ctc)
	for i := 0; i < 3; i++ {
		corr.Set(i, i, corr.At(i, i)+1.5)
	}
	out := mat.NewDense(3, 3, nil)
	out.Mul(c, &corr)
	return out
}

func eyePlusSkew(v geodesy.Vec3) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, -v[2], v[1],
		v[2], 1, -v[0],
		-v[1], v[0], 1,
	})
}
