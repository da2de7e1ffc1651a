package filter

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Step runs one discrete predict+update cycle of the error-state EKF.
//
// The continuous model (F, G, Q) is discretized over dt with the first-order
// transition Φ = I + F·dt and Qd = G·Q·Gᵀ·dt. x is the prior error state
// (zero between correction cycles), z the innovation. The returned
// covariance is explicitly re-symmetrized; the caller owns both results.
func Step(x *mat.VecDense, z *mat.VecDense, F, G, H *mat.Dense, Q, R mat.Matrix, P *mat.Dense, dt float64) (*mat.VecDense, *mat.Dense, error) {
	n, _ := F.Dims()
	m, _ := H.Dims()

	// Φ = I + F·dt
	phi := mat.NewDense(n, n, nil)
	phi.Scale(dt, F)
	for i := 0; i < n; i++ {
		phi.Set(i, i, phi.At(i, i)+1)
	}

	// Qd = G·Q·Gᵀ·dt
	qd := mat.NewDense(n, n, nil)
	qd.Product(G, Q, G.T())
	qd.Scale(dt, qd)

	// Predict.
	xp := mat.NewVecDense(n, nil)
	xp.MulVec(phi, x)
	pp := mat.NewDense(n, n, nil)
	pp.Product(phi, P, phi.T())
	pp.Add(pp, qd)

	// Innovation covariance S = H·Pp·Hᵀ + R.
	s := mat.NewDense(m, m, nil)
	s.Product(H, pp, H.T())
	s.Add(s, R)

	// Gain K = Pp·Hᵀ·S⁻¹ via the solve Sᵀ·Kᵀ = (Pp·Hᵀ)ᵀ. A mat.Condition
	// error still carries a usable solution (gonum flags ill-conditioning,
	// it does not fail the solve), so only a true singularity aborts.
	pht := mat.NewDense(n, m, nil)
	pht.Mul(pp, H.T())
	var kt mat.Dense
	if err := kt.Solve(s.T(), pht.T()); err != nil {
		if _, ok := err.(mat.Condition); !ok {
			return nil, nil, fmt.Errorf("filter: innovation covariance is singular: %w", err)
		}
	}
	k := mat.DenseCopyOf(kt.T())

	// Update state: x = xp + K·(z − H·xp).
	res := mat.NewVecDense(m, nil)
	res.MulVec(H, xp)
	res.SubVec(z, res)
	dx := mat.NewVecDense(n, nil)
	dx.MulVec(k, res)
	xn := mat.NewVecDense(n, nil)
	xn.AddVec(xp, dx)

	// Update covariance: P = (I − K·H)·Pp, then force symmetry.
	kh := mat.NewDense(n, n, nil)
	kh.Mul(k, H)
	kh.Scale(-1, kh)
	for i := 0; i < n; i++ {
		kh.Set(i, i, kh.At(i, i)+1)
	}
	pn := mat.NewDense(n, n, nil)
	pn.Mul(kh, pp)
	symmetrize(pn)

	return xn, pn, nil
}

func symmetrize(p *mat.Dense) {
	n, _ := p.Dims()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := (p.At(i, j) + p.At(j, i)) / 2
			p.Set(i, j, v)
			p.Set(j, i, v)
		}
	}
}
