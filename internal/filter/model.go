// Package filter holds the linear error-state model of the fusion filter and
// the discrete Kalman recursion that runs over it. The error state is a flat
// 21-vector ordered [attitude(3), velocity(3), position(3), gyro bias(3),
// accel bias(3), gyro drift(3), accel drift(3)]; the measurement is the
// 6-vector [velocity residual; position residual]. The position error block
// is carried in meters (north, east, altitude), not in angular units: this
// keeps the state, H, and the covariance all at comparable magnitudes, so
// the innovation covariance stays solvable even with tiny measurement noise.
package filter

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/navsense/fusion/internal/geodesy"
)

// State-vector dimensions and block offsets.
const (
	StateDim = 21
	MeasDim  = 6
	NoiseDim = 12

	IdxAtt        = 0
	IdxVel        = 3
	IdxPos        = 6
	IdxGyroBias   = 9
	IdxAccelBias  = 12
	IdxGyroDrift  = 15
	IdxAccelDrift = 18
)

// IMUNoise holds the inertial sensor noise densities driving the process
// model. Random-walk terms are white-noise densities (per √Hz); the drift
// states are first-order Gauss-Markov with correlation time DriftCorrTime.
type IMUNoise struct {
	AngleRandomWalk    float64 // rad/s/√Hz
	VelocityRandomWalk float64 // m/s²/√Hz
	GyroDriftStd       float64 // rad/s, steady-state drift magnitude
	AccelDriftStd      float64 // m/s², steady-state drift magnitude
	DriftCorrTime      float64 // s
}

// ProcessNoise returns the continuous-time noise PSD matrix Q (12×12
// diagonal) for the noise input vector [gyro white, accel white, gyro drift
// drive, accel drift drive].
func ProcessNoise(n IMUNoise) *mat.DiagDense {
	tau := n.DriftCorrTime
	if tau <= 0 {
		tau = 1
	}
	qg := n.AngleRandomWalk * n.AngleRandomWalk
	qa := n.VelocityRandomWalk * n.VelocityRandomWalk
	// Gauss-Markov drive PSD giving the configured steady-state variance.
	qdg := 2 * n.GyroDriftStd * n.GyroDriftStd / tau
	qda := 2 * n.AccelDriftStd * n.AccelDriftStd / tau

	d := make([]float64, NoiseDim)
	for i := 0; i < 3; i++ {
		d[i] = qg
		d[3+i] = qa
		d[6+i] = qdg
		d[9+i] = qda
	}
	return mat.NewDiagDense(NoiseDim, d)
}

// BuildProcessModel constructs the continuous-time state matrix F (21×21)
// and noise-input matrix G (21×12) at the current navigation state. vel is
// NED velocity, fn the specific force resolved in NED, cbn the body-to-NED
// rotation matrix.
func BuildProcessModel(vel geodesy.Vec3, lat, alt float64, fn geodesy.Vec3, cbn mat.Matrix, noise IMUNoise) (F, G *mat.Dense) {
	F = mat.NewDense(StateDim, StateDim, nil)
	G = mat.NewDense(StateDim, NoiseDim, nil)

	wie := geodesy.EarthRate(lat)
	wen := geodesy.TransportRate(lat, vel[0], vel[1], alt)
	win := wie.Add(wen)
	wCoriolis := wie.Scale(2).Add(wen)

	// Attitude error: φ̇ = −[ω_in×]φ + C·(δb_g + δd_g) + noise.
	setSkew(F, IdxAtt, IdxAtt, win.Scale(-1))
	setBlock(F, IdxAtt, IdxGyroBias, cbn, 1)
	setBlock(F, IdxAtt, IdxGyroDrift, cbn, 1)

	// Velocity error: δv̇ = [f^n×]φ − [(2ω_ie+ω_en)×]δv − C·(δb_a + δd_a).
	setSkew(F, IdxVel, IdxAtt, fn)
	setSkew(F, IdxVel, IdxVel, wCoriolis.Scale(-1))
	setBlock(F, IdxVel, IdxAccelBias, cbn, -1)
	setBlock(F, IdxVel, IdxAccelDrift, cbn, -1)

	// Meter-valued position error from velocity error. The altitude row
	// carries the NED down-to-up sign.
	F.Set(IdxPos, IdxVel, 1)
	F.Set(IdxPos+1, IdxVel+1, 1)
	F.Set(IdxPos+2, IdxVel+2, -1)

	// Fixed biases are random constants; drifts decay with the configured
	// correlation time.
	tau := noise.DriftCorrTime
	if tau <= 0 {
		tau = 1
	}
	for i := 0; i < 3; i++ {
		F.Set(IdxGyroDrift+i, IdxGyroDrift+i, -1/tau)
		F.Set(IdxAccelDrift+i, IdxAccelDrift+i, -1/tau)
	}

	// Noise input: gyro white noise into attitude, accel white noise into
	// velocity, drive noise into the drift states.
	setBlock(G, IdxAtt, 0, cbn, -1)
	setBlock(G, IdxVel, 3, cbn, 1)
	for i := 0; i < 3; i++ {
		G.Set(IdxGyroDrift+i, 6+i, 1)
		G.Set(IdxAccelDrift+i, 9+i, 1)
	}
	return F, G
}

// BuildMeasurementModel constructs the 6×21 observation matrix H. Velocity
// residual rows select the velocity error states directly; position residual
// rows select the meter-valued position error states, with the altitude row
// carrying the down-to-up sign of the residual.
func BuildMeasurementModel() *mat.Dense {
	H := mat.NewDense(MeasDim, StateDim, nil)
	for i := 0; i < 3; i++ {
		H.Set(i, IdxVel+i, 1)
	}
	H.Set(3, IdxPos, 1)
	H.Set(4, IdxPos+1, 1)
	H.Set(5, IdxPos+2, -1)
	return H
}

// PositionScale returns the diagonal factors converting (δlat, δlon, δalt)
// differences to the meter-valued residuals the filter operates on.
func PositionScale(lat, alt float64) geodesy.Vec3 {
	rm, rn := geodesy.Radii(lat)
	return geodesy.Vec3{rm + alt, rn*math.Cos(lat) + alt, -1}
}

func setSkew(m *mat.Dense, row, col int, v geodesy.Vec3) {
	m.Set(row, col+1, -v[2])
	m.Set(row, col+2, v[1])
	m.Set(row+1, col, v[2])
	m.Set(row+1, col+2, -v[0])
	m.Set(row+2, col, -v[1])
	m.Set(row+2, col+1, v[0])
}

func setBlock(m *mat.Dense, row, col int, b mat.Matrix, scale float64) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(row+i, col+j, scale*b.At(i, j))
		}
	}
}
