package fusion

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/navsense/fusion/internal/attitude"
	"github.com/navsense/fusion/internal/filter"
	"github.com/navsense/fusion/internal/geodesy"
	"github.com/navsense/fusion/internal/strapdown"
)

// Run owns all mutable state of one fusion pass: the navigation state, the
// error state and covariance, and the history buffers. Runs are strictly
// sequential and single-threaded; independent runs share nothing.
type Run struct {
	cfg Config
	imu IMUSeries
	gps GPSSeries

	nav NavState
	err ErrorState
	p   *mat.Dense
	q   *mat.DiagDense
	r   *mat.DiagDense

	// imuIdx points at the next unconsumed IMU sample. It only ever moves
	// forward.
	imuIdx int

	track Track
	diags Diagnostics

	done bool
}

// NewRun validates the inputs, seeds the navigation state from the IMU
// alignment attitude and the first GPS fix, and builds the initial Q, R, P
// from the configured standard deviations.
func NewRun(imu IMUSeries, gps GPSSeries, cfg Config) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(imu.Time) < 2 || len(gps.Time) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples per series, have %d IMU and %d GPS",
			ErrInsufficientData, len(imu.Time), len(gps.Time))
	}
	if len(imu.AngularRate) != len(imu.Time) || len(imu.SpecificForce) != len(imu.Time) {
		return nil, fmt.Errorf("%w: IMU series lengths disagree", ErrInsufficientData)
	}
	if len(gps.Position) != len(gps.Time) || len(gps.Velocity) != len(gps.Time) {
		return nil, fmt.Errorf("%w: GPS series lengths disagree", ErrInsufficientData)
	}
	if gps.Time[0] < imu.Time[0] {
		return nil, fmt.Errorf("%w: GPS series starts at %v, before the first IMU sample at %v",
			ErrInsufficientData, gps.Time[0], imu.Time[0])
	}

	r := &Run{cfg: cfg, imu: imu, gps: gps, imuIdx: 1}

	var att attitude.Rotation
	if cfg.AttitudeMode == AttitudeDCM {
		att = attitude.NewDCMRotation(imu.AlignRoll, imu.AlignPitch, imu.AlignYaw)
	} else {
		att = attitude.NewQuatRotation(imu.AlignRoll, imu.AlignPitch, imu.AlignYaw)
	}
	fix := gps.Position[0]
	r.nav = NavState{
		Att:        att,
		Vel:        gps.Velocity[0],
		Lat:        fix.Lat,
		Lon:        fix.Lon,
		Alt:        fix.Alt,
		GyroBias:   cfg.SeedGyroBias,
		AccelBias:  cfg.SeedAccelBias,
		GyroDrift:  cfg.SeedGyroDrift,
		AccelDrift: cfg.SeedAccelDrift,
	}

	r.q = filter.ProcessNoise(imu.Noise)
	r.r = measurementNoise(gps)
	r.p = initialCovariance(cfg)

	// Row 0 of every history: the seeded state at the first epoch.
	r.recordTrack(imu.Time[0])
	r.recordDiagnostics(gps.Time[0], [filter.MeasDim]float64{})

	return r, nil
}

// Execute drives the dual-rate loop to completion and assembles the result.
// GPS epochs are the master clock: for each epoch the INS sub-loop advances
// while the IMU timestamp is strictly less than the epoch time, then one
// correction cycle runs against that epoch's fix. A failed run leaves the
// histories written so far available through Partial.
func (r *Run) Execute() (*Result, error) {
	if r.done {
		return nil, fmt.Errorf("fusion: run already executed")
	}
	r.done = true

	for j := 1; j < len(r.gps.Time); j++ {
		r.mechanizeUntil(r.gps.Time[j])

		if !r.nav.finite() {
			return nil, &NonFiniteStateError{Epoch: j, What: "navigation state"}
		}
		if err := r.correct(j); err != nil {
			return nil, err
		}
	}
	res := r.assemble()
	return &res, nil
}

// Partial returns whatever histories were recorded before a failure. The
// caller may inspect them to diagnose a diverged run.
func (r *Run) Partial() Result { return r.assemble() }

// State returns a copy of the current navigation state.
func (r *Run) State() NavState { return r.nav }

// mechanizeUntil advances the INS one sample at a time while the current IMU
// timestamp is strictly less than the GPS epoch time. A sample whose
// timestamp equals the epoch time is not consumed; the correction uses the
// last state at or before the epoch, leaving a small uncompensated timing
// residual. The sample index never rewinds.
func (r *Run) mechanizeUntil(epochTime float64) {
	for r.imuIdx < len(r.imu.Time) && r.imu.Time[r.imuIdx] < epochTime {
		i := r.imuIdx
		dt := r.imu.Time[i] - r.imu.Time[i-1]

		gyro, accel := r.nav.correctedRates(r.imu.AngularRate[i], r.imu.SpecificForce[i])

		prev := strapdown.State{
			Att: r.nav.Att, Vel: r.nav.Vel,
			Lat: r.nav.Lat, Lon: r.nav.Lon, Alt: r.nav.Alt,
		}
		env := strapdown.EnvAt(prev)
		next := strapdown.Step(prev, gyro, accel, env, dt)

		r.nav.Att = next.Att
		r.nav.Vel = r.quantizeVec(next.Vel)
		r.nav.Lat = next.Lat
		r.nav.Lon = next.Lon
		r.nav.Alt = r.cfg.Precision.quantize(next.Alt)

		r.imuIdx++
		r.recordTrack(r.imu.Time[i])
	}
}

// correct runs one correction cycle against GPS epoch j: innovation,
// matrix refresh, Kalman recursion, feedback into the nonlinear state, and
// diagnostics recording. The error state is zero on entry and zero again on
// exit.
func (r *Run) correct(j int) error {
	innov := r.innovation(j)

	// Refresh F, G, H at the current navigation state. The specific force
	// for the process model is the latest bias-corrected sample resolved in
	// NED.
	i := r.imuIdx - 1
	_, accel := r.nav.correctedRates(r.imu.AngularRate[i], r.imu.SpecificForce[i])
	fn := r.nav.Att.Rotate(accel)
	F, G := filter.BuildProcessModel(r.nav.Vel, r.nav.Lat, r.nav.Alt, fn, r.nav.Att.DCM(), r.imu.Noise)
	H := filter.BuildMeasurementModel()

	dt := r.gps.Time[j] - r.gps.Time[j-1]
	z := mat.NewVecDense(filter.MeasDim, innov[:])
	xn, pn, err := filter.Step(r.err.Vector(), z, F, G, H, r.q, r.r, r.p, dt)
	if err != nil {
		return fmt.Errorf("fusion: GPS epoch %d: %w", j, err)
	}
	r.err.SetFromVector(xn)
	r.p = pn

	if !r.err.finite() {
		return &NonFiniteStateError{Epoch: j, What: "error state"}
	}

	if err := r.applyCorrection(j); err != nil {
		return err
	}

	r.recordDiagnostics(r.gps.Time[j], innov)
	r.err.Zero()
	return nil
}

// innovation computes the 6-element residual [velocity; position] at GPS
// epoch j. Position residuals are converted from angular to linear units
// with the local radii of curvature, then offset by the lever arm rotated
// into the navigation frame.
func (r *Run) innovation(j int) [filter.MeasDim]float64 {
	fix := r.gps.Position[j]
	scale := filter.PositionScale(r.nav.Lat, r.nav.Alt)
	lever := r.nav.Att.Rotate(r.gps.LeverArm)

	var z [filter.MeasDim]float64
	dv := r.nav.Vel.Sub(r.gps.Velocity[j])
	z[0], z[1], z[2] = dv[0], dv[1], dv[2]
	z[3] = scale[0]*(r.nav.Lat-fix.Lat) + lever[0]
	z[4] = scale[1]*(r.nav.Lon-fix.Lon) + lever[1]
	z[5] = scale[2]*(r.nav.Alt-fix.Alt) + lever[2]
	return z
}

// applyCorrection folds the filter output back into the nonlinear state.
// Attitude takes the small-angle rotation (I + [φ×]) on the left, with the
// quaternion renormalized afterwards; every other state corrects by straight
// subtraction in the fixed block order.
func (r *Run) applyCorrection(j int) error {
	att, err := r.nav.Att.Correct(r.err.Att)
	if err != nil {
		return &RenormalizationError{Epoch: j, Err: err}
	}
	r.nav.Att = att

	r.nav.Vel = r.quantizeVec(r.nav.Vel.Sub(r.err.Vel))

	// The filter's position errors are meters; divide the horizontal
	// components back through the local radii before folding them into the
	// angular position. Latitude/longitude always run at full precision.
	scale := filter.PositionScale(r.nav.Lat, r.nav.Alt)
	r.nav.Lat -= r.err.Pos[0] / scale[0]
	r.nav.Lon -= r.err.Pos[1] / scale[1]
	r.nav.Alt = r.cfg.Precision.quantize(r.nav.Alt - r.err.Pos[2])

	r.nav.GyroBias = r.quantizeVec(r.nav.GyroBias.Sub(r.err.GyroBias))
	r.nav.AccelBias = r.quantizeVec(r.nav.AccelBias.Sub(r.err.AccelBias))
	r.nav.GyroDrift = r.quantizeVec(r.nav.GyroDrift.Sub(r.err.GyroDrift))
	r.nav.AccelDrift = r.quantizeVec(r.nav.AccelDrift.Sub(r.err.AccelDrift))
	return nil
}

func (r *Run) recordTrack(t float64) {
	roll, pitch, yaw := r.nav.Euler()
	r.track.append(t, roll, pitch, yaw, r.nav.Vel, r.nav.Lat, r.nav.Lon, r.nav.Alt)
}

func (r *Run) recordDiagnostics(t float64, innov [filter.MeasDim]float64) {
	var cov [filter.StateDim]float64
	for i := 0; i < filter.StateDim; i++ {
		cov[i] = r.p.At(i, i)
	}
	r.diags.Time = append(r.diags.Time, t)
	r.diags.Innovation = append(r.diags.Innovation, innov)
	r.diags.Biases = append(r.diags.Biases, r.nav.biasSnapshot())
	r.diags.CovDiag = append(r.diags.CovDiag, cov)
	r.diags.ErrState = append(r.diags.ErrState, r.err.snapshot())
}

// assemble truncates nothing that was not written: the track already holds
// exactly one row per consumed sample, and the diagnostics one row per GPS
// epoch seen so far.
func (r *Run) assemble() Result {
	return Result{
		Track:           r.track,
		Diagnostics:     r.diags,
		SamplesConsumed: r.imuIdx,
	}
}

func (r *Run) quantizeVec(v geodesy.Vec3) geodesy.Vec3 {
	if r.cfg.Precision == PrecisionDouble {
		return v
	}
	return geodesy.Vec3{
		r.cfg.Precision.quantize(v[0]),
		r.cfg.Precision.quantize(v[1]),
		r.cfg.Precision.quantize(v[2]),
	}
}

// measurementNoise builds the diagonal R from the GPS velocity and position
// standard deviations (variance = std²).
func measurementNoise(gps GPSSeries) *mat.DiagDense {
	d := make([]float64, filter.MeasDim)
	for i := 0; i < 3; i++ {
		d[i] = gps.VelStd[i] * gps.VelStd[i]
		d[3+i] = gps.PosStd[i] * gps.PosStd[i]
	}
	return mat.NewDiagDense(filter.MeasDim, d)
}

// initialCovariance builds the diagonal P0 from the configured stds. The
// position stds enter in meters, matching the filter's meter-valued position
// error block.
func initialCovariance(cfg Config) *mat.Dense {
	p := mat.NewDense(filter.StateDim, filter.StateDim, nil)
	for i := 0; i < 3; i++ {
		set := func(idx int, std float64) { p.Set(idx+i, idx+i, std*std) }
		set(filter.IdxAtt, cfg.AlignErrStd[i])
		set(filter.IdxVel, cfg.VelErrStd[i])
		set(filter.IdxPos, cfg.PosErrStd[i])
		set(filter.IdxGyroBias, cfg.GyroBiasStd[i])
		set(filter.IdxAccelBias, cfg.AccelBiasStd[i])
		set(filter.IdxGyroDrift, cfg.GyroDriftStd[i])
		set(filter.IdxAccelDrift, cfg.AccelDriftStd[i])
	}
	return p
}
