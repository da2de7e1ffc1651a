package fusion_test

import (
	"math"
	"testing"

	"github.com/navsense/fusion/internal/filter"
	"github.com/navsense/fusion/internal/fusion"
	"github.com/navsense/fusion/internal/geodesy"
	"github.com/navsense/fusion/internal/synth"
)

func baseParams() synth.Params {
	return synth.Params{
		Start:    fusion.Geodetic{Lat: 45 * geodesy.Deg, Lon: -1.3, Alt: 120},
		Duration: 10,
		IMUDt:    0.01,
		GPSDt:    1.0,
		IMUNoise: filter.IMUNoise{
			AngleRandomWalk:    1e-4,
			VelocityRandomWalk: 1e-3,
			GyroDriftStd:       1e-6,
			AccelDriftStd:      1e-5,
			DriftCorrTime:      300,
		},
		GPSVelStd: 0.1,
		GPSPosStd: 1,
		Seed:      7,
	}
}

func mustRun(t *testing.T, imu fusion.IMUSeries, gps fusion.GPSSeries, cfg fusion.Config) (*fusion.Run, *fusion.Result) {
	t.Helper()
	r, err := fusion.NewRun(imu, gps, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Execute()
	if err != nil {
		t.Fatal(err)
	}
	return r, res
}

// With all sensor and GPS noise zeroed and the GPS trajectory generated by
// integrating the same synthetic IMU data, the filter must reproduce the
// truth and see a zero innovation at every epoch.
func TestZeroNoiseIdempotence(t *testing.T) {
	p := baseParams()
	p.GPSVelStd = 0
	p.GPSPosStd = 0
	p.BodyRate = geodesy.Vec3{0, 0, 2 * geodesy.Deg} // constant-rate yaw

	imu, gps, truth := synth.Generate(p)
	cfg := fusion.DefaultConfig()
	run, res := mustRun(t, imu, gps, cfg)

	for j, innov := range res.Diagnostics.Innovation {
		for k := 0; k < filter.MeasDim; k++ {
			if math.Abs(innov[k]) > 1e-6 {
				t.Fatalf("epoch %d innovation[%d] = %g, want ~0", j, k, innov[k])
			}
		}
	}

	// Final estimated state matches the truth at the last consumed sample.
	nav := run.State()
	k := res.SamplesConsumed - 1
	scale := filter.PositionScale(truth.Pos[k].Lat, truth.Pos[k].Alt)
	if d := math.Abs(scale[0] * (nav.Lat - truth.Pos[k].Lat)); d > 1e-5 {
		t.Errorf("latitude error %g m", d)
	}
	if d := math.Abs(scale[1] * (nav.Lon - truth.Pos[k].Lon)); d > 1e-5 {
		t.Errorf("longitude error %g m", d)
	}
	if d := nav.Vel.Sub(truth.Vel[k]).Norm(); d > 1e-6 {
		t.Errorf("velocity error %g m/s", d)
	}
	_, _, yaw := nav.Euler()
	if d := math.Abs(yaw - truth.Yaw[k]); d > 1e-6 {
		t.Errorf("yaw error %g rad", d)
	}
}

// After every correction cycle the rotation object must still be a valid
// rotation: unit quaternion (or unit-determinant matrix) to 1e-9.
func TestRotationValidityAfterRun(t *testing.T) {
	for _, mode := range []fusion.AttitudeMode{fusion.AttitudeQuaternion, fusion.AttitudeDCM} {
		p := baseParams()
		p.Duration = 30
		p.GyroNoiseStd = 1e-4
		p.AccelNoiseStd = 1e-3
		imu, gps, _ := synth.Generate(p)

		cfg := fusion.DefaultConfig()
		cfg.AttitudeMode = mode
		run, _ := mustRun(t, imu, gps, cfg)
		if v := run.State().Att.Validity(); v > 1e-9 {
			t.Errorf("%s: rotation validity = %g after run", mode, v)
		}
	}
}

// For a stationary platform with realistic noise, the position and velocity
// covariance diagonal trends downward and ends below its initial value.
func TestCovarianceShrinkage(t *testing.T) {
	p := baseParams()
	p.Duration = 20
	p.GyroNoiseStd = 1e-4
	p.AccelNoiseStd = 1e-3
	imu, gps, _ := synth.Generate(p)
	_, res := mustRun(t, imu, gps, fusion.DefaultConfig())

	d := res.Diagnostics
	last := d.Len() - 1
	for i := filter.IdxVel; i < filter.IdxPos+3; i++ {
		if d.CovDiag[last][i] >= d.CovDiag[0][i] {
			t.Errorf("covariance[%d] grew: %g -> %g", i, d.CovDiag[0][i], d.CovDiag[last][i])
		}
	}

	// Non-increasing in trend over the first epochs: compare 3-epoch means
	// to tolerate the process-noise upticks between corrections.
	mean := func(rows [][filter.StateDim]float64, lo, hi, idx int) float64 {
		s := 0.0
		for j := lo; j < hi; j++ {
			s += rows[j][idx]
		}
		return s / float64(hi-lo)
	}
	for i := filter.IdxVel; i < filter.IdxPos+3; i++ {
		early := mean(d.CovDiag, 1, 4, i)
		late := mean(d.CovDiag, last-3, last, i)
		if late > early {
			t.Errorf("covariance[%d] trend rises: early %g, late %g", i, early, late)
		}
	}
}

// Static alignment: 10 s of 100 Hz static IMU data with 1 Hz GPS fixes at a
// fixed position (1 m / 0.1 m/s noise); the position estimate must stay
// within 3 sigma of the truth for every epoch after the third.
func TestStaticAlignmentScenario(t *testing.T) {
	p := baseParams()
	imu, gps, truth := synth.Generate(p)
	_, res := mustRun(t, imu, gps, fusion.DefaultConfig())

	for j := 4; j < res.Diagnostics.Len(); j++ {
		// Position estimate at the epoch: the track row for the last
		// consumed sample before that epoch.
		row := trackRowAt(res.Track, res.Diagnostics.Time[j])
		scale := filter.PositionScale(truth.Pos[0].Lat, truth.Pos[0].Alt)
		dn := scale[0] * (res.Track.Lat[row] - truth.Pos[0].Lat)
		de := scale[1] * (res.Track.Lon[row] - truth.Pos[0].Lon)
		dd := res.Track.Alt[row] - truth.Pos[0].Alt
		if err := math.Sqrt(dn*dn + de*de + dd*dd); err > 3*p.GPSPosStd*math.Sqrt(3) {
			t.Errorf("epoch %d: position error %.2f m exceeds 3 sigma", j, err)
		}
	}
}

// Bias estimation: a constant gyro bias injected over zero true rotation
// must be estimated to within 10%% after 60 s of fusion.
func TestGyroBiasConvergence(t *testing.T) {
	trueBias := 1e-3 // rad/s, on the body x axis

	p := baseParams()
	p.Duration = 60
	p.GyroFixedBias = geodesy.Vec3{trueBias, 0, 0}
	p.GPSVelStd = 0.01
	p.GPSPosStd = 0.1
	imu, gps, _ := synth.Generate(p)

	cfg := fusion.DefaultConfig()
	cfg.GyroBiasStd = geodesy.Vec3{2e-3, 2e-3, 2e-3}
	run, _ := mustRun(t, imu, gps, cfg)

	got := run.State().GyroBias[0]
	if math.Abs(got-trueBias) > 0.1*trueBias {
		t.Errorf("estimated gyro bias %g rad/s, want within 10%% of %g", got, trueBias)
	}
}

// With a lever arm, the GPS reports the antenna position while the filter
// tracks the IMU point. Seeding from the first fix starts the estimate off
// by the lever arm; the innovation must absorb it within a few epochs.
func TestLeverArmCompensation(t *testing.T) {
	p := baseParams()
	p.Duration = 20
	p.LeverArm = geodesy.Vec3{1, 0.5, -0.2}
	p.GPSVelStd = 0.01
	p.GPSPosStd = 0.05
	imu, gps, truth := synth.Generate(p)

	run, res := mustRun(t, imu, gps, fusion.DefaultConfig())

	first := innovNorm(res.Diagnostics.Innovation[1])
	last := innovNorm(res.Diagnostics.Innovation[res.Diagnostics.Len()-1])
	if last > first/2 {
		t.Errorf("innovation did not decay: first %g, last %g", first, last)
	}

	// The converged estimate tracks the IMU point, not the antenna.
	nav := run.State()
	scale := filter.PositionScale(truth.Pos[0].Lat, truth.Pos[0].Alt)
	dn := scale[0] * (nav.Lat - truth.Pos[0].Lat)
	de := scale[1] * (nav.Lon - truth.Pos[0].Lon)
	if d := math.Sqrt(dn*dn + de*de); d > 0.5 {
		t.Errorf("IMU-point position error %g m after lever-arm compensation", d)
	}
}

func innovNorm(z [filter.MeasDim]float64) float64 {
	s := 0.0
	for _, v := range z[3:] {
		s += v * v
	}
	return math.Sqrt(s)
}

// Single precision storage must change results only at the precision-loss
// level, and latitude/longitude stay full precision.
func TestPrecisionModesAgree(t *testing.T) {
	p := baseParams()
	imu, gps, _ := synth.Generate(p)

	cfgD := fusion.DefaultConfig()
	runD, _ := mustRun(t, imu, gps, cfgD)

	cfgS := fusion.DefaultConfig()
	cfgS.Precision = fusion.PrecisionSingle
	runS, _ := mustRun(t, imu, gps, cfgS)

	navD, navS := runD.State(), runS.State()
	scale := filter.PositionScale(navD.Lat, navD.Alt)
	if d := math.Abs(scale[0] * (navD.Lat - navS.Lat)); d > 1.0 {
		t.Errorf("precision modes diverge by %g m in latitude", d)
	}
	if d := navD.Vel.Sub(navS.Vel).Norm(); d > 0.1 {
		t.Errorf("precision modes diverge by %g m/s in velocity", d)
	}
}

// Both attitude representations run the same correction algebra and must
// land on the same trajectory.
func TestAttitudeModesAgree(t *testing.T) {
	p := baseParams()
	p.BodyRate = geodesy.Vec3{0, 0, 1 * geodesy.Deg}
	imu, gps, _ := synth.Generate(p)

	cfgQ := fusion.DefaultConfig()
	runQ, _ := mustRun(t, imu, gps, cfgQ)

	cfgM := fusion.DefaultConfig()
	cfgM.AttitudeMode = fusion.AttitudeDCM
	runM, _ := mustRun(t, imu, gps, cfgM)

	navQ, navM := runQ.State(), runM.State()
	rq, pq, yq := navQ.Euler()
	rm, pm, ym := navM.Euler()
	if math.Abs(rq-rm) > 1e-4 || math.Abs(pq-pm) > 1e-4 || math.Abs(yq-ym) > 1e-4 {
		t.Errorf("attitude modes disagree: quat (%g,%g,%g) vs dcm (%g,%g,%g)", rq, pq, yq, rm, pm, ym)
	}
}

// trackRowAt returns the index of the last track row at or before t.
func trackRowAt(tr fusion.Track, t float64) int {
	row := 0
	for i, ti := range tr.Time {
		if ti <= t {
			row = i
		}
	}
	return row
}
