package fusion

import (
	"errors"
	"math"
	"testing"

	"github.com/navsense/fusion/internal/attitude"
	"github.com/navsense/fusion/internal/filter"
	"github.com/navsense/fusion/internal/geodesy"
)

// tinySeries builds a minimal hand-rolled scenario: a static, level vehicle
// at the given timestamps with ideal gravity-reaction accelerometer readings
// and zero gyro input.
func tinySeries(imuTimes, gpsTimes []float64) (IMUSeries, GPSSeries) {
	lat, alt := 45*geodesy.Deg, 0.0
	g := geodesy.Gravity(lat, alt)

	imu := IMUSeries{
		Time:  imuTimes,
		Noise: filter.IMUNoise{AngleRandomWalk: 1e-4, VelocityRandomWalk: 1e-3, GyroDriftStd: 1e-6, AccelDriftStd: 1e-5, DriftCorrTime: 300},
	}
	for range imuTimes {
		imu.AngularRate = append(imu.AngularRate, geodesy.Vec3{})
		imu.SpecificForce = append(imu.SpecificForce, geodesy.Vec3{0, 0, -g[2]})
	}

	gps := GPSSeries{
		Time:   gpsTimes,
		VelStd: geodesy.Vec3{0.1, 0.1, 0.1},
		PosStd: geodesy.Vec3{1, 1, 1},
	}
	for range gpsTimes {
		gps.Position = append(gps.Position, Geodetic{Lat: lat, Alt: alt})
		gps.Velocity = append(gps.Velocity, geodesy.Vec3{})
	}
	return imu, gps
}

func TestNewRun_InsufficientData(t *testing.T) {
	cases := []struct {
		name     string
		imuTimes []float64
		gpsTimes []float64
	}{
		{"one IMU sample", []float64{0}, []float64{0, 1}},
		{"one GPS fix", []float64{0, 0.1, 0.2}, []float64{0}},
		{"GPS before first IMU sample", []float64{1, 1.1, 1.2}, []float64{0, 1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			imu, gps := tinySeries(tc.imuTimes, tc.gpsTimes)
			if _, err := NewRun(imu, gps, DefaultConfig()); !errors.Is(err, ErrInsufficientData) {
				t.Errorf("err = %v, want ErrInsufficientData", err)
			}
		})
	}
}

func TestNewRun_BadConfig(t *testing.T) {
	imu, gps := tinySeries([]float64{0, 0.5, 1.5}, []float64{0, 1})
	cfg := DefaultConfig()
	cfg.AttitudeMode = "euler-direct"
	if _, err := NewRun(imu, gps, cfg); err == nil {
		t.Fatal("expected error for unknown attitude mode")
	}
}

func TestRun_TieBreakExcludesEqualTimestamp(t *testing.T) {
	// IMU samples at 0, 0.5, 1.0; GPS epochs at 0 and 1.0. The sample at
	// exactly 1.0 is not yet reached under the strict < rule, so only the
	// 0.5 sample is mechanized before the correction.
	imu, gps := tinySeries([]float64{0, 0.5, 1.0}, []float64{0, 1.0})
	r, err := NewRun(imu, gps, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Execute()
	if err != nil {
		t.Fatal(err)
	}
	if res.SamplesConsumed != 2 {
		t.Errorf("SamplesConsumed = %d, want 2 (alignment sample + one mechanized)", res.SamplesConsumed)
	}
	if res.Track.Len() != 2 {
		t.Errorf("track rows = %d, want 2", res.Track.Len())
	}
}

func TestRun_EpochAndTrackCounts(t *testing.T) {
	imuTimes := make([]float64, 101)
	for i := range imuTimes {
		imuTimes[i] = float64(i) * 0.01
	}
	gpsTimes := []float64{0, 0.25, 0.55, 0.85}
	imu, gps := tinySeries(imuTimes, gpsTimes)

	r, err := NewRun(imu, gps, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Execute()
	if err != nil {
		t.Fatal(err)
	}

	// One diagnostics row per GPS epoch, the first seeded at init.
	if got := res.Diagnostics.Len(); got != len(gpsTimes) {
		t.Errorf("diagnostics rows = %d, want %d", got, len(gpsTimes))
	}
	// The loop stops at the last GPS epoch: samples past 0.85 are unused.
	if res.SamplesConsumed > len(imuTimes) {
		t.Errorf("consumed %d of %d samples", res.SamplesConsumed, len(imuTimes))
	}
	if res.Track.Len() != res.SamplesConsumed {
		t.Errorf("track rows %d != samples consumed %d", res.Track.Len(), res.SamplesConsumed)
	}

	// Time stamps in the track never decrease.
	for i := 1; i < res.Track.Len(); i++ {
		if res.Track.Time[i] < res.Track.Time[i-1] {
			t.Fatalf("track time rewinds at row %d", i)
		}
	}
}

func TestRun_ExecuteTwiceFails(t *testing.T) {
	imu, gps := tinySeries([]float64{0, 0.5, 1.5}, []float64{0, 1})
	r, _ := NewRun(imu, gps, DefaultConfig())
	if _, err := r.Execute(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Execute(); err == nil {
		t.Fatal("second Execute must fail")
	}
}

func TestRun_NonFiniteInputSurfacesEpoch(t *testing.T) {
	imu, gps := tinySeries([]float64{0, 0.5, 1.5, 2.5}, []float64{0, 1, 2})
	// Poison a sample consumed during the second epoch's sub-loop.
	imu.SpecificForce[2] = geodesy.Vec3{0, 0, math.NaN()}

	r, err := NewRun(imu, gps, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Execute()
	var nf *NonFiniteStateError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NonFiniteStateError", err)
	}
	if nf.Epoch != 2 {
		t.Errorf("failing epoch = %d, want 2", nf.Epoch)
	}

	// Histories written before the failure stay inspectable.
	partial := r.Partial()
	if partial.Diagnostics.Len() != 2 {
		t.Errorf("partial diagnostics rows = %d, want 2", partial.Diagnostics.Len())
	}
}

// degenerateRotation wraps a real rotation but fails every correction, the
// way a quaternion with a collapsed norm would.
type degenerateRotation struct {
	attitude.Rotation
}

func (d degenerateRotation) Integrate(bodyRate, navRate geodesy.Vec3, dt float64) attitude.Rotation {
	return degenerateRotation{d.Rotation.Integrate(bodyRate, navRate, dt)}
}

func (d degenerateRotation) Correct(phi geodesy.Vec3) (attitude.Rotation, error) {
	return nil, attitude.ErrDegenerateQuaternion
}

func TestRun_RenormalizationErrorSurfacesEpoch(t *testing.T) {
	imu, gps := tinySeries([]float64{0, 0.5, 1.5}, []float64{0, 1})
	r, err := NewRun(imu, gps, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	r.nav.Att = degenerateRotation{r.nav.Att}

	_, err = r.Execute()
	var re *RenormalizationError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RenormalizationError", err)
	}
	if re.Epoch != 1 {
		t.Errorf("failing epoch = %d, want 1", re.Epoch)
	}
	if !errors.Is(err, attitude.ErrDegenerateQuaternion) {
		t.Errorf("err = %v, want to unwrap to ErrDegenerateQuaternion", err)
	}
}

func TestErrorState_VectorRoundTrip(t *testing.T) {
	e := ErrorState{
		Att:        geodesy.Vec3{1, 2, 3},
		Vel:        geodesy.Vec3{4, 5, 6},
		Pos:        geodesy.Vec3{7, 8, 9},
		GyroBias:   geodesy.Vec3{10, 11, 12},
		AccelBias:  geodesy.Vec3{13, 14, 15},
		GyroDrift:  geodesy.Vec3{16, 17, 18},
		AccelDrift: geodesy.Vec3{19, 20, 21},
	}
	v := e.Vector()
	// The flat order is the documented filter layout.
	for i := 0; i < filter.StateDim; i++ {
		if v.AtVec(i) != float64(i+1) {
			t.Fatalf("flat[%d] = %v, want %d", i, v.AtVec(i), i+1)
		}
	}

	var back ErrorState
	back.SetFromVector(v)
	if back != e {
		t.Errorf("roundtrip changed state: %+v", back)
	}

	back.Zero()
	if back != (ErrorState{}) {
		t.Error("Zero must clear every field")
	}
}
