// Package fusion implements the loosely-coupled INS/GPS estimator core: the
// dual-rate loop that schedules high-rate strapdown mechanization against
// low-rate GPS corrections, the 21-state error filter around it, and the
// diagnostic histories recorded at every GPS epoch.
package fusion

import (
	"github.com/navsense/fusion/internal/filter"
	"github.com/navsense/fusion/internal/geodesy"
)

// Geodetic is a latitude/longitude/altitude triple. Latitude and longitude
// are radians and always carried at full precision; altitude is meters.
type Geodetic struct {
	Lat, Lon, Alt float64
}

// IMUSeries is the inertial input: per-sample timestamps (seconds on the
// run's common clock), body angular rate (rad/s) and specific force (m/s²),
// the static alignment attitude used to seed the navigation state, and the
// sensor noise densities used by the process model.
type IMUSeries struct {
	Time          []float64
	AngularRate   []geodesy.Vec3
	SpecificForce []geodesy.Vec3

	AlignRoll, AlignPitch, AlignYaw float64

	Noise filter.IMUNoise
}

// GPSSeries is the aiding input: per-fix timestamps, resolved position and
// NED velocity, the measurement noise standard deviations, and the body-frame
// lever arm from the IMU reference point to the antenna.
type GPSSeries struct {
	Time     []float64
	Position []Geodetic
	Velocity []geodesy.Vec3

	VelStd   geodesy.Vec3 // m/s, 1σ
	PosStd   geodesy.Vec3 // m, 1σ
	LeverArm geodesy.Vec3 // m, body frame
}

// Track is the INS-rate mechanization history, one row per consumed IMU
// sample (row 0 is the seeded initial state).
type Track struct {
	Time             []float64
	Roll, Pitch, Yaw []float64
	Vel              []geodesy.Vec3
	Lat, Lon, Alt    []float64
}

func (tr *Track) append(t, roll, pitch, yaw float64, vel geodesy.Vec3, lat, lon, alt float64) {
	tr.Time = append(tr.Time, t)
	tr.Roll = append(tr.Roll, roll)
	tr.Pitch = append(tr.Pitch, pitch)
	tr.Yaw = append(tr.Yaw, yaw)
	tr.Vel = append(tr.Vel, vel)
	tr.Lat = append(tr.Lat, lat)
	tr.Lon = append(tr.Lon, lon)
	tr.Alt = append(tr.Alt, alt)
}

// Len returns the number of recorded rows.
func (tr *Track) Len() int { return len(tr.Time) }

// Diagnostics holds the GPS-epoch-indexed filter histories. Row 0 is seeded
// at initialization; each correction cycle appends one row. These are
// post-run analysis artifacts only, never read back into the filter.
type Diagnostics struct {
	Time       []float64
	Innovation [][filter.MeasDim]float64
	Biases     [][12]float64
	CovDiag    [][filter.StateDim]float64
	ErrState   [][filter.StateDim]float64
}

// Len returns the number of recorded epochs.
func (d *Diagnostics) Len() int { return len(d.Time) }

// Result is the assembled output of a completed run.
type Result struct {
	Track       Track
	Diagnostics Diagnostics
	// SamplesConsumed is the number of IMU samples folded into the track,
	// including the alignment sample.
	SamplesConsumed int
}
