// Package synth generates synthetic IMU and GPS series for the fusion
// estimator. Truth trajectories are produced by integrating the same
// strapdown mechanization the estimator uses, so a zero-noise scenario is
// reproduced by the filter to within floating-point roundoff.
package synth

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/navsense/fusion/internal/attitude"
	"github.com/navsense/fusion/internal/filter"
	"github.com/navsense/fusion/internal/fusion"
	"github.com/navsense/fusion/internal/geodesy"
	"github.com/navsense/fusion/internal/strapdown"
)

func newRotation(roll, pitch, yaw float64) attitude.Rotation {
	return attitude.NewQuatRotation(roll, pitch, yaw)
}

// Params describes a zero-translation scenario: a vehicle fixed at Start,
// optionally spinning at a constant body rate, with configurable sensor
// errors and GPS noise.
type Params struct {
	Start            fusion.Geodetic
	Roll, Pitch, Yaw float64

	// BodyRate is a constant extra body angular rate on top of the rate
	// needed to track the rotating navigation frame. Zero means static.
	BodyRate geodesy.Vec3

	Duration float64 // s
	IMUDt    float64 // s, IMU sample period
	GPSDt    float64 // s, GPS fix period

	// Injected sensor errors.
	GyroFixedBias  geodesy.Vec3 // rad/s
	AccelFixedBias geodesy.Vec3 // m/s²
	GyroNoiseStd   float64      // rad/s per sample
	AccelNoiseStd  float64      // m/s² per sample

	// GPS measurement noise, per axis.
	GPSVelStd float64 // m/s
	GPSPosStd float64 // m

	LeverArm geodesy.Vec3

	// Noise densities reported to the filter.
	IMUNoise filter.IMUNoise

	Seed int64
}

// Truth is the reference trajectory the measurements were generated from,
// sampled at the IMU rate.
type Truth struct {
	Time             []float64
	Roll, Pitch, Yaw []float64
	Vel              []geodesy.Vec3
	Pos              []fusion.Geodetic
}

// Generate integrates the truth trajectory and derives a noisy IMU series
// and GPS series from it. The GPS fix at epoch j reports the truth at the
// last IMU sample strictly before the epoch time, mirroring the estimator's
// scheduler so the loosely-coupled timing residual cancels in tests.
func Generate(p Params) (fusion.IMUSeries, fusion.GPSSeries, Truth) {
	rng := rand.New(rand.NewSource(p.Seed))

	n := int(math.Round(p.Duration/p.IMUDt)) + 1
	imu := fusion.IMUSeries{
		Time:          make([]float64, n),
		AngularRate:   make([]geodesy.Vec3, n),
		SpecificForce: make([]geodesy.Vec3, n),
		AlignRoll:     p.Roll,
		AlignPitch:    p.Pitch,
		AlignYaw:      p.Yaw,
		Noise:         p.IMUNoise,
	}
	truth := Truth{
		Time: make([]float64, n),
		Roll: make([]float64, n), Pitch: make([]float64, n), Yaw: make([]float64, n),
		Vel: make([]geodesy.Vec3, n),
		Pos: make([]fusion.Geodetic, n),
	}

	state := strapdown.State{
		Att: newRotation(p.Roll, p.Pitch, p.Yaw),
		Lat: p.Start.Lat, Lon: p.Start.Lon, Alt: p.Start.Alt,
	}
	recordTruth(&truth, 0, 0, state)
	imu.Time[0] = 0
	imu.AngularRate[0], imu.SpecificForce[0] = idealRates(state, p.BodyRate)

	for i := 1; i < n; i++ {
		t := float64(i) * p.IMUDt
		gyro, accel := idealRates(state, p.BodyRate)
		env := strapdown.EnvAt(state)
		state = strapdown.Step(state, gyro, accel, env, p.IMUDt)

		imu.Time[i] = t
		imu.AngularRate[i] = corrupt(gyro, p.GyroFixedBias, p.GyroNoiseStd, rng)
		imu.SpecificForce[i] = corrupt(accel, p.AccelFixedBias, p.AccelNoiseStd, rng)
		recordTruth(&truth, i, t, state)
	}

	m := int(math.Round(p.Duration/p.GPSDt)) + 1
	gps := fusion.GPSSeries{
		Time:     make([]float64, m),
		Position: make([]fusion.Geodetic, m),
		Velocity: make([]geodesy.Vec3, m),
		VelStd:   geodesy.Vec3{p.GPSVelStd, p.GPSVelStd, p.GPSVelStd},
		PosStd:   geodesy.Vec3{p.GPSPosStd, p.GPSPosStd, p.GPSPosStd},
		LeverArm: p.LeverArm,
	}
	for j := 0; j < m; j++ {
		t := float64(j) * p.GPSDt
		gps.Time[j] = t
		k := lastBefore(imu.Time, t)
		pos := truth.Pos[k]
		vel := truth.Vel[k]

		// The antenna sits at the lever-arm offset from the IMU point.
		lever := attitude.EulerToQuat(truth.Roll[k], truth.Pitch[k], truth.Yaw[k]).Rotate(p.LeverArm)

		scale := filter.PositionScale(pos.Lat, pos.Alt)
		gps.Position[j] = fusion.Geodetic{
			Lat: pos.Lat + (lever[0]+p.GPSPosStd*rng.NormFloat64())/scale[0],
			Lon: pos.Lon + (lever[1]+p.GPSPosStd*rng.NormFloat64())/scale[1],
			Alt: pos.Alt - lever[2] + p.GPSPosStd*rng.NormFloat64(),
		}
		gps.Velocity[j] = geodesy.Vec3{
			vel[0] + p.GPSVelStd*rng.NormFloat64(),
			vel[1] + p.GPSVelStd*rng.NormFloat64(),
			vel[2] + p.GPSVelStd*rng.NormFloat64(),
		}
	}
	return imu, gps, truth
}

// idealRates returns the error-free gyro and accelerometer readings that
// hold the state on its zero-translation trajectory: the gyro tracks the
// rotating navigation frame plus the commanded body rate, the accelerometer
// reads the gravity reaction.
func idealRates(s strapdown.State, bodyRate geodesy.Vec3) (gyro, accel geodesy.Vec3) {
	env := strapdown.EnvAt(s)
	win := env.EarthRate.Add(env.TransportRate)

	// Resolve nav-frame vectors in the body frame via Cᵀ.
	c := s.Att.DCM()
	gyro = rotateT(c, win).Add(bodyRate)
	accel = rotateT(c, env.Gravity.Scale(-1))
	return gyro, accel
}

func rotateT(c mat.Matrix, v geodesy.Vec3) geodesy.Vec3 {
	var out geodesy.Vec3
	for i := 0; i < 3; i++ {
		out[i] = c.At(0, i)*v[0] + c.At(1, i)*v[1] + c.At(2, i)*v[2]
	}
	return out
}

func corrupt(v, bias geodesy.Vec3, std float64, rng *rand.Rand) geodesy.Vec3 {
	return geodesy.Vec3{
		v[0] + bias[0] + std*rng.NormFloat64(),
		v[1] + bias[1] + std*rng.NormFloat64(),
		v[2] + bias[2] + std*rng.NormFloat64(),
	}
}

func recordTruth(tr *Truth, i int, t float64, s strapdown.State) {
	roll, pitch, yaw := s.Att.Euler()
	tr.Time[i] = t
	tr.Roll[i], tr.Pitch[i], tr.Yaw[i] = roll, pitch, yaw
	tr.Vel[i] = s.Vel
	tr.Pos[i] = fusion.Geodetic{Lat: s.Lat, Lon: s.Lon, Alt: s.Alt}
}

// lastBefore returns the index of the last timestamp strictly before t,
// matching the estimator's scheduler tie-break; index 0 when none is.
func lastBefore(times []float64, t float64) int {
	k := 0
	for i, ti := range times {
		if ti < t {
			k = i
		} else {
			break
		}
	}
	return k
}
