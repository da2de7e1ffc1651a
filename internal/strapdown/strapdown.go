// Package strapdown implements one-step strapdown mechanization: dead
// reckoning of attitude, velocity, and curvilinear position from
// bias-corrected inertial measurements and the local environment terms.
package strapdown

import (
	"math"

	"github.com/navsense/fusion/internal/attitude"
	"github.com/navsense/fusion/internal/geodesy"
)

// State is the nonlinear navigation state advanced by Step. Velocity is NED
// in m/s; latitude and longitude are radians, altitude meters (positive up).
type State struct {
	Att      attitude.Rotation
	Vel      geodesy.Vec3
	Lat, Lon float64
	Alt      float64
}

// Env bundles the environment terms evaluated at the previous state. The
// caller computes them once per sample so the same values feed both the
// mechanization and the filter's process model.
type Env struct {
	EarthRate     geodesy.Vec3 // ω_ie^n
	TransportRate geodesy.Vec3 // ω_en^n
	Gravity       geodesy.Vec3 // g^n, down positive
	Rm, Rn        float64      // radii of curvature at the previous latitude
}

// EnvAt evaluates the environment terms for a navigation state.
func EnvAt(s State) Env {
	rm, rn := geodesy.Radii(s.Lat)
	return Env{
		EarthRate:     geodesy.EarthRate(s.Lat),
		TransportRate: geodesy.TransportRate(s.Lat, s.Vel[0], s.Vel[1], s.Alt),
		Gravity:       geodesy.Gravity(s.Lat, s.Alt),
		Rm:            rm,
		Rn:            rn,
	}
}

// Step advances the navigation state by one IMU interval. gyro and accel are
// the bias-corrected angular rate (rad/s) and specific force (m/s²) in the
// body frame. Stable for the usual IMU periods (dt ≤ 0.1 s).
func Step(prev State, gyro, accel geodesy.Vec3, env Env, dt float64) State {
	// Specific force resolved in NED with the previous attitude, then
	// Coriolis/transport and gravity corrections.
	fn := prev.Att.Rotate(accel)
	coriolis := env.EarthRate.Scale(2).Add(env.TransportRate).Cross(prev.Vel)
	vel := prev.Vel.Add(fn.Sub(coriolis).Add(env.Gravity).Scale(dt))

	// Attitude update against the rotating navigation frame.
	navRate := env.EarthRate.Add(env.TransportRate)
	att := prev.Att.Integrate(gyro, navRate, dt)

	// Curvilinear position from the updated velocity.
	lat := prev.Lat + vel[0]*dt/(env.Rm+prev.Alt)
	alt := prev.Alt - vel[2]*dt
	lon := prev.Lon + vel[1]*dt/((env.Rn+prev.Alt)*math.Cos(prev.Lat))

	return State{Att: att, Vel: vel, Lat: lat, Lon: lon, Alt: alt}
}
