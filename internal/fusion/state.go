package fusion

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/navsense/fusion/internal/attitude"
	"github.com/navsense/fusion/internal/filter"
	"github.com/navsense/fusion/internal/geodesy"
)

// NavState is the full nonlinear navigation state, owned exclusively by the
// run. The rotation object is the single source of truth for attitude;
// Euler angles are derived on read.
type NavState struct {
	Att attitude.Rotation
	Vel geodesy.Vec3

	// Lat and Lon are always full precision regardless of the configured
	// precision mode.
	Lat, Lon, Alt float64

	GyroBias   geodesy.Vec3
	AccelBias  geodesy.Vec3
	GyroDrift  geodesy.Vec3
	AccelDrift geodesy.Vec3
}

// Euler returns roll, pitch, yaw derived from the rotation object.
func (s *NavState) Euler() (roll, pitch, yaw float64) { return s.Att.Euler() }

// Position returns the geodetic position triple.
func (s *NavState) Position() Geodetic { return Geodetic{Lat: s.Lat, Lon: s.Lon, Alt: s.Alt} }

// correctedRates subtracts the current fixed and drift bias estimates from a
// raw IMU sample.
func (s *NavState) correctedRates(gyro, accel geodesy.Vec3) (geodesy.Vec3, geodesy.Vec3) {
	return gyro.Sub(s.GyroBias).Sub(s.GyroDrift),
		accel.Sub(s.AccelBias).Sub(s.AccelDrift)
}

// biasSnapshot returns the 12 bias estimates in the error-state order:
// gyro fixed, accel fixed, gyro drift, accel drift.
func (s *NavState) biasSnapshot() [12]float64 {
	var out [12]float64
	copy(out[0:3], s.GyroBias[:])
	copy(out[3:6], s.AccelBias[:])
	copy(out[6:9], s.GyroDrift[:])
	copy(out[9:12], s.AccelDrift[:])
	return out
}

// finite reports whether every component of the navigation state is finite.
func (s *NavState) finite() bool {
	vals := []float64{s.Lat, s.Lon, s.Alt}
	vals = append(vals, s.Vel[:]...)
	vals = append(vals, s.GyroBias[:]...)
	vals = append(vals, s.AccelBias[:]...)
	vals = append(vals, s.GyroDrift[:]...)
	vals = append(vals, s.AccelDrift[:]...)
	roll, pitch, yaw := s.Att.Euler()
	vals = append(vals, roll, pitch, yaw)
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ErrorState is the 21-element filter error state as named fields. It holds
// the latest Kalman output only inside the correction cycle and is zero at
// all other times: it represents the current correction, not a persistent
// quantity.
type ErrorState struct {
	Att        geodesy.Vec3 // small-angle attitude error, rad
	Vel        geodesy.Vec3 // m/s
	Pos        geodesy.Vec3 // north, east, altitude error, m
	GyroBias   geodesy.Vec3
	AccelBias  geodesy.Vec3
	GyroDrift  geodesy.Vec3
	AccelDrift geodesy.Vec3
}

// Vector serializes the error state in the flat order the linear filter
// expects: [att, vel, pos, gyro bias, accel bias, gyro drift, accel drift].
func (e *ErrorState) Vector() *mat.VecDense {
	v := mat.NewVecDense(filter.StateDim, nil)
	for i := 0; i < 3; i++ {
		v.SetVec(filter.IdxAtt+i, e.Att[i])
		v.SetVec(filter.IdxVel+i, e.Vel[i])
		v.SetVec(filter.IdxPos+i, e.Pos[i])
		v.SetVec(filter.IdxGyroBias+i, e.GyroBias[i])
		v.SetVec(filter.IdxAccelBias+i, e.AccelBias[i])
		v.SetVec(filter.IdxGyroDrift+i, e.GyroDrift[i])
		v.SetVec(filter.IdxAccelDrift+i, e.AccelDrift[i])
	}
	return v
}

// SetFromVector deserializes a flat filter vector back into named fields.
func (e *ErrorState) SetFromVector(v *mat.VecDense) {
	for i := 0; i < 3; i++ {
		e.Att[i] = v.AtVec(filter.IdxAtt + i)
		e.Vel[i] = v.AtVec(filter.IdxVel + i)
		e.Pos[i] = v.AtVec(filter.IdxPos + i)
		e.GyroBias[i] = v.AtVec(filter.IdxGyroBias + i)
		e.AccelBias[i] = v.AtVec(filter.IdxAccelBias + i)
		e.GyroDrift[i] = v.AtVec(filter.IdxGyroDrift + i)
		e.AccelDrift[i] = v.AtVec(filter.IdxAccelDrift + i)
	}
}

// Zero resets every component.
func (e *ErrorState) Zero() { *e = ErrorState{} }

// snapshot returns the flat 21-element view for the diagnostics history.
func (e *ErrorState) snapshot() [filter.StateDim]float64 {
	var out [filter.StateDim]float64
	v := e.Vector()
	for i := 0; i < filter.StateDim; i++ {
		out[i] = v.AtVec(i)
	}
	return out
}

// finite reports whether every component is finite.
func (e *ErrorState) finite() bool {
	for _, blk := range []geodesy.Vec3{e.Att, e.Vel, e.Pos, e.GyroBias, e.AccelBias, e.GyroDrift, e.AccelDrift} {
		for _, v := range blk {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
