package fusion

import (
	"fmt"

	"github.com/navsense/fusion/internal/geodesy"
)

// AttitudeMode selects which rotation object the navigation state maintains.
// Both modes support the same correction algebra and produce the same
// results to within roundoff.
type AttitudeMode string

const (
	AttitudeQuaternion AttitudeMode = "quaternion"
	AttitudeDCM        AttitudeMode = "dcm"
)

// Precision selects the storage width of the non-position navigation states.
// Latitude and longitude are always kept at full precision: low-precision
// angular position accumulates drift that is unacceptable at Earth scale.
type Precision string

const (
	PrecisionDouble Precision = "double"
	PrecisionSingle Precision = "single"
)

// quantize rounds a value through the configured storage width. Position
// angles never pass through here.
func (p Precision) quantize(x float64) float64 {
	if p == PrecisionSingle {
		return float64(float32(x))
	}
	return x
}

// Config holds the per-run filter configuration: representation choices,
// initial 1σ uncertainties per error-state block, and the bias values seeded
// into the navigation state.
type Config struct {
	AttitudeMode AttitudeMode
	Precision    Precision

	// Initial uncertainty, one std per axis. Position is specified in
	// meters and converted to angular variance internally for lat/lon.
	AlignErrStd    geodesy.Vec3 // rad
	VelErrStd      geodesy.Vec3 // m/s
	PosErrStd      geodesy.Vec3 // m
	GyroBiasStd    geodesy.Vec3 // rad/s
	AccelBiasStd   geodesy.Vec3 // m/s²
	GyroDriftStd   geodesy.Vec3 // rad/s
	AccelDriftStd  geodesy.Vec3 // m/s²

	// Bias estimates seeded at initialization, order matching the
	// error-state layout: gyro fixed, accel fixed, gyro drift, accel drift.
	SeedGyroBias   geodesy.Vec3
	SeedAccelBias  geodesy.Vec3
	SeedGyroDrift  geodesy.Vec3
	SeedAccelDrift geodesy.Vec3
}

// DefaultConfig returns a configuration for a consumer-grade MEMS IMU aided
// by code-phase GPS.
func DefaultConfig() Config {
	return Config{
		AttitudeMode:  AttitudeQuaternion,
		Precision:     PrecisionDouble,
		AlignErrStd:   geodesy.Vec3{1e-3, 1e-3, 3e-3},
		VelErrStd:     geodesy.Vec3{0.1, 0.1, 0.1},
		PosErrStd:     geodesy.Vec3{3, 3, 5},
		GyroBiasStd:   geodesy.Vec3{1e-4, 1e-4, 1e-4},
		AccelBiasStd:  geodesy.Vec3{1e-3, 1e-3, 1e-3},
		GyroDriftStd:  geodesy.Vec3{1e-5, 1e-5, 1e-5},
		AccelDriftStd: geodesy.Vec3{1e-4, 1e-4, 1e-4},
	}
}

// Validate reports configuration values the run cannot proceed with.
func (c Config) Validate() error {
	switch c.AttitudeMode {
	case AttitudeQuaternion, AttitudeDCM:
	default:
		return fmt.Errorf("fusion: unknown attitude mode %q", c.AttitudeMode)
	}
	switch c.Precision {
	case PrecisionDouble, PrecisionSingle:
	default:
		return fmt.Errorf("fusion: unknown precision %q", c.Precision)
	}
	for _, std := range [][3]geodesy.Vec3{
		{c.AlignErrStd, c.VelErrStd, c.PosErrStd},
		{c.GyroBiasStd, c.AccelBiasStd, c.GyroDriftStd},
	} {
		for _, v := range std {
			for i := 0; i < 3; i++ {
				if v[i] < 0 {
					return fmt.Errorf("fusion: negative initial std %v", v)
				}
			}
		}
	}
	return nil
}

// Overlay is a partial configuration loaded from JSON; nil fields leave the
// base configuration untouched, so partial tuning files are safe.
type Overlay struct {
	AttitudeMode *string `json:"attitude_mode,omitempty"`
	Precision    *string `json:"precision,omitempty"`

	AlignErrStd   *[3]float64 `json:"align_err_std,omitempty"`
	VelErrStd     *[3]float64 `json:"vel_err_std,omitempty"`
	PosErrStd     *[3]float64 `json:"pos_err_std,omitempty"`
	GyroBiasStd   *[3]float64 `json:"gyro_bias_std,omitempty"`
	AccelBiasStd  *[3]float64 `json:"accel_bias_std,omitempty"`
	GyroDriftStd  *[3]float64 `json:"gyro_drift_std,omitempty"`
	AccelDriftStd *[3]float64 `json:"accel_drift_std,omitempty"`
}

// Apply folds the overlay into base and returns the result.
func (o *Overlay) Apply(base Config) Config {
	if o == nil {
		return base
	}
	if o.AttitudeMode != nil {
		base.AttitudeMode = AttitudeMode(*o.AttitudeMode)
	}
	if o.Precision != nil {
		base.Precision = Precision(*o.Precision)
	}
	if o.AlignErrStd != nil {
		base.AlignErrStd = geodesy.Vec3(*o.AlignErrStd)
	}
	if o.VelErrStd != nil {
		base.VelErrStd = geodesy.Vec3(*o.VelErrStd)
	}
	if o.PosErrStd != nil {
		base.PosErrStd = geodesy.Vec3(*o.PosErrStd)
	}
	if o.GyroBiasStd != nil {
		base.GyroBiasStd = geodesy.Vec3(*o.GyroBiasStd)
	}
	if o.AccelBiasStd != nil {
		base.AccelBiasStd = geodesy.Vec3(*o.AccelBiasStd)
	}
	if o.GyroDriftStd != nil {
		base.GyroDriftStd = geodesy.Vec3(*o.GyroDriftStd)
	}
	if o.AccelDriftStd != nil {
		base.AccelDriftStd = geodesy.Vec3(*o.AccelDriftStd)
	}
	return base
}
