package fusion

import (
	"errors"
	"fmt"
)

// ErrInsufficientData reports input series too short to fuse: fewer than two
// samples in either series, or a GPS series starting before the first usable
// IMU sample. Raised before the loop starts; no partial results exist.
var ErrInsufficientData = errors.New("fusion: insufficient input data")

// NonFiniteStateError reports a navigation or error-state component going
// non-finite at a GPS epoch (covariance divergence or mechanization
// blow-up). The run stops immediately: resetting a diverged filter would
// silently produce a valid-looking but meaningless trajectory. Histories up
// to Epoch remain inspectable.
type NonFiniteStateError struct {
	Epoch int
	What  string
}

func (e *NonFiniteStateError) Error() string {
	return fmt.Sprintf("fusion: non-finite %s at GPS epoch %d", e.What, e.Epoch)
}

// RenormalizationError reports a quaternion whose norm was zero or
// non-finite at correction time, so it could not be restored to a unit
// rotation.
type RenormalizationError struct {
	Epoch int
	Err   error
}

func (e *RenormalizationError) Error() string {
	return fmt.Sprintf("fusion: attitude renormalization failed at GPS epoch %d: %v", e.Epoch, e.Err)
}

func (e *RenormalizationError) Unwrap() error { return e.Err }
