package counters

import (
	"github.com/pkg/errors"
)

var (
	ErrProcessExited     = errors.New("process accounting record no longer exists")
	ErrEnergyUnavailable = errors.New("energy counters are not readable")
	ErrDeviceQuery       = errors.New("device management layer unavailable")
)
