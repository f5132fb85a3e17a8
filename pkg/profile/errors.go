package profile

import (
	"github.com/pkg/errors"
)

var (
	ErrNotAttached = errors.New("profiler is not attached")
	ErrTerminated  = errors.New("profiler is terminated")
	ErrPidInvalid  = errors.New("pid is invalid")
)
