package perf

import (
	"github.com/pkg/errors"
)

var (
	ErrPermission   = errors.New("permission denied opening perf event stream")
	ErrBufferClosed = errors.New("sample buffer is closed")
	ErrOpen         = errors.New("cannot open perf event stream")
)
