package profile

import (
	"time"

	"github.com/maxgio92/wattprof/pkg/cmd/options"
)

type Options struct {
	pid      int
	gpuCount int

	freq         uint64
	tick         time.Duration
	pages        int
	kernelStacks bool
	sourceLines  bool

	output      string
	report      bool
	status      bool
	readySocket string

	*options.CommonOptions
}
