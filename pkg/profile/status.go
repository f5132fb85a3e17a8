package profile

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/maxgio92/wattprof/internal/output"
)

func (p *Profiler) printStatusBar(ctx context.Context) {
	if !p.status {
		return
	}
	output.StatusBar(ctx,
		1*time.Second, // bar refresh interval.
		func() {
			output.PrintRight(output.PrettyProfileStatus(
				atomic.LoadUint64(&p.rowCount),
				atomic.SwapUint64(&p.consumed, 0), // samples rate reset at each bar refresh.
				atomic.LoadUint64(&p.lostCount),
				math.Float64frombits(atomic.LoadUint64(&p.gpuPowerBits)),
			))
		},
	)
}
