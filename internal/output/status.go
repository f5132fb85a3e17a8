package output

import (
	"context"
	"fmt"
	"time"
)

func StatusBar(ctx context.Context, refreshRate time.Duration, printF func()) {
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printF()
		case <-ctx.Done():
			return
		}
	}
}

func PrettyProfileStatus(rows, rate, lost uint64, gpuPowerW float64) string {
	return fmt.Sprintf("\r%-20s %-20s %-20s %-20s",
		fmt.Sprintf("Rows: %6d", rows),
		fmt.Sprintf("Samples/s: %5d", rate),
		fmt.Sprintf("Lost: %5d", lost),
		fmt.Sprintf("GPU: %7.2f W", gpuPowerW),
	)
}
