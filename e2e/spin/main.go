package main

import (
	"fmt"
	"math"
	"os"
	"time"
)

// spin busy-loops until the given duration elapses, to serve as a
// profiling target with a stable, recognizable stack.
func main() {
	duration := 30 * time.Second
	if len(os.Args) > 1 {
		d, err := time.ParseDuration(os.Args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid duration:", err)
			os.Exit(1)
		}
		duration = d
	}

	fmt.Println(os.Getpid())

	deadline := time.Now().Add(duration)
	x := 0.0
	for time.Now().Before(deadline) {
		x = burn(x)
	}
	_ = x
}

func burn(x float64) float64 {
	for i := 0; i < 1_000_000; i++ {
		x += math.Sqrt(float64(i) + x)
	}

	return x
}
