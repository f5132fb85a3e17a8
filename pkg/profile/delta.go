package profile

// cpuDelta combines two successive cumulative CPU time readings.
// Clock adjustments can make the raw difference marginally negative;
// clamp instead of emitting a negative delta.
func cpuDelta(prev, cur float64) float64 {
	if cur < prev {
		return 0
	}

	return cur - prev
}

// energyDelta combines two successive cumulative energy readings. A
// negative raw delta means the hardware counter wrapped: fold it back
// into the full range and flag it, rather than treating it as an error.
func energyDelta(prev, cur, maxRange uint64) (uint64, bool) {
	if cur >= prev {
		return cur - prev, false
	}
	if maxRange > 0 {
		return cur + (maxRange - prev), true
	}

	return 0, true
}

// utilization normalizes a process CPU delta against the system-wide
// delta over the same interval.
func utilization(procDelta, sysDelta float64) float64 {
	if sysDelta <= 0 {
		return 0
	}

	return procDelta / sysDelta
}
