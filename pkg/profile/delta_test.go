package profile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCpuDelta(t *testing.T) {
	require.Equal(t, 0.5, cpuDelta(1.0, 1.5))
	require.Equal(t, 0.0, cpuDelta(2.0, 2.0))

	// Clock adjustments can pull the reading backwards; never emit a
	// negative delta.
	require.Equal(t, 0.0, cpuDelta(2.0, 1.9))
}

func TestEnergyDelta(t *testing.T) {
	delta, wrapped := energyDelta(1000, 1500, 262143328850)
	require.Equal(t, uint64(500), delta)
	require.False(t, wrapped)

	delta, wrapped = energyDelta(3000, 3000, 262143328850)
	require.Zero(t, delta)
	require.False(t, wrapped)
}

func TestEnergyDelta_Wrap(t *testing.T) {
	// Counter wrapped near the top of its range: the delta is the
	// remainder up to the range plus the new reading.
	delta, wrapped := energyDelta(262143328000, 150, 262143328850)
	require.Equal(t, uint64(1000), delta)
	require.True(t, wrapped)
}

func TestEnergyDelta_WrapWithoutRange(t *testing.T) {
	delta, wrapped := energyDelta(5000, 100, 0)
	require.Zero(t, delta)
	require.True(t, wrapped)
}

func TestUtilization(t *testing.T) {
	require.Equal(t, 0.25, utilization(1.0, 4.0))
	require.Equal(t, 0.0, utilization(1.0, 0.0))
	require.Equal(t, 0.0, utilization(1.0, -1.0))
}
