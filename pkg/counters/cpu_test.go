package counters_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/wattprof/pkg/counters"
)

func TestProcessTime_Self(t *testing.T) {
	cpu, err := counters.NewCPU()
	require.NoError(t, err)

	first, err := cpu.ProcessTime(os.Getpid())
	require.NoError(t, err)
	require.GreaterOrEqual(t, first, 0.0)

	// Cumulative counter: a later reading never decreases.
	second, err := cpu.ProcessTime(os.Getpid())
	require.NoError(t, err)
	require.GreaterOrEqual(t, second, first)
}

func TestProcessTime_NonexistentPid(t *testing.T) {
	cpu, err := counters.NewCPU()
	require.NoError(t, err)

	_, err = cpu.ProcessTime(1 << 22)
	require.Error(t, err)
	require.ErrorIs(t, err, counters.ErrProcessExited)
}

func TestSystemTime(t *testing.T) {
	cpu, err := counters.NewCPU()
	require.NoError(t, err)

	first, err := cpu.SystemTime()
	require.NoError(t, err)
	require.Greater(t, first, 0.0)

	second, err := cpu.SystemTime()
	require.NoError(t, err)
	require.GreaterOrEqual(t, second, first)
}
