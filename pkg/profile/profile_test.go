package profile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/wattprof/pkg/profile"
	"github.com/maxgio92/wattprof/pkg/symtab"
)

func TestNewProfiler_InitialState(t *testing.T) {
	p := profile.NewProfiler(profile.WithProfilerPid(1234))
	require.Equal(t, profile.StateInit, p.State())
}

func TestRun_WithoutInit(t *testing.T) {
	p := profile.NewProfiler(profile.WithProfilerPid(1234))

	err := p.Run(context.TODO())
	require.Error(t, err)
	require.ErrorIs(t, err, profile.ErrNotAttached)
}

func TestInit_InvalidPid(t *testing.T) {
	for _, pid := range []int{0, -1} {
		p := profile.NewProfiler(profile.WithProfilerPid(pid))

		err := p.Init(context.TODO())
		require.Error(t, err)
		require.ErrorIs(t, err, profile.ErrPidInvalid)
		require.Equal(t, profile.StateInit, p.State())
	}
}

func TestInit_NonexistentPid(t *testing.T) {
	p := profile.NewProfiler(profile.WithProfilerPid(1 << 22))

	err := p.Init(context.TODO())
	require.Error(t, err)
	require.ErrorIs(t, err, symtab.ErrAttach)
	require.Equal(t, profile.StateInit, p.State())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "INIT", profile.StateInit.String())
	require.Equal(t, "ATTACHED", profile.StateAttached.String())
	require.Equal(t, "SAMPLING", profile.StateSampling.String())
	require.Equal(t, "DRAINING", profile.StateDraining.String())
	require.Equal(t, "TERMINATED", profile.StateTerminated.String())
	require.Equal(t, "UNKNOWN", profile.State(99).String())
}
