package profile_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxgio92/wattprof/pkg/profile"
)

func TestNewRunReport(t *testing.T) {
	report := profile.NewRunReport(
		profile.WithReportPid(1234),
		profile.WithReportRows(10),
		profile.WithReportSamples(990),
		profile.WithReportLostSamples(3),
		profile.WithReportUnresolvedAddrs(7),
		profile.WithReportEnergyTotalUJ(5_000_000),
		profile.WithReportEnergyWraps(1),
		profile.WithReportAvgGPUPowerW(70.5),
		profile.WithReportDurationSeconds(10.01),
	)

	require.Equal(t, 1234, report.Pid)
	require.Equal(t, uint64(10), report.Rows)
	require.Equal(t, uint64(990), report.Samples)
	require.Equal(t, uint64(3), report.LostSamples)
	require.Equal(t, uint64(7), report.UnresolvedAddrs)
	require.Equal(t, uint64(5_000_000), report.EnergyTotalUJ)
	require.Equal(t, uint64(1), report.EnergyWraps)
	require.Equal(t, 70.5, report.AvgGPUPowerW)
	require.Equal(t, 10.01, report.DurationSeconds)
}

func TestRunReport_WriteReport(t *testing.T) {
	report := profile.NewRunReport(
		profile.WithReportPid(42),
		profile.WithReportSamples(100),
	)

	var buf bytes.Buffer
	require.NoError(t, report.WriteReport(&buf))

	var decoded profile.RunReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, *report, decoded)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	for _, key := range []string{
		"pid", "rows", "samples", "lost_samples", "unresolved_addrs",
		"energy_total_uj", "energy_wraps", "avg_gpu_power_w",
		"duration_seconds",
	} {
		require.Contains(t, fields, key)
	}
}
