package counters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeZone(t *testing.T, base, name, energy, maxRange string) {
	t.Helper()
	dir := filepath.Join(base, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "energy_uj"), []byte(energy+"\n"), 0o644))
	if maxRange != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "max_energy_range_uj"), []byte(maxRange+"\n"), 0o644))
	}
}

func TestRAPL_ReadSumsPackageZones(t *testing.T) {
	base := t.TempDir()
	writeZone(t, base, "intel-rapl:0", "1000", "262143328850")
	writeZone(t, base, "intel-rapl:1", "500", "262143328850")
	// Sub-zones are already counted in their parent package.
	writeZone(t, base, "intel-rapl:0:0", "999999", "262143328850")

	rapl, err := newRAPLFromPath(base)
	require.NoError(t, err)

	total, err := rapl.Read()
	require.NoError(t, err)
	require.Equal(t, uint64(1500), total)

	require.Equal(t, uint64(2*262143328850), rapl.MaxRange())
}

func TestRAPL_NoZones(t *testing.T) {
	_, err := newRAPLFromPath(t.TempDir())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEnergyUnavailable)
}

func TestRAPL_MissingBasePath(t *testing.T) {
	_, err := newRAPLFromPath(filepath.Join(t.TempDir(), "nonexistent"))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEnergyUnavailable)
}

func TestRAPL_UnreadableZone(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "intel-rapl:0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	// Zone directory without an energy_uj counter.

	_, err := newRAPLFromPath(base)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEnergyUnavailable)
}
