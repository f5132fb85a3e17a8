package counters

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const raplBasePath = "/sys/class/powercap"

// raplZone is one powercap energy domain (a CPU package, typically).
type raplZone struct {
	energyPath string
	maxRange   uint64
}

// RAPL reads the platform energy-metering counters exposed through the
// powercap sysfs interface. The counter is monotonic until hardware
// wraparound; MaxRange exposes the wrap range so callers can fold a
// negative delta back into a full-range wrap.
type RAPL struct {
	zones []raplZone
}

// NewRAPL discovers the top-level intel-rapl package zones. It fails
// when no zone is readable: energy counters require privilege and their
// absence is a fatal startup condition, not a degraded one.
func NewRAPL() (*RAPL, error) {
	return newRAPLFromPath(raplBasePath)
}

func newRAPLFromPath(base string) (*RAPL, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, errors.Wrapf(ErrEnergyUnavailable, "reading %s: %v", base, err)
	}

	var zones []raplZone
	for _, entry := range entries {
		name := entry.Name()
		// Top-level package zones only: "intel-rapl:<n>", not the
		// "intel-rapl:<n>:<m>" sub-zones, which are already counted
		// in their parent.
		if !strings.HasPrefix(name, "intel-rapl:") || strings.Count(name, ":") != 1 {
			continue
		}

		zoneDir := filepath.Join(base, name)
		energyPath := filepath.Join(zoneDir, "energy_uj")
		if _, err := readCounterFile(energyPath); err != nil {
			return nil, errors.Wrapf(ErrEnergyUnavailable, "reading %s: %v", energyPath, err)
		}

		maxRange, err := readCounterFile(filepath.Join(zoneDir, "max_energy_range_uj"))
		if err != nil {
			maxRange = 0
		}

		zones = append(zones, raplZone{energyPath: energyPath, maxRange: maxRange})
	}
	if len(zones) == 0 {
		return nil, errors.Wrapf(ErrEnergyUnavailable, "no intel-rapl zone under %s", base)
	}

	return &RAPL{zones: zones}, nil
}

// Read returns the cumulative energy counter in micro-joules, summed
// across package zones.
func (r *RAPL) Read() (uint64, error) {
	var total uint64
	for _, zone := range r.zones {
		v, err := readCounterFile(zone.energyPath)
		if err != nil {
			return 0, errors.Wrapf(ErrEnergyUnavailable, "reading %s: %v", zone.energyPath, err)
		}
		total += v
	}

	return total, nil
}

// MaxRange returns the summed wraparound range of the zones, the value a
// negative delta must be folded with.
func (r *RAPL) MaxRange() uint64 {
	var total uint64
	for _, zone := range r.zones {
		total += zone.maxRange
	}

	return total
}

func readCounterFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}
