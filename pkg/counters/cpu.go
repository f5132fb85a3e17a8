package counters

import (
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

// CPU reads cumulative CPU time counters from procfs. Stateless between
// calls: every read is a fresh point-in-time query and delta computation
// belongs to the caller.
type CPU struct {
	fs procfs.FS
}

func NewCPU() (*CPU, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, errors.Wrap(err, "error opening procfs")
	}

	return &CPU{fs: fs}, nil
}

// ProcessTime returns the cumulative CPU time in seconds (user + system)
// consumed by the process since it started. It fails with
// ErrProcessExited once the process accounting record is gone, which is
// the liveness probe the sampling loop relies on.
func (c *CPU) ProcessTime(pid int) (float64, error) {
	proc, err := c.fs.Proc(pid)
	if err != nil {
		return 0, errors.Wrapf(ErrProcessExited, "pid %d: %v", pid, err)
	}

	stat, err := proc.Stat()
	if err != nil {
		return 0, errors.Wrapf(ErrProcessExited, "pid %d: %v", pid, err)
	}

	return stat.CPUTime(), nil
}

// SystemTime returns the cumulative CPU time in seconds across all cores
// since boot, the normalization baseline for utilization.
func (c *CPU) SystemTime() (float64, error) {
	stat, err := c.fs.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "error reading system CPU stat")
	}

	t := stat.CPUTotal

	return t.User + t.Nice + t.System + t.Idle + t.Iowait + t.IRQ + t.SoftIRQ + t.Steal, nil
}
