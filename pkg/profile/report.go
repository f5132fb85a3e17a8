package profile

import (
	"encoding/json"
	"io"
)

const ReportFileName = "wattprof-report.json"

// RunReport summarizes one sampling run.
type RunReport struct {
	Pid             int     `json:"pid"`
	Rows            uint64  `json:"rows"`
	Samples         uint64  `json:"samples"`
	LostSamples     uint64  `json:"lost_samples"`
	UnresolvedAddrs uint64  `json:"unresolved_addrs"`
	EnergyTotalUJ   uint64  `json:"energy_total_uj"`
	EnergyWraps     uint64  `json:"energy_wraps"`
	AvgGPUPowerW    float64 `json:"avg_gpu_power_w"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type RunReportOption func(*RunReport)

func NewRunReport(opts ...RunReportOption) *RunReport {
	report := new(RunReport)
	for _, opt := range opts {
		opt(report)
	}

	return report
}

func WithReportPid(pid int) RunReportOption {
	return func(o *RunReport) {
		o.Pid = pid
	}
}

func WithReportRows(rows uint64) RunReportOption {
	return func(o *RunReport) {
		o.Rows = rows
	}
}

func WithReportSamples(samples uint64) RunReportOption {
	return func(o *RunReport) {
		o.Samples = samples
	}
}

func WithReportLostSamples(lost uint64) RunReportOption {
	return func(o *RunReport) {
		o.LostSamples = lost
	}
}

func WithReportUnresolvedAddrs(unresolved uint64) RunReportOption {
	return func(o *RunReport) {
		o.UnresolvedAddrs = unresolved
	}
}

func WithReportEnergyTotalUJ(total uint64) RunReportOption {
	return func(o *RunReport) {
		o.EnergyTotalUJ = total
	}
}

func WithReportEnergyWraps(wraps uint64) RunReportOption {
	return func(o *RunReport) {
		o.EnergyWraps = wraps
	}
}

func WithReportAvgGPUPowerW(avg float64) RunReportOption {
	return func(o *RunReport) {
		o.AvgGPUPowerW = avg
	}
}

func WithReportDurationSeconds(duration float64) RunReportOption {
	return func(o *RunReport) {
		o.DurationSeconds = duration
	}
}

func (r *RunReport) WriteReport(w io.Writer) error {
	encoder := json.NewEncoder(w)
	return encoder.Encode(r)
}
