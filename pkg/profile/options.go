package profile

import (
	"io"
	"time"

	log "github.com/rs/zerolog"
)

type ProfilerOptions struct {
	pid         int
	deviceCount int

	tickPeriod   time.Duration
	sampleFreq   uint64
	dataPages    int
	kernelStacks bool
	sourceLines  bool

	outputPath string
	output     io.Writer
	report     bool
	reportPath string
	status     bool

	readyFunc func()

	logger log.Logger
}

type ProfilerOption func(*Profiler)

func WithProfilerPid(pid int) ProfilerOption {
	return func(p *Profiler) {
		p.pid = pid
	}
}

func WithProfilerDeviceCount(deviceCount int) ProfilerOption {
	return func(p *Profiler) {
		p.deviceCount = deviceCount
	}
}

func WithProfilerTickPeriod(period time.Duration) ProfilerOption {
	return func(p *Profiler) {
		p.tickPeriod = period
	}
}

func WithProfilerSampleFreq(freq uint64) ProfilerOption {
	return func(p *Profiler) {
		p.sampleFreq = freq
	}
}

func WithProfilerDataPages(pages int) ProfilerOption {
	return func(p *Profiler) {
		p.dataPages = pages
	}
}

func WithProfilerKernelStacks(kernelStacks bool) ProfilerOption {
	return func(p *Profiler) {
		p.kernelStacks = kernelStacks
	}
}

func WithProfilerSourceLines(sourceLines bool) ProfilerOption {
	return func(p *Profiler) {
		p.sourceLines = sourceLines
	}
}

// WithProfilerOutputPath sets the per-run result file the row stream is
// written to. Ignored when WithProfilerOutput is set.
func WithProfilerOutputPath(path string) ProfilerOption {
	return func(p *Profiler) {
		p.outputPath = path
	}
}

func WithProfilerOutput(w io.Writer) ProfilerOption {
	return func(p *Profiler) {
		p.output = w
	}
}

func WithProfilerReport(report bool) ProfilerOption {
	return func(p *Profiler) {
		p.report = report
	}
}

func WithProfilerReportPath(path string) ProfilerOption {
	return func(p *Profiler) {
		p.reportPath = path
	}
}

func WithProfilerStatus(status bool) ProfilerOption {
	return func(p *Profiler) {
		p.status = status
	}
}

// WithProfilerReadyFunc registers a callback invoked once, when the run
// enters SAMPLING. The lifecycle manager handshake hooks in here.
func WithProfilerReadyFunc(readyFunc func()) ProfilerOption {
	return func(p *Profiler) {
		p.readyFunc = readyFunc
	}
}

func WithProfilerLogger(logger log.Logger) ProfilerOption {
	return func(p *Profiler) {
		p.logger = logger
	}
}
