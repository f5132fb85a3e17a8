package profile

import (
	"context"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/maxgio92/wattprof/internal/settings"
	"github.com/maxgio92/wattprof/internal/utils"
	"github.com/maxgio92/wattprof/pkg/counters"
	"github.com/maxgio92/wattprof/pkg/perf"
	"github.com/maxgio92/wattprof/pkg/symtab"
)

const defaultTickPeriod = time.Second

// Profiler drives the sampling run against one target process: it owns
// the attach session, the kernel sample buffer and the counter readers,
// and fuses them into the output row stream from a single cooperative
// loop. One Profiler per target; never shared.
type Profiler struct {
	state State

	session *symtab.Session
	buffer  *perf.Buffer
	cpu     *counters.CPU
	rapl    *counters.RAPL
	gpu     *counters.GPU

	rows       *RowWriter
	outputFile *os.File

	// chains caches the folded string per distinct raw call chain.
	chains map[uint64]string

	prevProcCPU float64
	prevSysCPU  float64
	prevEnergy  uint64

	// Counters read by the status bar goroutine are accessed with
	// atomics; the rest belong to the loop alone.
	rowCount     uint64
	sampleCount  uint64
	lostCount    uint64
	consumed     uint64
	gpuPowerBits uint64

	unresolved   uint64
	energyTotal  uint64
	energyWraps  uint64
	gpuPowerSum  float64
	deviceWarned bool

	startedAt time.Time
	closed    bool

	*ProfilerOptions
}

func NewProfiler(opts ...ProfilerOption) *Profiler {
	profiler := &Profiler{
		chains: make(map[uint64]string),
		ProfilerOptions: &ProfilerOptions{
			tickPeriod: defaultTickPeriod,
		},
	}
	for _, opt := range opts {
		opt(profiler)
	}

	return profiler
}

// State returns the current lifecycle state.
func (p *Profiler) State() State {
	return State(atomic.LoadInt32((*int32)(&p.state)))
}

func (p *Profiler) transition(to State) {
	p.logger.Debug().Str("from", p.state.String()).Str("to", to.String()).Msg("state transition")
	atomic.StoreInt32((*int32)(&p.state), int32(to))
}

// Init attaches to the target: symbol session, perf sample buffer,
// counter baselines. Every failure here is fatal and aborts the run
// before any sample is taken, with all partially acquired resources
// released.
func (p *Profiler) Init(_ context.Context) error {
	if p.State() != StateInit {
		return errors.Errorf("cannot init from state %s", p.State())
	}
	if p.pid <= 0 {
		return ErrPidInvalid
	}

	cpu, err := counters.NewCPU()
	if err != nil {
		return errors.Wrap(err, "failed to open CPU time counters")
	}
	p.cpu = cpu

	session, err := symtab.Attach(p.pid,
		symtab.WithSessionLogger(p.logger),
		symtab.WithSessionSourceLines(p.sourceLines),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to attach to pid %d", p.pid)
	}
	p.session = session

	bufOpts := []perf.BufferOption{
		perf.WithBufferLogger(p.logger),
		perf.WithBufferKernelStacks(p.kernelStacks),
	}
	if p.sampleFreq > 0 {
		bufOpts = append(bufOpts, perf.WithBufferSampleFreq(p.sampleFreq))
	}
	if p.dataPages > 0 {
		bufOpts = append(bufOpts, perf.WithBufferDataPages(p.dataPages))
	}
	buffer, err := perf.Open(p.pid, bufOpts...)
	if err != nil {
		session.Close()
		return errors.Wrap(err, "failed to open sample buffer")
	}
	p.buffer = buffer

	rapl, err := counters.NewRAPL()
	if err != nil {
		buffer.Close()
		session.Close()
		return errors.Wrap(err, "failed to open energy counters")
	}
	p.rapl = rapl

	p.gpu = counters.NewGPU(p.deviceCount, counters.WithGPULogger(p.logger))

	// Counter baselines; the process time read doubles as the
	// liveness check, fatal at this stage.
	if p.prevProcCPU, err = cpu.ProcessTime(p.pid); err != nil {
		p.teardown()
		return errors.Wrapf(err, "failed to read CPU time of pid %d", p.pid)
	}
	if p.prevSysCPU, err = cpu.SystemTime(); err != nil {
		p.teardown()
		return errors.Wrap(err, "failed to read system CPU time")
	}
	if p.prevEnergy, err = rapl.Read(); err != nil {
		p.teardown()
		return errors.Wrap(err, "failed to read energy counter")
	}

	p.transition(StateAttached)
	p.logger.Info().Int("pid", p.pid).Int("modules", len(session.Modules())).Msg("attached")

	return nil
}

// Run drives the periodic sampling loop until the target exits or the
// context is canceled, then drains the buffer tail, releases every
// resource and optionally writes the run report.
func (p *Profiler) Run(ctx context.Context) error {
	if p.State() == StateTerminated {
		return ErrTerminated
	}
	if p.State() != StateAttached {
		return ErrNotAttached
	}

	out := p.output
	if out == nil {
		path := p.outputPath
		if path == "" {
			path = settings.ResultFile(p.pid)
		}
		f, err := os.Create(path)
		if err != nil {
			p.teardown()
			return errors.Wrapf(err, "failed to create result file %s", path)
		}
		p.outputFile = f
		out = f
		p.logger.Info().Str("path", path).Msg("writing rows")
	}
	p.rows = NewRowWriter(out)
	if err := p.rows.WriteHeader(); err != nil {
		p.teardown()
		return errors.Wrap(err, "failed to write row header")
	}

	p.startedAt = time.Now()

	statusCtx, cancelStatus := context.WithCancel(ctx)
	statusWG := new(errgroup.Group)
	statusWG.Go(func() error {
		p.printStatusBar(statusCtx)
		return nil
	})

	ticker := time.NewTicker(p.tickPeriod)
	defer ticker.Stop()

	var runErr error
	for p.State() != StateTerminated {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("stop signal received, draining")
			p.transition(StateDraining)
			p.finalDrain()
			p.teardown()
		case <-ticker.C:
			if p.State() == StateAttached {
				p.transition(StateSampling)
				if p.readyFunc != nil {
					p.readyFunc()
				}
			}
			if err := p.tick(); err != nil {
				runErr = err
				p.transition(StateDraining)
				p.teardown()
			}
		}
	}

	cancelStatus()
	_ = statusWG.Wait()

	if runErr != nil {
		return runErr
	}

	return p.writeReport()
}

// tick is one full sampling pass: drain, resolve, read counters, delta,
// emit exactly one row. Target exit is detected here and triggers the
// drain-and-terminate path instead of an error.
func (p *Profiler) tick() error {
	now := time.Now()

	records, lost, err := p.buffer.Drain()
	if err != nil {
		return errors.Wrap(err, "failed to drain sample buffer")
	}

	procCPU, procErr := p.cpu.ProcessTime(p.pid)
	exited := errors.Is(procErr, counters.ErrProcessExited)
	if procErr != nil {
		procCPU = p.prevProcCPU
	}

	sysCPU, err := p.cpu.SystemTime()
	if err != nil {
		p.logger.Warn().Err(err).Msg("system CPU time read failed")
		sysCPU = p.prevSysCPU
	}

	energy, err := p.rapl.Read()
	if err != nil {
		p.logger.Warn().Err(err).Msg("energy read failed")
		energy = p.prevEnergy
	}

	gpuPower := p.readGPUPower()

	row := p.buildRow(now, records, lost, procCPU, sysCPU, energy, gpuPower)
	if err := p.rows.WriteRow(row); err != nil {
		return errors.Wrap(err, "failed to write row")
	}
	atomic.AddUint64(&p.rowCount, 1)

	p.prevProcCPU = procCPU
	p.prevSysCPU = sysCPU
	p.prevEnergy = energy

	if exited {
		p.logger.Info().Int("pid", p.pid).Msg("target process exited, draining")
		p.transition(StateDraining)
		p.finalDrain()
		p.teardown()
	}

	return nil
}

// finalDrain consumes whatever the kernel buffered between the last tick
// and the stop condition, so no tail samples are silently lost. Counter
// deltas for this partial interval are unknowable and reported as zero.
func (p *Profiler) finalDrain() {
	if p.buffer == nil {
		return
	}

	records, lost, err := p.buffer.Drain()
	if err != nil {
		return
	}
	if len(records) == 0 && lost == 0 {
		return
	}

	row := p.buildRow(time.Now(), records, lost, p.prevProcCPU, p.prevSysCPU, p.prevEnergy, p.readGPUPower())
	if err := p.rows.WriteRow(row); err != nil {
		p.logger.Warn().Err(err).Msg("failed to write tail row")
		return
	}
	atomic.AddUint64(&p.rowCount, 1)
}

func (p *Profiler) buildRow(now time.Time, records []perf.Record, lost uint64, procCPU, sysCPU float64, energy uint64, gpuPower float64) *Row {
	chains := make([]string, 0, len(records))
	for _, record := range records {
		chains = append(chains, p.foldRecord(record))
	}

	procDelta := cpuDelta(p.prevProcCPU, procCPU)
	sysDelta := cpuDelta(p.prevSysCPU, sysCPU)
	eDelta, wrapped := energyDelta(p.prevEnergy, energy, p.rapl.MaxRange())

	atomic.AddUint64(&p.sampleCount, uint64(len(records)))
	atomic.AddUint64(&p.lostCount, lost)
	atomic.AddUint64(&p.consumed, uint64(len(records)))
	atomic.StoreUint64(&p.gpuPowerBits, math.Float64bits(gpuPower))
	p.energyTotal += eDelta
	if wrapped {
		p.energyWraps++
		p.logger.Warn().Uint64("delta_uj", eDelta).Msg("energy counter wrapped")
	}
	p.gpuPowerSum += gpuPower

	return &Row{
		Timestamp:     now,
		CallChains:    JoinChains(chains),
		CPUDelta:      procDelta,
		CPUUtil:       utilization(procDelta, sysDelta),
		EnergyDeltaUJ: eDelta,
		EnergyWrapped: wrapped,
		GPUPowerW:     gpuPower,
		Samples:       len(records),
		LostSamples:   lost,
	}
}

// foldRecord resolves one raw call chain into its folded string, cached
// by the chain's address fingerprint so repeated stacks (the common case
// on a busy loop) are resolved once.
func (p *Profiler) foldRecord(record perf.Record) string {
	key := utils.Hash(chainKey(record.CallChain))
	if chain, ok := p.chains[key]; ok {
		return chain
	}

	frames := make([]symtab.Frame, 0, len(record.CallChain))
	for _, addr := range record.CallChain {
		frame := p.session.Resolve(addr)
		if frame.Unknown() {
			p.unresolved++
		}
		frames = append(frames, frame)
	}

	chain := FoldChain(frames)
	p.chains[key] = chain

	return chain
}

func chainKey(ips []uint64) string {
	buf := make([]byte, 0, len(ips)*8)
	for _, ip := range ips {
		buf = append(buf,
			byte(ip), byte(ip>>8), byte(ip>>16), byte(ip>>24),
			byte(ip>>32), byte(ip>>40), byte(ip>>48), byte(ip>>56))
	}

	return string(buf)
}

func (p *Profiler) readGPUPower() float64 {
	readings, err := p.gpu.Read()
	if err != nil {
		if !p.deviceWarned {
			p.logger.Warn().Err(err).Msg("GPU power degraded")
			p.deviceWarned = true
		} else {
			p.logger.Debug().Err(err).Msg("GPU power degraded")
		}
	}

	var total float64
	for _, w := range readings {
		total += w
	}

	return total
}

// teardown releases the sample buffer, the attach session and the device
// management layer. Idempotent; the row stream is closed last so that no
// row can be written after TERMINATED.
func (p *Profiler) teardown() {
	if p.closed {
		return
	}
	p.closed = true

	if p.buffer != nil {
		if err := p.buffer.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("error closing sample buffer")
		}
	}
	if p.session != nil {
		p.session.Close()
	}
	if p.gpu != nil {
		p.gpu.Close()
	}
	if p.outputFile != nil {
		if err := p.outputFile.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("error closing result file")
		}
	}

	p.transition(StateTerminated)
	p.logger.Info().
		Uint64("rows", atomic.LoadUint64(&p.rowCount)).
		Uint64("samples", atomic.LoadUint64(&p.sampleCount)).
		Uint64("lost", atomic.LoadUint64(&p.lostCount)).
		Msg("run terminated")
}

func (p *Profiler) writeReport() error {
	if !p.report {
		return nil
	}

	rows := atomic.LoadUint64(&p.rowCount)
	var avgGPU float64
	if rows > 0 {
		avgGPU = p.gpuPowerSum / float64(rows)
	}

	report := NewRunReport(
		WithReportPid(p.pid),
		WithReportRows(rows),
		WithReportSamples(atomic.LoadUint64(&p.sampleCount)),
		WithReportLostSamples(atomic.LoadUint64(&p.lostCount)),
		WithReportUnresolvedAddrs(p.unresolved),
		WithReportEnergyTotalUJ(p.energyTotal),
		WithReportEnergyWraps(p.energyWraps),
		WithReportAvgGPUPowerW(avgGPU),
		WithReportDurationSeconds(time.Since(p.startedAt).Seconds()),
	)

	path := p.reportPath
	if path == "" {
		path = ReportFileName
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create report file %s", path)
	}
	defer f.Close()

	return report.WriteReport(f)
}
