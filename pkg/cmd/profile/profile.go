package profile

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maxgio92/wattprof/pkg/cmd/options"
	"github.com/maxgio92/wattprof/pkg/healthcheck"
	"github.com/maxgio92/wattprof/pkg/profile"
)

const CmdName = "profile"

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Profile a running process by PID, correlating call chains with CPU time, energy and GPU power",
		Long: fmt.Sprintf(`
%s attaches to a running process and periodically drains the kernel call
chain samples, fusing each tick with the process CPU time delta, the
package energy delta and the instantaneous GPU power. Rows are appended
to a per-run CSV stream in the folded stack format.

It requires the privileges to open a perf event stream against an
arbitrary process and to read the platform energy counters.
`, CmdName),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	cmd.Flags().IntVar(&o.pid, "pid", -1, "PID of the target process")
	cmd.Flags().IntVar(&o.gpuCount, "gpu-count", 0, "Number of GPU devices to read power from")

	cmd.Flags().Uint64Var(&o.freq, "freq", 99, "Call chain sampling frequency in Hz")
	cmd.Flags().DurationVar(&o.tick, "tick", time.Second, "Row emission interval")
	cmd.Flags().IntVar(&o.pages, "pages", 0, "Sample buffer data pages (power of two, 0 for default)")
	cmd.Flags().BoolVar(&o.kernelStacks, "kernel-stacks", false, "Include kernel frames in call chains")
	cmd.Flags().BoolVar(&o.sourceLines, "lines", false, "Resolve source file and line (needs DWARF)")

	cmd.Flags().StringVarP(&o.output, "output", "o", "", "Result file path (default wattprof-<pid>.csv)")
	cmd.Flags().BoolVar(&o.report, "report", true, fmt.Sprintf("Generate report (as %s)", profile.ReportFileName))
	cmd.Flags().BoolVar(&o.status, "status", false, "Periodically print a status of the run")
	cmd.Flags().StringVar(&o.readySocket, "ready-socket", "", "Unix socket to signal readiness on, for the process lifecycle manager")

	cmd.MarkFlagRequired("pid")

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	logLevel, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		o.Logger.Fatal().Err(err).Msg("invalid log level")
	}
	o.Logger = o.Logger.Level(logLevel)

	profilerOpts := []profile.ProfilerOption{
		profile.WithProfilerPid(o.pid),
		profile.WithProfilerDeviceCount(o.gpuCount),
		profile.WithProfilerSampleFreq(o.freq),
		profile.WithProfilerTickPeriod(o.tick),
		profile.WithProfilerDataPages(o.pages),
		profile.WithProfilerKernelStacks(o.kernelStacks),
		profile.WithProfilerSourceLines(o.sourceLines),
		profile.WithProfilerOutputPath(o.output),
		profile.WithProfilerReport(o.report),
		profile.WithProfilerStatus(o.status),
		profile.WithProfilerLogger(o.Logger),
	}

	if o.readySocket != "" {
		ready := healthcheck.NewReadyServer(o.readySocket, o.Logger)
		if err := ready.Listen(o.Ctx); err != nil {
			return errors.Wrap(err, "failed to start readiness server")
		}
		defer ready.Shutdown()
		profilerOpts = append(profilerOpts, profile.WithProfilerReadyFunc(ready.NotifyReady))
	}

	profiler := profile.NewProfiler(profilerOpts...)

	if err := profiler.Init(o.Ctx); err != nil {
		return errors.Wrapf(err, "failed to init profiler")
	}
	if err := profiler.Run(o.Ctx); err != nil {
		return errors.Wrapf(err, "failed to run profiler")
	}

	return nil
}
