package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maxgio92/wattprof/internal/settings"
	"github.com/maxgio92/wattprof/pkg/cmd/devices"
	"github.com/maxgio92/wattprof/pkg/cmd/profile"
)

const logLevelInfo = "info"

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   settings.CmdName,
		Short: fmt.Sprintf("%s is a low-overhead sampling power profiler", settings.CmdName),
		Long: fmt.Sprintf(`%s attaches to a running process and samples its call chains together
with CPU time, package energy and GPU power, producing a per-run stream
of folded stack rows for flame graph rendering and power attribution.
`, settings.CmdName),
		DisableAutoGenTag: true,
	}
	cmd.AddCommand(profile.NewCommand(o.CommonOptions))
	cmd.AddCommand(devices.NewCommand(o.CommonOptions))

	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", logLevelInfo, "Set the log level (trace, debug, info, warn, error, fatal, panic)")

	return cmd
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	go func() {
		<-ctx.Done()
		cancel()
	}()

	opts := NewOptions(
		WithContext(ctx),
		WithLogger(logger),
	)

	if err := NewCommand(opts).Execute(); err != nil {
		os.Exit(1)
	}
}
