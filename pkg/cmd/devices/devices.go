package devices

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/maxgio92/wattprof/pkg/cmd/options"
	"github.com/maxgio92/wattprof/pkg/counters"
)

const CmdName = "devices"

type Options struct {
	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := new(Options)
	o.CommonOptions = opts

	cmd := &cobra.Command{
		Use:               CmdName,
		Short:             "List the GPU devices available for power readings",
		Long:              "devices enumerates the GPU devices the management layer can see, with their current power draw. Use it to size --gpu-count.",
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	devices, err := counters.EnumerateGPUs()
	if err != nil {
		return errors.Wrap(err, "failed to query devices")
	}

	if len(devices) == 0 {
		fmt.Println("no devices found")
		return nil
	}
	for _, d := range devices {
		fmt.Printf("%d\t%s\t%.2f W\n", d.Index, d.Name, d.PowerW)
	}

	return nil
}
