package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/simulate"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/target"
	"github.com/spf13/cobra"
)

var (
	adapterType   string
	adapterSpeed  int
	adapterSerial string
	simFault      string
)

// addAdapterFlags registers the probe selection flags on commands that talk
// to a target.
func addAdapterFlags(c *cobra.Command) {
	c.Flags().StringVarP(&adapterType, "adapter", "a", "simulator",
		"probe type (simulator, cmsisdap)")
	c.Flags().IntVar(&adapterSpeed, "speed", 0,
		"SWD clock in Hz (default from config)")
	c.Flags().StringVarP(&adapterSerial, "serial", "s", "",
		"probe serial number (if multiple probes, default from config)")
	c.Flags().StringVar(&simFault, "sim-fault", "",
		"simulator: fault to provoke before connecting (see 'otf simulate --list')")
}

// simLayout is the reference layout with the dump region from the config.
func simLayout() target.Layout {
	layout := target.DefaultLayout()
	layout.NoInit = cfg.DumpRegion()
	return layout
}

// simOptions builds firmware options from the config.
func simOptions() (simulate.Options, error) {
	dec, err := cfg.DecoderConfig()
	if err != nil {
		return simulate.Options{}, err
	}
	return simulate.Options{Policy: cfg.Policy, Decoder: dec, RAM: cfg.RAMRegions()}, nil
}

// openProbe connects to the target through the selected probe.
func openProbe() (dap.Probe, error) {
	switch adapterType {
	case "simulator", "sim":
		opts, err := simOptions()
		if err != nil {
			return nil, err
		}
		fw, err := simulate.New(simLayout(), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create simulator: %w", err)
		}
		if simFault != "" {
			res, err := fw.Run(simFault)
			if err != nil {
				return nil, err
			}
			logger().Printf("simulator: %s trapped=%v reset=%v", res.Fault, res.Trapped, res.Reset)
		}
		if verbose {
			fmt.Println("Using simulator probe")
		}
		p := dap.NewSimProbe(fw.Target.Bus())
		p.OnReset = func() error {
			fw.Target.Reset()
			return nil
		}
		return p, nil

	case "cmsisdap", "cmsis-dap":
		speed := adapterSpeed
		if speed == 0 {
			speed = cfg.Probe.SpeedHz
		}
		sel := cfg.Probe.Selector()
		if adapterSerial != "" {
			sel.Serial = adapterSerial
		}
		if verbose {
			fmt.Printf("Opening CMSIS-DAP probe %s at %d Hz...\n", sel, speed)
		}
		p, err := dap.NewCMSISDAPProbe(sel, speed)
		if err != nil {
			return nil, fmt.Errorf("failed to open probe: %w", err)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown adapter type: %s (use simulator or cmsisdap)", adapterType)
	}
}
