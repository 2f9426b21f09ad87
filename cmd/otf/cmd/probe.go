package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/dap"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/idcode/deviceinfo"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Debug probe and target inspection",
}

var probeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected debug probes",
	Args:  cobra.NoArgs,
	RunE:  runProbeList,
}

var probeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Identify the target and show its live fault state",
	Long: `Connect to the target, identify the core and device, and decode the
fault status registers as they stand.

Examples:
  otf probe status --adapter cmsisdap
  otf probe status --sim-fault unaligned`,
	Args: cobra.NoArgs,
	RunE: runProbeStatus,
}

var probeResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the target",
	Args:  cobra.NoArgs,
	RunE:  runProbeReset,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.AddCommand(probeListCmd)
	probeCmd.AddCommand(probeStatusCmd)
	probeCmd.AddCommand(probeResetCmd)

	addAdapterFlags(probeStatusCmd)
	addAdapterFlags(probeResetCmd)
}

func runProbeList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	probes, err := dap.DiscoverProbes(ctx)
	if err != nil {
		return fmt.Errorf("probe discovery failed: %w", err)
	}

	fmt.Printf("Found %d probe(s):\n", len(probes))
	for i, p := range probes {
		fmt.Printf("  %d. %s\n", i+1, p.Label())
		if p.Kind == dap.ProbeKindCMSISDAP {
			fmt.Printf("     USB %04X:%04X", p.VendorID, p.ProductID)
			if p.Serial != "" {
				fmt.Printf(" serial %s", p.Serial)
			}
			fmt.Println()
		}
	}
	return nil
}

func runProbeStatus(cmd *cobra.Command, args []string) error {
	probe, err := openProbe()
	if err != nil {
		return err
	}
	defer probe.Close()

	info := probe.Info()
	dp := idcode.ParseIDCode(info.DPIDR)
	fmt.Printf("Probe:   %s\n", info)
	if info.SpeedHz > 0 {
		fmt.Printf("Clock:   %d Hz\n", info.SpeedHz)
	}
	fmt.Printf("DPIDR:   0x%08X", info.DPIDR)
	if m, ok := idcode.LookupManufacturer(dp.ManufacturerCode); ok {
		fmt.Printf(" (%s, version %d)", m.Name, dp.Version)
	}
	fmt.Println()
	if verbose {
		fmt.Printf("APIDR:   0x%08X\n", info.APIDR)
	}

	tgt, err := idcode.Identify(probe)
	if err != nil {
		return fmt.Errorf("failed to identify target: %w", err)
	}
	dev := deviceinfo.Describe(tgt)
	fmt.Printf("Core:    %s (%s)\n", tgt.Core, tgt.CPUID)
	fmt.Printf("Device:  %s", dev.Name)
	if dev.Known {
		fmt.Printf(" [DEV_ID 0x%03X rev 0x%04X]", tgt.DevID, tgt.RevID)
	}
	fmt.Println()
	if dev.RetainedRAMSize > 0 {
		fmt.Printf("Retained RAM: 0x%08X, %d KiB\n", dev.RetainedRAMOrigin, dev.RetainedRAMSize/1024)
	}
	if !tgt.CPUID.HasConfigurableFaults() {
		fmt.Println("Note: this core has no configurable fault status registers")
	}

	if dhcsr, err := probe.ReadWord(mmio.DHCSR); err == nil {
		fmt.Printf("Debug:   enabled=%v halted=%v\n",
			dhcsr&mmio.DHCSRDebugEn != 0, dhcsr&(mmio.DHCSRHalt|mmio.DHCSRSHalt) != 0)
	}

	dc, err := cfg.DecoderConfig()
	if err != nil {
		return err
	}
	dec, err := fault.NewDecoder(probe, dc)
	if err != nil {
		return err
	}
	st, err := dec.Decode()
	if err != nil {
		return fmt.Errorf("failed to read fault registers: %w", err)
	}
	fmt.Println("\nFault state:")
	printStatus(st)
	return nil
}

func runProbeReset(cmd *cobra.Command, args []string) error {
	probe, err := openProbe()
	if err != nil {
		return err
	}
	defer probe.Close()

	if err := probe.ResetTarget(); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	fmt.Println("Target reset.")
	return nil
}
