package cmd

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/scenario"
	"github.com/spf13/cobra"
)

var (
	cfsrFlag, hfsrFlag, dfsrFlag, afsrFlag string
	mmfarFlag, bfarFlag                    string
	separateAlignment                      bool
	scenarioFile                           string
)

var decodeCmd = &cobra.Command{
	Use:   "decode [scenario...]",
	Short: "Decode fault status registers",
	Long: `Classify a fault from raw SCB register values, or from the named
scenarios in a scenario file.

Register values accept decimal, 0x hex and 0b binary.

Examples:
  # Precise bus error at 0x60000000
  otf decode --cfsr 0x00008200 --bfar 0x60000000

  # MPU violation escalated to HardFault
  otf decode --cfsr 0x82 --hfsr 0x40000000 --mmfar 0

  # Check every scenario in a file against its expectation
  otf decode --scenario faults.scn

  # Decode one scenario
  otf decode --scenario faults.scn null-write`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().StringVar(&cfsrFlag, "cfsr", "", "CFSR value")
	decodeCmd.Flags().StringVar(&hfsrFlag, "hfsr", "", "HFSR value")
	decodeCmd.Flags().StringVar(&dfsrFlag, "dfsr", "", "DFSR value")
	decodeCmd.Flags().StringVar(&afsrFlag, "afsr", "", "AFSR value")
	decodeCmd.Flags().StringVar(&mmfarFlag, "mmfar", "", "MMFAR value")
	decodeCmd.Flags().StringVar(&bfarFlag, "bfar", "", "BFAR value")
	decodeCmd.Flags().BoolVar(&separateAlignment, "separate-alignment", false,
		"report UNALIGNED as AlignmentFault (overrides config)")
	decodeCmd.Flags().StringVarP(&scenarioFile, "scenario", "s", "",
		"scenario file to decode")
}

func decoderConfig(cmd *cobra.Command) (fault.Config, error) {
	dc, err := cfg.DecoderConfig()
	if err != nil {
		return fault.Config{}, err
	}
	if cmd.Flags().Changed("separate-alignment") {
		dc.SeparateAlignment = separateAlignment
	}
	return dc, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	dc, err := decoderConfig(cmd)
	if err != nil {
		return err
	}
	if scenarioFile != "" {
		return decodeScenarios(dc, args)
	}
	if len(args) > 0 {
		return fmt.Errorf("scenario names given without --scenario")
	}

	var regs fault.Registers
	for _, f := range []struct {
		name string
		val  string
		dst  *uint32
	}{
		{"cfsr", cfsrFlag, &regs.CFSR},
		{"hfsr", hfsrFlag, &regs.HFSR},
		{"dfsr", dfsrFlag, &regs.DFSR},
		{"afsr", afsrFlag, &regs.AFSR},
		{"mmfar", mmfarFlag, &regs.MMFAR},
		{"bfar", bfarFlag, &regs.BFAR},
	} {
		v, err := parseWord(f.name, f.val)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	printStatus(fault.DecodeRegisters(regs, dc))
	return nil
}

func decodeScenarios(dc fault.Config, names []string) error {
	list, err := scenario.LoadFile(scenarioFile)
	if err != nil {
		return err
	}
	logger().Printf("loaded %d scenario(s) from %s", len(list), scenarioFile)

	if len(names) > 0 {
		for _, name := range names {
			s, ok := scenario.Find(list, name)
			if !ok {
				return fmt.Errorf("scenario %q not found in %s", name, scenarioFile)
			}
			fmt.Printf("Scenario %s\n", s.Name)
			printStatus(s.Decode(dc))
			fmt.Println()
		}
		return nil
	}

	failed := 0
	for i := range list {
		s := &list[i]
		st := s.Decode(dc)
		if err := s.Check(dc); err != nil {
			failed++
			fmt.Printf("FAIL  %-24s %v\n", s.Name, err)
			continue
		}
		fmt.Printf("ok    %-24s %s addr=%s\n", s.Name, st.Category, st.AddressString())
	}
	fmt.Printf("\n%d scenario(s), %d failed\n", len(list), failed)
	if failed > 0 {
		return fmt.Errorf("%d scenario(s) did not decode as expected", failed)
	}
	return nil
}

func printStatus(st fault.Status) {
	fmt.Printf("Category:  %s\n", st.Category)
	fmt.Printf("Address:   %s\n", st.AddressString())
	if reasons := st.Reasons(); len(reasons) > 0 {
		fmt.Printf("Status:    %s\n", strings.Join(reasons, " "))
	}
	var flags []string
	if st.Forced {
		flags = append(flags, "escalated to HardFault")
	}
	if st.VectorTable {
		flags = append(flags, "vector table read failed")
	}
	if st.DebugEvent {
		flags = append(flags, "debug event")
	}
	if len(flags) > 0 {
		fmt.Printf("HardFault: %s\n", strings.Join(flags, ", "))
	}
	if verbose {
		r := st.Raw
		fmt.Printf("\nRegisters:\n")
		fmt.Printf("  CFSR:  0x%08X (MMFSR 0x%02X BFSR 0x%02X UFSR 0x%04X)\n", r.CFSR, r.MMFSR(), r.BFSR(), r.UFSR())
		fmt.Printf("  HFSR:  0x%08X\n", r.HFSR)
		fmt.Printf("  DFSR:  0x%08X\n", r.DFSR)
		fmt.Printf("  AFSR:  0x%08X\n", r.AFSR)
		fmt.Printf("  MMFAR: 0x%08X\n", r.MMFAR)
		fmt.Printf("  BFAR:  0x%08X\n", r.BFAR)
	}
}
