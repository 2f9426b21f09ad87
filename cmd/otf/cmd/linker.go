package cmd

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/linker"
	"github.com/spf13/cobra"
)

var linkerSection string

var linkerCmd = &cobra.Command{
	Use:   "linker",
	Short: "Linker script checks",
}

var linkerCheckCmd = &cobra.Command{
	Use:   "check [script]",
	Short: "Check that the core dump section survives reset",
	Long: `Parse a GNU ld linker script and check that the core dump section is
NOLOAD and lives in a memory region the startup code does not clear.

When the section is the first one in its region its address is known
without linking, and it is compared with the dump region in the config.

Examples:
  otf linker check STM32L476RGTX_FLASH.ld
  otf linker check --section .noinit firmware.ld`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLinkerCheck,
}

func init() {
	rootCmd.AddCommand(linkerCmd)
	linkerCmd.AddCommand(linkerCheckCmd)

	linkerCheckCmd.Flags().StringVarP(&linkerSection, "section", "s", "",
		"core dump section name (default from config)")
}

func runLinkerCheck(cmd *cobra.Command, args []string) error {
	path := cfg.LinkerScript
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no linker script given and none set in the config")
	}
	section := linkerSection
	if section == "" {
		section = cfg.DumpSection
	}

	script, err := linker.ParseFile(path)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("Memory regions in %s:\n", path)
		for _, r := range script.MemoryRegions() {
			fmt.Printf("  %-8s 0x%08X  %6d KiB\n", r.Name, r.Origin, r.Length/1024)
		}
		fmt.Println()
	}

	if err := script.VerifyNoInit(section); err != nil {
		fmt.Printf("FAIL  %s: %v\n", section, err)
		return fmt.Errorf("%s is not safe for a core dump", section)
	}
	sec, _ := script.Section(section)
	fmt.Printf("ok    %s is NOLOAD in %s, outside .bss\n", section, sec.Region)

	region, err := script.DumpRegion(section)
	switch {
	case errors.Is(err, linker.ErrAddressUnknown):
		fmt.Printf("note  %v\n", err)
		fmt.Printf("      check dump_region (%s) against the map file\n", cfg.DumpRegion())
		return nil
	case err != nil:
		return err
	}

	fmt.Printf("ok    %s at 0x%08X, up to %d bytes\n", section, region.Origin, region.Length)
	want := cfg.DumpRegion()
	if want.Origin != region.Origin {
		fmt.Printf("WARN  config dump_region starts at 0x%08X, linker places %s at 0x%08X\n",
			want.Origin, section, region.Origin)
	}
	return nil
}
