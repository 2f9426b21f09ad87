package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/boot"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/coredump"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
	"github.com/spf13/cobra"
)

var (
	dumpOut   string
	dumpClear bool
	dumpFile  string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Read, save and decode core dumps",
	Long: `Work with the core dump record the fault handler leaves in no-init RAM.

The record is read from the dump region in the config (default the start of
SRAM2), through a debug probe or from a saved file.`,
}

var dumpReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Read the core dump from the target",
	Long: `Read the core dump record from the target's dump region.

Examples:
  # Read over SWD with a CMSIS-DAP probe
  otf dump read --adapter cmsisdap

  # Save the raw record and clear it so the next fault starts fresh
  otf dump read --adapter cmsisdap --out fault.bin --clear

  # Read a dump region image saved by another tool
  otf dump read --file sram2.bin

  # Try it on the simulator
  otf dump read --sim-fault bus-error`,
	Args: cobra.NoArgs,
	RunE: runDumpRead,
}

var dumpClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Invalidate the core dump on the target",
	Args:  cobra.NoArgs,
	RunE:  runDumpClear,
}

var dumpDecodeCmd = &cobra.Command{
	Use:   "decode <file>",
	Short: "Decode a saved core dump file",
	Long: `Decode a raw core dump record saved with 'otf dump read --out'.

The byte order comes from the config (byte_order, default little).`,
	Args: cobra.ExactArgs(1),
	RunE: runDumpDecode,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.AddCommand(dumpReadCmd)
	dumpCmd.AddCommand(dumpClearCmd)
	dumpCmd.AddCommand(dumpDecodeCmd)

	addAdapterFlags(dumpReadCmd)
	addAdapterFlags(dumpClearCmd)
	dumpReadCmd.Flags().StringVarP(&dumpOut, "out", "o", "", "save the raw record to a file")
	dumpReadCmd.Flags().BoolVar(&dumpClear, "clear", false, "invalidate the record after reading it")
	dumpReadCmd.Flags().StringVarP(&dumpFile, "file", "f", "", "read from a dump region image instead of a probe")
}

func runDumpRead(cmd *cobra.Command, args []string) error {
	var bus mmio.Bus
	if dumpFile != "" {
		img, err := loadImage(dumpFile)
		if err != nil {
			return err
		}
		bus = img
	} else {
		probe, err := openProbe()
		if err != nil {
			return err
		}
		defer probe.Close()
		if verbose {
			fmt.Printf("Probe: %s\n", probe.Info())
		}
		bus = probe
	}
	if verbose {
		fmt.Printf("Dump region: %s\n\n", cfg.DumpRegion())
	}

	store, err := coredump.NewStore(bus, cfg.DumpRegion())
	if err != nil {
		return err
	}
	rec, ok, err := store.Read()
	if err != nil {
		return fmt.Errorf("failed to read core dump: %w", err)
	}
	if !ok {
		fmt.Println("No core dump found.")
		return nil
	}

	if err := boot.Format(os.Stdout, rec); err != nil {
		return err
	}

	if dumpOut != "" {
		raw, err := store.Raw(cfg.ByteOrder())
		if err != nil {
			return err
		}
		if err := os.WriteFile(dumpOut, raw, 0o644); err != nil {
			return fmt.Errorf("failed to save core dump: %w", err)
		}
		fmt.Printf("\nSaved %d bytes to %s\n", len(raw), dumpOut)
	}

	if dumpClear {
		if err := store.Invalidate(); err != nil {
			return err
		}
		fmt.Println("Core dump cleared.")
	}
	return nil
}

// loadImage maps a dump region image at the configured origin.
func loadImage(path string) (*mmio.SimBus, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	region := cfg.DumpRegion()
	if uint64(len(b)) > uint64(region.Length) {
		return nil, fmt.Errorf("%s: %d bytes does not fit in %s", path, len(b), region)
	}
	if len(b)%mmio.WordSize != 0 {
		return nil, fmt.Errorf("%s: %d bytes is not a whole number of words", path, len(b))
	}
	logger().Printf("%s: %d bytes at 0x%08X", path, len(b), region.Origin)

	order := cfg.ByteOrder()
	bus := mmio.NewSimBus()
	for off := 0; off < len(b); off += mmio.WordSize {
		bus.Poke(region.Origin+uint32(off), order.Uint32(b[off:]))
	}
	return bus, nil
}

func runDumpClear(cmd *cobra.Command, args []string) error {
	probe, err := openProbe()
	if err != nil {
		return err
	}
	defer probe.Close()

	store, err := coredump.NewStore(probe, cfg.DumpRegion())
	if err != nil {
		return err
	}
	if err := store.Invalidate(); err != nil {
		return err
	}
	fmt.Printf("Core dump at 0x%08X cleared.\n", store.Region().Origin)
	return nil
}

func runDumpDecode(cmd *cobra.Command, args []string) error {
	b, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	logger().Printf("%s: %d bytes", args[0], len(b))

	rec, err := coredump.Decode(b, cfg.ByteOrder())
	if errors.Is(err, coredump.ErrNoRecord) {
		fmt.Printf("%s holds no core dump (%v)\n", args[0], err)
		return nil
	}
	if err != nil {
		return err
	}
	return boot.Format(os.Stdout, rec)
}
