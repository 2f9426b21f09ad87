package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "otf",
	Short: "Cortex-M fault diagnostics",
	Long: `Decode, capture and report Cortex-M hard faults.

otf decodes the System Control Block fault registers, reads the core dump
the fault handler leaves in no-init RAM, checks that the linker script keeps
that RAM out of the startup clear, and runs the whole pipeline on a
simulated STM32L4 target.

Examples:
  otf decode --cfsr 0x00008200 --bfar 0x60000000   # Decode raw registers
  otf simulate null-write --mpu 256                # Provoke a fault on the simulator
  otf dump read --adapter cmsisdap                 # Read the dump over SWD
  otf linker check STM32L476RGTX_FLASH.ld          # Check the .CoreDump section
  otf probe list                                   # List debug probes`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c
		if verbose && cfg.Path != "" {
			logger().Printf("config: %s", cfg.Path)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default ./"+config.FileName+" or the per-user config)")
}

// logger writes to stderr with -v and discards otherwise.
func logger() *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "otf: ", 0)
}

// parseWord parses a register value given in decimal, 0x hex or 0b binary.
func parseWord(flag, s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", flag, s, err)
	}
	return uint32(v), nil
}
