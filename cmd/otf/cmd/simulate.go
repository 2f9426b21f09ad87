package cmd

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/boot"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/simulate"
	"github.com/spf13/cobra"
)

var (
	simDebugger      bool
	simPolicy        string
	simUnalignedTrap bool
	simDivideTrap    bool
	simNullGuard     uint32
	simProcessStack  bool
	simHandlersOff   bool
	simAux           int32
	simList          bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [fault]",
	Short: "Provoke a fault on the simulated target",
	Long: `Run the fault handler on a simulated STM32L4: commit a programming error,
capture and classify the fault, persist the core dump, apply the policy,
then reboot and report what the boot check finds.

Examples:
  # List the faults the simulator can provoke
  otf simulate --list

  # Null pointer write caught by the MPU null guard
  otf simulate null-write --mpu 256

  # Same fault with a debugger attached: the core halts instead of resetting
  otf simulate null-write --mpu 256 --debugger

  # Divide by zero with the trap enabled, fault handlers left disabled
  otf simulate divide-by-zero --div0-trap --no-handlers`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().BoolVar(&simList, "list", false, "list faults and exit")
	simulateCmd.Flags().BoolVar(&simDebugger, "debugger", false, "attach a debugger (sets DHCSR.C_DEBUGEN)")
	simulateCmd.Flags().StringVarP(&simPolicy, "policy", "p", "", "policy variant (default from config)")
	simulateCmd.Flags().BoolVar(&simUnalignedTrap, "unaligned-trap", false, "set CCR.UNALIGN_TRP")
	simulateCmd.Flags().BoolVar(&simDivideTrap, "div0-trap", false, "set CCR.DIV_0_TRP")
	simulateCmd.Flags().Uint32Var(&simNullGuard, "mpu", 0, "MPU null guard size in bytes (0 disables)")
	simulateCmd.Flags().BoolVar(&simProcessStack, "psp", false, "run thread code on the process stack")
	simulateCmd.Flags().BoolVar(&simHandlersOff, "no-handlers", false, "leave MemManage/BusFault/UsageFault disabled")
	simulateCmd.Flags().Int32Var(&simAux, "aux", 0, "auxiliary value recorded with the dump")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simList || len(args) == 0 {
		fmt.Println("Faults:")
		for _, f := range simulate.Faults() {
			fmt.Printf("  %-22s %s\n", f.Name, f.Description)
		}
		return nil
	}

	opts, err := simOptions()
	if err != nil {
		return err
	}
	if simPolicy != "" {
		opts.Policy = simPolicy
	}
	opts.Debugger = simDebugger
	opts.UnalignedTrap = simUnalignedTrap
	opts.DivideTrap = simDivideTrap
	opts.NullGuard = simNullGuard
	opts.ProcessStack = simProcessStack
	opts.HandlersOff = simHandlersOff
	opts.Aux = simAux

	fw, err := simulate.New(simLayout(), opts)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Printf("Dump region: %s\n", fw.Store.Region())
		fmt.Printf("Policy:      %s\n\n", opts.Policy)
	}

	res, err := fw.Run(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Fault: %s\n", res.Fault)
	if !res.Trapped {
		fmt.Println("The access completed without a fault.")
		return nil
	}

	out := res.Outcome
	fmt.Println()
	printStatus(out.Status)
	fmt.Println()
	fmt.Printf("Frame:     pc=0x%08X lr=0x%08X sp=0x%08X xpsr=0x%08X\n",
		out.Frame.ReturnAddress, out.Frame.LR, out.Frame.Address, out.Frame.XPSR)
	fmt.Printf("Decision:  %s\n", out.Decision)
	fmt.Printf("Pipeline:  %s\n", out.Trail)
	if res.Err != nil {
		fmt.Printf("Handler:   %v\n", res.Err)
	}

	switch {
	case res.Halted:
		fmt.Println("Target:    halted under the debugger")
	case res.LockedUp:
		fmt.Println("Target:    locked up (breakpoint with no debugger)")
	case res.Reset:
		fmt.Println("Target:    reset")
	default:
		fmt.Println("Target:    running")
	}

	fmt.Println("\nNext boot:")
	rep, err := fw.Boot(boot.Options{ClearAfterReport: cfg.ClearAfterReport, Logger: logger()})
	if err != nil {
		return err
	}
	if !rep.Found {
		fmt.Println("  no core dump found")
		return nil
	}
	return boot.Format(cmd.OutOrStdout(), rep.Record)
}
