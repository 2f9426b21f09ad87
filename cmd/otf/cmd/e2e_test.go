package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	scenarioTestdata = "../../../pkg/scenario/testdata/faults.scn"
	linkerTestdata   = "../../../pkg/linker/testdata/STM32L476RGTX_FLASH.ld"
)

// writeConfig saves the defaults to a temp dir so the user's own config
// never leaks into the tests.
func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.FileName)
	if err := config.Default().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return path
}

// resetFlags puts every flag back to its default between runs.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	// Read in background to prevent pipe buffer from blocking on Windows
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		buf.ReadFrom(r)
		close(done)
	}()

	resetFlags(rootCmd)
	cfg = nil
	rootCmd.SetArgs(append([]string{"--config", writeConfig(t)}, args...))

	err := rootCmd.Execute()

	// Restore stdout and wait for reader
	w.Close()
	os.Stdout = old
	<-done

	return buf.String(), err
}

type e2eCase struct {
	name        string
	args        []string
	wantErr     bool
	wantContain []string
	wantMissing []string
}

func runCases(t *testing.T, tests []e2eCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(t, tt.args...)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none\nOutput: %s", output)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v\nOutput: %s", err, output)
				return
			}

			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing %q\nGot: %s", want, output)
				}
			}
			for _, bad := range tt.wantMissing {
				if strings.Contains(output, bad) {
					t.Errorf("Output contains %q\nGot: %s", bad, output)
				}
			}
		})
	}
}

// TestDecodeE2E tests the decode command end-to-end
func TestDecodeE2E(t *testing.T) {
	runCases(t, []e2eCase{
		{
			name:        "precise bus error",
			args:        []string{"decode", "--cfsr", "0x00008200", "--bfar", "0x60000000"},
			wantContain: []string{"AccessFault", "0x60000000", "PRECISERR BFARVALID"},
		},
		{
			name:        "escalated mpu violation",
			args:        []string{"decode", "--cfsr", "0x82", "--hfsr", "0x40000000", "--mmfar", "0"},
			wantContain: []string{"ProtectionFault", "0x00000000", "escalated to HardFault"},
		},
		{
			name:        "no fault",
			args:        []string{"decode"},
			wantContain: []string{"NoFault", "n/a"},
		},
		{
			name:        "unaligned as access",
			args:        []string{"decode", "--cfsr", "0x01000000"},
			wantContain: []string{"AccessFault", "UNALIGNED"},
		},
		{
			name:        "unaligned separated",
			args:        []string{"decode", "--cfsr", "0x01000000", "--separate-alignment"},
			wantContain: []string{"AlignmentFault"},
		},
		{
			name:        "all scenarios",
			args:        []string{"decode", "--scenario", scenarioTestdata},
			wantContain: []string{"ok    null-write", "9 scenario(s), 0 failed"},
			wantMissing: []string{"FAIL"},
		},
		{
			name:        "one scenario",
			args:        []string{"decode", "--scenario", scenarioTestdata, "imprecise-bus-error"},
			wantContain: []string{"Scenario imprecise-bus-error", "AccessFault", "IMPRECISERR", "n/a"},
		},
		{
			name:    "unknown scenario",
			args:    []string{"decode", "--scenario", scenarioTestdata, "stack-overflow"},
			wantErr: true,
		},
		{
			name:    "names without file",
			args:    []string{"decode", "null-write"},
			wantErr: true,
		},
		{
			name:    "bad register value",
			args:    []string{"decode", "--cfsr", "zz"},
			wantErr: true,
		},
	})
}

// TestSimulateE2E tests the simulate command end-to-end
func TestSimulateE2E(t *testing.T) {
	runCases(t, []e2eCase{
		{
			name:        "list",
			args:        []string{"simulate", "--list"},
			wantContain: []string{"null-write", "divide-by-zero", "use-after-free"},
		},
		{
			name: "null write with guard",
			args: []string{"simulate", "null-write", "--mpu", "256", "--aux", "3300"},
			wantContain: []string{
				"Fault: null-write",
				"ProtectionFault",
				"DACCVIOL MMARVALID",
				"Decision:  Reset",
				"Target:    reset",
				"Core dump",
				"aux:            3300",
			},
		},
		{
			name:        "null write without guard",
			args:        []string{"simulate", "null-write"},
			wantContain: []string{"completed without a fault"},
		},
		{
			name:        "debugger halts",
			args:        []string{"simulate", "null-write", "--mpu", "256", "--debugger"},
			wantContain: []string{"Decision:  Halt", "halted under the debugger", "Core dump"},
		},
		{
			name:        "halt policy locks up",
			args:        []string{"simulate", "bus-error", "--policy", "halt"},
			wantContain: []string{"AccessFault", "locked up"},
		},
		{
			name:        "handlers disabled",
			args:        []string{"simulate", "divide-by-zero", "--div0-trap", "--no-handlers"},
			wantContain: []string{"UndefinedInstructionFault", "DIVBYZERO FORCED", "escalated to HardFault"},
		},
		{
			name:    "unknown fault",
			args:    []string{"simulate", "stack-overflow"},
			wantErr: true,
		},
		{
			name:    "unknown policy",
			args:    []string{"simulate", "bus-error", "--policy", "panic"},
			wantErr: true,
		},
	})
}

// TestDumpE2E reads a dump from the simulator, saves it and decodes the file.
func TestDumpE2E(t *testing.T) {
	out := filepath.Join(t.TempDir(), "fault.bin")

	output, err := execute(t, "dump", "read", "--sim-fault", "bus-error", "--out", out)
	if err != nil {
		t.Fatalf("dump read: %v\nOutput: %s", err, output)
	}
	for _, want := range []string{"cause:          AccessFault", "Saved 36 bytes"} {
		if !strings.Contains(output, want) {
			t.Fatalf("dump read output missing %q\nGot: %s", want, output)
		}
	}

	output, err = execute(t, "dump", "decode", out)
	if err != nil {
		t.Fatalf("dump decode: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "cause:          AccessFault") {
		t.Fatalf("dump decode output: %s", output)
	}

	output, err = execute(t, "dump", "read", "--file", out)
	if err != nil || !strings.Contains(output, "cause:          AccessFault") {
		t.Fatalf("dump read --file: err = %v\nOutput: %s", err, output)
	}

	if err := os.WriteFile(out, make([]byte, 36), 0o644); err != nil {
		t.Fatal(err)
	}
	output, err = execute(t, "dump", "decode", out)
	if err != nil || !strings.Contains(output, "holds no core dump") {
		t.Fatalf("blank dump: err = %v\nOutput: %s", err, output)
	}

	runCases(t, []e2eCase{
		{
			name:        "no fault",
			args:        []string{"dump", "read"},
			wantContain: []string{"No core dump found."},
		},
		{
			name:        "read and clear",
			args:        []string{"dump", "read", "--sim-fault", "execute-data", "--clear"},
			wantContain: []string{"UndefinedInstructionFault", "Core dump cleared."},
		},
		{
			name:        "clear",
			args:        []string{"dump", "clear"},
			wantContain: []string{"0x10000000 cleared"},
		},
		{
			name:    "unknown adapter",
			args:    []string{"dump", "read", "--adapter", "stlink"},
			wantErr: true,
		},
		{
			name:    "missing file",
			args:    []string{"dump", "decode", filepath.Join(t.TempDir(), "absent.bin")},
			wantErr: true,
		},
	})
}

// TestProbeE2E tests probe status and reset on the simulator
func TestProbeE2E(t *testing.T) {
	runCases(t, []e2eCase{
		{
			name: "status",
			args: []string{"probe", "status"},
			wantContain: []string{
				"Probe:   Simulator",
				"0x2BA01477",
				"Cortex-M4",
				"STM32L47x/L48x",
				"Retained RAM: 0x10000000, 32 KiB",
				"NoFault",
			},
		},
		{
			name:        "status after fault reset",
			args:        []string{"probe", "status", "--sim-fault", "null-call"},
			wantContain: []string{"Fault state:", "NoFault"},
		},
		{
			name:        "reset",
			args:        []string{"probe", "reset"},
			wantContain: []string{"Target reset."},
		},
	})
}

// TestLinkerE2E tests the linker check command end-to-end
func TestLinkerE2E(t *testing.T) {
	runCases(t, []e2eCase{
		{
			name: "core dump section",
			args: []string{"linker", "check", linkerTestdata},
			wantContain: []string{
				"ok    .CoreDump is NOLOAD in RAM2",
				"ok    .CoreDump at 0x10000000",
			},
			wantMissing: []string{"WARN"},
		},
		{
			name:    "loaded section",
			args:    []string{"linker", "check", linkerTestdata, "--section", ".data"},
			wantErr: true,
		},
		{
			name:    "missing section",
			args:    []string{"linker", "check", linkerTestdata, "--section", ".noinit"},
			wantErr: true,
		},
		{
			name:    "no script",
			args:    []string{"linker", "check"},
			wantErr: true,
		},
	})
}

// TestConfigE2E tests config show and init
func TestConfigE2E(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.json")
	runCases(t, []e2eCase{
		{
			name:        "show",
			args:        []string{"config", "show"},
			wantContain: []string{`"dump_region"`, `"0x10000000"`, `"policy": "default"`},
		},
		{
			name:        "init",
			args:        []string{"config", "init", path},
			wantContain: []string{"Wrote " + path},
		},
		{
			name:    "init refuses to overwrite",
			args:    []string{"config", "init", path},
			wantErr: true,
		},
		{
			name:        "init force",
			args:        []string{"config", "init", path, "--force"},
			wantContain: []string{"Wrote " + path},
		},
	})

	if _, err := config.Load(path); err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
}

// TestHelpExamplesParse checks that every example in the help text names a
// real command and passes flags it accepts.
func TestHelpExamplesParse(t *testing.T) {
	var examples []string
	var collect func(c *cobra.Command)
	collect = func(c *cobra.Command) {
		for _, line := range strings.Split(c.Long, "\n") {
			if !strings.HasPrefix(line, "  otf ") {
				continue
			}
			line = strings.TrimSpace(line)
			if i := strings.Index(line, "#"); i >= 0 {
				line = strings.TrimSpace(line[:i])
			}
			examples = append(examples, line)
		}
		for _, sub := range c.Commands() {
			collect(sub)
		}
	}
	collect(rootCmd)
	if len(examples) == 0 {
		t.Fatalf("no examples found in help text")
	}
	defer resetFlags(rootCmd)

	for _, ex := range examples {
		t.Run(ex, func(t *testing.T) {
			resetFlags(rootCmd)
			c, rest, err := rootCmd.Find(strings.Fields(ex)[1:])
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if c == rootCmd {
				t.Fatalf("example names no subcommand")
			}
			if err := c.ParseFlags(rest); err != nil {
				t.Fatalf("ParseFlags(%v): %v", rest, err)
			}
		})
	}
}
