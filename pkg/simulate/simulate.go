// Package simulate runs the fault pipeline on the simulated target: a fault is
// provoked, captured, classified, persisted and acted on, and the next boot
// reports what it finds in the dump region.
package simulate

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/boot"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/coredump"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/handler"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/policy"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/target"
)

// Options is the firmware configuration applied at every boot.
type Options struct {
	Policy        string
	Debugger      bool
	UnalignedTrap bool
	DivideTrap    bool
	NullGuard     uint32 // bytes from address zero the MPU blocks, 0 for none
	ProcessStack  bool
	HandlersOff   bool // leave the SHCSR enables clear so every fault escalates
	Decoder       fault.Config
	Aux           int32
	Recoverable   policy.RecoverFunc
	// RAM bounds the stacked frame capture will read; target.RAM() when empty.
	RAM []mmio.Region
}

// Firmware is the simulated target with the fault handler installed.
type Firmware struct {
	Target  *target.Target
	Handler *handler.Handler
	Store   *coredump.Store

	opts     Options
	outcomes []handler.Outcome
	errs     []error
}

// Result is what happened when a fault was provoked.
type Result struct {
	Fault    string
	Trapped  bool
	Handled  bool
	Outcome  handler.Outcome
	Err      error
	Halted   bool
	LockedUp bool
	Reset    bool
}

// New flashes the fault handler onto a fresh target and boots it.
func New(layout target.Layout, opts Options) (*Firmware, error) {
	if opts.Decoder.Priority == nil {
		opts.Decoder.Priority = fault.DefaultPriority()
	}
	if len(opts.RAM) == 0 {
		opts.RAM = target.RAM()
	}

	tg := target.New(layout)
	bus := tg.Bus()

	dec, err := fault.NewDecoder(bus, opts.Decoder)
	if err != nil {
		return nil, err
	}
	store, err := coredump.NewStore(bus, layout.NoInit)
	if err != nil {
		return nil, err
	}
	engine, err := policy.New(opts.Policy, policy.DHCSRProbe{Bus: bus}, policy.Options{Recoverable: opts.Recoverable})
	if err != nil {
		return nil, err
	}

	fw := &Firmware{Target: tg, Store: store, opts: opts}
	fw.Handler = &handler.Handler{
		Bus:      bus,
		RAM:      opts.RAM,
		Decoder:  dec,
		Store:    store,
		Engine:   engine,
		Actuator: policy.Actuator{Bus: bus, Breakpoint: tg.Breakpoint},
		Aux:      &handler.AuxCell{},
	}
	tg.SetFaultHandler(func(e capture.Entry) {
		out, err := fw.Handler.Handle(e)
		fw.outcomes = append(fw.outcomes, out)
		fw.errs = append(fw.errs, err)
	})
	fw.startup()
	return fw, nil
}

// startup is what the reset handler does before main: fault traps, MPU and
// stack selection are lost on reset and set up again.
func (fw *Firmware) startup() {
	tg, o := fw.Target, fw.opts
	tg.AttachDebugger(o.Debugger)
	tg.EnableFaultHandlers(!o.HandlersOff)
	tg.SetUnalignedTrap(o.UnalignedTrap)
	tg.SetDivideByZeroTrap(o.DivideTrap)
	if o.NullGuard > 0 {
		tg.EnableNullGuard(o.NullGuard)
	}
	tg.UseProcessStack(o.ProcessStack)
	fw.Handler.Aux.Set(o.Aux)
}

// Run provokes the named fault.
func (fw *Firmware) Run(name string) (Result, error) {
	f, ok := Lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("simulate: unknown fault %q (have %s)", name, strings.Join(Names(), ", "))
	}

	before := fw.Target.Resets()
	handled := len(fw.outcomes)

	res := Result{Fault: f.Name, Trapped: f.run(fw.Target)}
	if len(fw.outcomes) > handled {
		res.Handled = true
		res.Outcome = fw.outcomes[handled]
		res.Err = fw.errs[handled]
	}
	res.Halted = fw.Target.Halted()
	res.LockedUp = fw.Target.LockedUp()
	res.Reset = fw.Target.Resets() > before
	return res, nil
}

// Boot runs the startup code and the boot-time dump check.
func (fw *Firmware) Boot(opts boot.Options) (boot.Report, error) {
	fw.startup()
	return boot.Check(fw.Store, opts)
}
