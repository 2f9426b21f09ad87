package target_test

import (
	"bytes"
	"log"
	"testing"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/boot"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/coredump"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/handler"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/policy"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/target"
)

type firmware struct {
	tg       *target.Target
	h        *handler.Handler
	store    *coredump.Store
	outcomes []handler.Outcome
	errs     []error
}

func flash(t *testing.T, variant string) *firmware {
	t.Helper()
	tg := target.New(target.DefaultLayout())
	bus := tg.Bus()

	dec, err := fault.NewDecoder(bus, fault.DefaultConfig())
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	store, err := coredump.NewStore(bus, tg.Layout().NoInit)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	engine, err := policy.New(variant, policy.DHCSRProbe{Bus: bus}, policy.Options{})
	if err != nil {
		t.Fatalf("policy.New: %v", err)
	}

	fw := &firmware{tg: tg, store: store}
	fw.h = &handler.Handler{
		Bus:      bus,
		RAM:      target.RAM(),
		Decoder:  dec,
		Store:    store,
		Engine:   engine,
		Actuator: policy.Actuator{Bus: bus, Breakpoint: tg.Breakpoint},
		Aux:      &handler.AuxCell{},
	}
	tg.SetFaultHandler(func(e capture.Entry) {
		out, err := fw.h.Handle(e)
		fw.outcomes = append(fw.outcomes, out)
		fw.errs = append(fw.errs, err)
	})
	return fw
}

func (fw *firmware) boot(t *testing.T) boot.Report {
	t.Helper()
	var buf bytes.Buffer
	r, err := boot.Check(fw.store, boot.Options{Logger: log.New(&buf, "", 0)})
	if err != nil {
		t.Fatalf("boot.Check: %v", err)
	}
	return r
}

func TestNullPointerWriteEndToEnd(t *testing.T) {
	fw := flash(t, "default")
	if r := fw.boot(t); r.Found {
		t.Fatalf("record present after power on: %+v", r.Record)
	}
	fw.tg.EnableNullGuard(0x100)
	fw.h.Aux.Set(3300)

	if _, trapped := fw.tg.Store32(0, 10); !trapped {
		t.Fatalf("null write did not trap")
	}
	if len(fw.outcomes) != 1 || fw.errs[0] != nil {
		t.Fatalf("outcomes = %d, err = %v", len(fw.outcomes), fw.errs)
	}
	out := fw.outcomes[0]
	if out.Frame.R0 != 0 {
		t.Fatalf("frame r0 = 0x%08X, want 0", out.Frame.R0)
	}
	if out.Status.Category != fault.CategoryProtection || out.Status.AddressString() != "0x00000000" {
		t.Fatalf("status = %s", out.Status)
	}
	if out.Decision != policy.Reset || out.State() != handler.StateReset {
		t.Fatalf("decision = %s, state = %s", out.Decision, out.State())
	}
	if fw.tg.Resets() != 1 {
		t.Fatalf("resets = %d, want 1", fw.tg.Resets())
	}

	r := fw.boot(t)
	if !r.Found {
		t.Fatalf("record lost across reset")
	}
	if r.Record != out.Record {
		t.Fatalf("boot record = %+v, want %+v", r.Record, out.Record)
	}
	if r.Record.R0 != 0 || r.Record.ReturnAddress != target.PCStore || r.Record.Aux != 3300 {
		t.Fatalf("boot record = %+v", r.Record)
	}
}

func TestUnalignedAccessEndToEnd(t *testing.T) {
	for _, offset := range []uint32{1, 2, 3} {
		fw := flash(t, "default")
		addr := uint32(0x20003000) + offset

		if _, trapped := fw.tg.Load32(addr); trapped {
			t.Fatalf("offset %d: trapped with UNALIGN_TRP clear", offset)
		}
		if len(fw.outcomes) != 0 {
			t.Fatalf("offset %d: handler ran", offset)
		}

		fw.tg.SetUnalignedTrap(true)
		if _, trapped := fw.tg.Load32(addr); !trapped {
			t.Fatalf("offset %d: completed with UNALIGN_TRP set", offset)
		}
		if got := fw.outcomes[0].Status.Category; got != fault.CategoryAccess {
			t.Fatalf("offset %d: category = %s, want %s", offset, got, fault.CategoryAccess)
		}
		if r := fw.boot(t); !r.Found || r.Record.Category != fault.CategoryAccess {
			t.Fatalf("offset %d: boot report = %+v", offset, r)
		}
	}
}

func TestDebuggerHaltsInsteadOfReset(t *testing.T) {
	fw := flash(t, "default")
	fw.tg.AttachDebugger(true)
	fw.tg.CallNull()

	out := fw.outcomes[0]
	if out.Decision != policy.Halt || !fw.tg.Halted() || fw.tg.Resets() != 0 {
		t.Fatalf("decision = %s halted = %v resets = %d", out.Decision, fw.tg.Halted(), fw.tg.Resets())
	}
	if out.Status.Category != fault.CategoryUndefinedInstruction {
		t.Fatalf("category = %s", out.Status.Category)
	}
	if r := fw.boot(t); !r.Found {
		t.Fatalf("record missing after halt")
	}
}

func TestRecordDoesNotSurvivePowerLoss(t *testing.T) {
	fw := flash(t, "default")
	fw.tg.SetDivideByZeroTrap(true)
	fw.tg.DivideByZero(1, 0)
	if r := fw.boot(t); !r.Found {
		t.Fatalf("record missing after warm reset")
	}
	fw.tg.PowerCycle()
	if r := fw.boot(t); r.Found {
		t.Fatalf("record survived power loss: %+v", r.Record)
	}
}

func TestDumpInsideBSSIsLost(t *testing.T) {
	layout := target.DefaultLayout()
	layout.NoInit = layout.BSS
	layout.NoInit.Name = ".CoreDump"
	layout.NoInit.Length = coredump.RecordSize

	tg := target.New(layout)
	store, err := coredump.NewStore(tg.Bus(), layout.NoInit)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Write(coredump.Record{Category: fault.CategoryEscalated}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	tg.Reset()
	if _, ok, _ := store.Read(); ok {
		t.Fatalf("record in .bss survived the startup clear")
	}
}
