package policy

import (
	"testing"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

var allCategories = []fault.Category{
	fault.CategoryAlignment,
	fault.CategoryAccess,
	fault.CategoryUndefinedInstruction,
	fault.CategoryProtection,
	fault.CategoryEscalated,
}

func TestDefaultNeverContinuesWithoutDebugger(t *testing.T) {
	e, err := New("default", StaticProbe(false), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, c := range allCategories {
		if got := e.Decide(fault.Status{Category: c}); got != Reset {
			t.Fatalf("%s: decision = %s, want %s", c, got, Reset)
		}
	}
}

func TestDebuggerAttachedHalts(t *testing.T) {
	for _, name := range Variants() {
		e, err := New(name, StaticProbe(true), Options{Recoverable: func(fault.Status) bool { return true }})
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		for _, c := range allCategories {
			if got := e.Decide(fault.Status{Category: c}); got != Halt {
				t.Fatalf("%s/%s: decision = %s, want %s", name, c, got, Halt)
			}
		}
	}
}

func TestRecoverableVariant(t *testing.T) {
	skip := func(s fault.Status) bool { return s.Raw.CFSR&fault.DACCVIOL != 0 }
	e, err := New("recoverable", StaticProbe(false), Options{Recoverable: skip})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []struct {
		status fault.Status
		want   Decision
	}{
		{fault.Status{Category: fault.CategoryProtection, Raw: fault.Registers{CFSR: fault.DACCVIOL}}, Continue},
		{fault.Status{Category: fault.CategoryProtection, Raw: fault.Registers{CFSR: fault.IACCVIOL}}, Reset},
		{fault.Status{Category: fault.CategoryAccess, Raw: fault.Registers{CFSR: fault.DACCVIOL}}, Reset},
		{fault.Status{Category: fault.CategoryEscalated}, Reset},
	}
	for i, tc := range cases {
		if got := e.Decide(tc.status); got != tc.want {
			t.Fatalf("case %d (%s): decision = %s, want %s", i, tc.status.Category, got, tc.want)
		}
	}

	noCallback, err := New("recoverable", StaticProbe(false), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, c := range allCategories {
		if got := noCallback.Decide(fault.Status{Category: c}); got != Reset {
			t.Fatalf("no callback %s: decision = %s, want %s", c, got, Reset)
		}
	}
}

func TestNewUnknownVariant(t *testing.T) {
	if _, err := New("retry-forever", StaticProbe(false), Options{}); err == nil {
		t.Fatalf("New accepted an unknown variant")
	}
	if _, err := New("", nil, Options{}); err != nil {
		t.Fatalf("empty name: %v", err)
	}
}

func TestDHCSRProbe(t *testing.T) {
	bus := mmio.NewSimBus()
	p := DHCSRProbe{Bus: bus}
	if p.Attached() {
		t.Fatalf("attached with DHCSR clear")
	}
	bus.Poke(mmio.DHCSR, mmio.DHCSRDebugEn)
	if !p.Attached() {
		t.Fatalf("detached with C_DEBUGEN set")
	}
	bus.AddFaultRegion(mmio.Region{Name: "debug", Origin: mmio.DHCSR, Length: 4})
	if p.Attached() {
		t.Fatalf("attached after DHCSR read error")
	}
}

func TestActuator(t *testing.T) {
	bus := mmio.NewSimBus()
	var resets, breaks int
	bus.OnWrite(mmio.AIRCR, func(addr, v uint32) error {
		if v&mmio.AIRCRVectKeyMask == mmio.AIRCRVectKey && v&mmio.AIRCRSysResetReq != 0 {
			resets++
		}
		return nil
	})
	a := Actuator{Bus: bus, Breakpoint: func() { breaks++ }}
	regs := fault.Registers{CFSR: fault.UNDEFINSTR, HFSR: fault.FORCED}
	frame := capture.Frame{Address: 0x2000FF00, ReturnAddress: 0x08000420}

	if err := a.Apply(Halt, regs, frame); err != nil || breaks != 1 {
		t.Fatalf("Halt: err=%v breaks=%d", err, breaks)
	}
	if err := a.Apply(Reset, regs, frame); err != nil || resets != 1 {
		t.Fatalf("Reset: err=%v resets=%d", err, resets)
	}

	bus.ResetLog()
	if err := a.Apply(Continue, regs, frame); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	writes := map[uint32]uint32{}
	for _, acc := range bus.Accesses() {
		if acc.Kind == mmio.AccessWrite {
			writes[acc.Addr] = acc.Value
		}
	}
	if writes[mmio.CFSR] != regs.CFSR || writes[mmio.HFSR] != regs.HFSR {
		t.Fatalf("Continue writes = %v, want CFSR/HFSR cleared", writes)
	}
	if got := writes[frame.Address+capture.ReturnAddressOffset]; got != 0x08000422 {
		t.Fatalf("stacked return address = 0x%08X, want 0x08000422", got)
	}
	if err := a.Apply(Decision(9), regs, frame); err == nil {
		t.Fatalf("unknown decision accepted")
	}
}

func TestSkipInstruction(t *testing.T) {
	const frameAddr = 0x2000FF00
	cases := []struct {
		name string
		pc   uint32
		word uint32 // instruction word at pc&^3
		want uint32
	}{
		{"narrow low halfword", 0x08000420, 0x0000_6001, 0x08000422},  // str r1, [r0]
		{"narrow high halfword", 0x08000422, 0x6001_0000, 0x08000424}, // str r1, [r0]
		{"wide low halfword", 0x08000420, 0x1002_FBB0, 0x08000424},    // udiv r0, r0, r2
		{"wide high halfword", 0x08000422, 0xFBB0_0000, 0x08000426},
		{"wide 0b11101 prefix", 0x08000420, 0x0000_E92D, 0x08000424}, // push.w
		{"thumb bit ignored", 0x08000421, 0x0000_6001, 0x08000422},
		{"erased flash", 0x08000420, 0, 0x08000422},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bus := mmio.NewSimBus()
			bus.Poke(tc.pc&^3, tc.word)
			frame := capture.Frame{Address: frameAddr, ReturnAddress: tc.pc}

			next, err := SkipInstruction(bus, frame)
			if err != nil {
				t.Fatalf("SkipInstruction: %v", err)
			}
			if next != tc.want {
				t.Fatalf("next = 0x%08X, want 0x%08X", next, tc.want)
			}
			if got := bus.Peek(frameAddr + capture.ReturnAddressOffset); got != tc.want {
				t.Fatalf("stacked return address = 0x%08X, want 0x%08X", got, tc.want)
			}
		})
	}
}

func TestSkipInstructionUnreadable(t *testing.T) {
	bus := mmio.NewSimBus()
	bus.AddFaultRegion(mmio.Region{Name: "hole", Origin: 0x60000000, Length: 0x1000})
	a := Actuator{Bus: bus}
	frame := capture.Frame{Address: 0x2000FF00, ReturnAddress: 0x60000010}

	if err := a.Apply(Continue, fault.Registers{CFSR: fault.IBUSERR}, frame); err == nil {
		t.Fatalf("Continue past an unreadable instruction succeeded")
	}
}
