// Package target simulates enough of a Cortex-M4 microcontroller to drive the
// fault pipeline end to end: an STM32L4-style memory map, the System Control
// Block fault registers, exception stacking and system reset.
//
// Instruction execution is not emulated. The fault generators in this package
// model the handful of instructions that go wrong and raise the same status
// bits the core would.
package target

import (
	"math/rand/v2"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

// Identification values of an STM32L476 (Cortex-M4 r0p1).
const (
	CPUIDValue  = 0x410FC241
	DevIDValue  = 0x10076415
	ccrResetVal = 0x00000200 // STKALIGN
	xpsrThumb   = 1 << 24
)

// EXC_RETURN values for a basic frame.
const (
	ExcReturnHandler    = 0xFFFFFFF1
	ExcReturnThreadMain = 0xFFFFFFF9
	ExcReturnThreadProc = 0xFFFFFFFD
)

// Target is a simulated single-core part. It is not safe for concurrent use.
type Target struct {
	bus    *mmio.SimBus
	layout Layout

	handler func(capture.Entry)

	msp, psp  uint32
	processSP bool // CONTROL.SPSEL
	depth     int  // active exceptions

	nullGuard    uint32
	executeNever []mmio.Region

	halted   bool
	lockedUp bool
	resets   int
	rng      *rand.Rand
}

// New returns a target that has just come out of power-on reset with layout.
func New(layout Layout) *Target {
	t := &Target{
		bus:    mmio.NewSimBus(),
		layout: layout,
		rng:    rand.New(rand.NewPCG(0x5EED, 0xC0FFEE)),
	}
	t.installSCB()
	t.PowerCycle()
	return t
}

// Bus returns the target's address space as seen by code running on it.
func (t *Target) Bus() mmio.Bus { return t.bus }

// Sim exposes the underlying simulated bus for inspection.
func (t *Target) Sim() *mmio.SimBus { return t.bus }

// Layout returns the firmware section layout.
func (t *Target) Layout() Layout { return t.layout }

// SetFaultHandler installs the fault vector. The same handler serves
// HardFault, MemManage, BusFault and UsageFault.
func (t *Target) SetFaultHandler(h func(capture.Entry)) {
	t.handler = h
}

// AttachDebugger sets or clears DHCSR.C_DEBUGEN.
func (t *Target) AttachDebugger(attached bool) {
	v := t.bus.Peek(mmio.DHCSR) &^ mmio.DHCSRDebugEn
	if attached {
		v |= mmio.DHCSRDebugEn
	}
	t.bus.Poke(mmio.DHCSR, v)
}

// UseProcessStack selects PSP (CONTROL.SPSEL) for thread mode code.
func (t *Target) UseProcessStack(on bool) {
	t.processSP = on
}

// SetStackPointer overrides the current main or process stack pointer.
func (t *Target) SetStackPointer(s capture.Stack, sp uint32) {
	if s == capture.StackProcess {
		t.psp = sp
		return
	}
	t.msp = sp
}

// StackPointers returns MSP and PSP.
func (t *Target) StackPointers() (msp, psp uint32) {
	return t.msp, t.psp
}

// EnableNullGuard programs an MPU region making [0, size) inaccessible. The
// MPU configuration does not survive reset.
func (t *Target) EnableNullGuard(size uint32) {
	t.nullGuard = size
}

// SetExecuteNever marks r as XN in the MPU.
func (t *Target) SetExecuteNever(r mmio.Region) {
	t.executeNever = append(t.executeNever, r)
}

// SetUnalignedTrap sets or clears CCR.UNALIGN_TRP.
func (t *Target) SetUnalignedTrap(on bool) { t.setCCR(mmio.CCRUnalignTrap, on) }

// SetDivideByZeroTrap sets or clears CCR.DIV_0_TRP.
func (t *Target) SetDivideByZeroTrap(on bool) { t.setCCR(mmio.CCRDiv0Trap, on) }

// EnableFaultHandlers sets the SHCSR enables for MemManage, BusFault and
// UsageFault. While they are clear every fault escalates to HardFault.
func (t *Target) EnableFaultHandlers(on bool) {
	v := t.bus.Peek(mmio.SHCSR)
	mask := uint32(mmio.SHCSRMemFaultEna | mmio.SHCSRBusFaultEna | mmio.SHCSRUsageFaultEna)
	if on {
		v |= mask
	} else {
		v &^= mask
	}
	t.bus.Poke(mmio.SHCSR, v)
}

func (t *Target) setCCR(bit uint32, on bool) {
	v := t.bus.Peek(mmio.CCR)
	if on {
		v |= bit
	} else {
		v &^= bit
	}
	t.bus.Poke(mmio.CCR, v)
}

func (t *Target) ccr(bit uint32) bool {
	return t.bus.Peek(mmio.CCR)&bit != 0
}

// Breakpoint executes BKPT #0. With a debugger attached the core halts;
// without one the breakpoint cannot be serviced and the core locks up.
func (t *Target) Breakpoint() {
	if t.bus.Peek(mmio.DHCSR)&mmio.DHCSRDebugEn != 0 {
		t.halted = true
		t.bus.Poke(mmio.DHCSR, t.bus.Peek(mmio.DHCSR)|mmio.DHCSRHalt)
		return
	}
	t.lockedUp = true
}

// Resume lets a halted core run again, as a debugger "continue" would.
func (t *Target) Resume() {
	t.halted = false
	t.bus.Poke(mmio.DHCSR, t.bus.Peek(mmio.DHCSR)&^mmio.DHCSRHalt)
}

// Halted reports whether the core stopped at a breakpoint.
func (t *Target) Halted() bool { return t.halted }

// LockedUp reports whether the core hit an unrecoverable state.
func (t *Target) LockedUp() bool { return t.lockedUp }

// Resets counts system resets since power on.
func (t *Target) Resets() int { return t.resets }

// Reset performs a warm system reset: the startup code zeroes .data and
// .bss, SCB and MPU state return to their reset values, and the stack
// pointers are reloaded. Memory outside the zeroed sections keeps its
// contents. .data initial values are not modelled and read as zero.
func (t *Target) Reset() {
	zero := func(uint32) uint32 { return 0 }
	t.bus.Fill(t.layout.Data, zero)
	t.bus.Fill(t.layout.BSS, zero)

	for _, r := range []uint32{mmio.ICSR, mmio.VTOR, mmio.SCR, mmio.SHCSR,
		mmio.CFSR, mmio.HFSR, mmio.DFSR, mmio.MMFAR, mmio.BFAR, mmio.AFSR} {
		t.bus.Poke(r, 0)
	}
	t.bus.Poke(mmio.CCR, ccrResetVal)
	t.bus.Poke(mmio.AIRCR, mmio.AIRCRVectKeyStat)
	t.bus.Poke(mmio.CPUID, CPUIDValue)
	t.bus.Poke(mmio.DBGMCUIDCode, DevIDValue)

	t.nullGuard = 0
	t.executeNever = nil
	t.msp = t.layout.MainTop
	t.psp = t.layout.ThreadSP
	t.processSP = false
	t.depth = 0
	t.halted = false
	t.lockedUp = false
	t.resets++
}

// PowerCycle removes power: all RAM comes back as garbage, debug state is
// lost, then the part goes through reset.
func (t *Target) PowerCycle() {
	garbage := func(uint32) uint32 { return t.rng.Uint32() }
	t.bus.Fill(SRAM1, garbage)
	t.bus.Fill(SRAM2, garbage)
	t.bus.Poke(mmio.DHCSR, 0)
	t.Reset()
	t.resets = 0
}

// Identify reads the core and device identification registers.
func (t *Target) Identify() (idcode.Target, error) {
	return idcode.Identify(t.bus)
}

func (t *Target) installSCB() {
	w1c := func(addr, v uint32) error {
		t.bus.Poke(addr, t.bus.Peek(addr)&^v)
		return nil
	}
	t.bus.OnWrite(mmio.CFSR, w1c)
	t.bus.OnWrite(mmio.HFSR, w1c)
	t.bus.OnWrite(mmio.DFSR, w1c)

	t.bus.OnWrite(mmio.AIRCR, func(addr, v uint32) error {
		if v&mmio.AIRCRVectKeyMask != mmio.AIRCRVectKey {
			return nil // writes without the key are ignored
		}
		if v&mmio.AIRCRSysResetReq != 0 {
			t.Reset()
		}
		return nil
	})

	// Read-only identification registers.
	ignore := func(uint32, uint32) error { return nil }
	t.bus.OnWrite(mmio.CPUID, ignore)
	t.bus.OnWrite(mmio.DBGMCUIDCode, ignore)
}
