package target

import (
	"github.com/OpenTraceLab/OpenTraceFault/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

// Code addresses of the simulated faulting instructions.
const (
	PCDivide      = 0x08000210
	PCStore       = 0x08000240
	PCLoad        = 0x08000270
	PCExecuteData = 0x080002A0
	PCCallNull    = 0x080002D0
	LRCaller      = 0x08000401
)

type exception uint8

const (
	excMemManage exception = iota
	excBusFault
	excUsageFault
)

var handlerEnable = map[exception]uint32{
	excMemManage:  mmio.SHCSRMemFaultEna,
	excBusFault:   mmio.SHCSRBusFaultEna,
	excUsageFault: mmio.SHCSRUsageFaultEna,
}

// site is the register context of the faulting instruction.
type site struct {
	r0, r1, r2, r3, r12 uint32
	pc                  uint32
}

// trap describes the status an access or instruction raises.
type trap struct {
	exc  exception
	cfsr uint32
	far  uint32
}

// DivideByZero executes an unsigned divide. A zero divisor traps only while
// CCR.DIV_0_TRP is set; otherwise the core returns zero.
func (t *Target) DivideByZero(a, b uint32) (uint32, bool) {
	if b != 0 {
		return a / b, false
	}
	if !t.ccr(mmio.CCRDiv0Trap) {
		return 0, false
	}
	t.raise(trap{exc: excUsageFault, cfsr: fault.DIVBYZERO}, site{r0: a, r1: b, pc: PCDivide})
	return 0, true
}

// Store32 writes a word through a pointer, the way *ptr = value compiles.
// Writes to flash are dropped by the bus without a fault. Writes to unmapped
// memory are buffered and fault imprecisely.
func (t *Target) Store32(addr, value uint32) (uint32, bool) {
	if tr, ok := t.checkData(addr, true); !ok {
		t.raise(tr, site{r0: addr, r1: value, pc: PCStore})
		return 0, true
	}
	if readOnly(addr) {
		return value, false
	}
	if addr%mmio.WordSize == 0 {
		if err := t.bus.WriteWord(addr, value); err != nil {
			t.raise(trap{exc: excBusFault, cfsr: fault.PRECISERR | fault.BFARVALID, far: addr}, site{r0: addr, r1: value, pc: PCStore})
			return 0, true
		}
		return value, false
	}
	for i := uint32(0); i < mmio.WordSize; i++ {
		t.pokeByte(addr+i, byte(value>>(8*i)))
	}
	return value, false
}

// Load32 reads a word through a pointer. With CCR.UNALIGN_TRP clear an
// unaligned load completes and assembles the bytes little-endian.
func (t *Target) Load32(addr uint32) (uint32, bool) {
	if tr, ok := t.checkData(addr, false); !ok {
		t.raise(tr, site{r0: addr, pc: PCLoad})
		return 0, true
	}
	if addr%mmio.WordSize == 0 {
		v, err := t.bus.ReadWord(resolve(addr))
		if err != nil {
			t.raise(trap{exc: excBusFault, cfsr: fault.PRECISERR | fault.BFARVALID, far: addr}, site{r0: addr, pc: PCLoad})
			return 0, true
		}
		return v, false
	}
	var v uint32
	for i := uint32(0); i < mmio.WordSize; i++ {
		v |= uint32(t.peekByte(addr+i)) << (8 * i)
	}
	return v, false
}

// ExecuteData stores insn in a stack buffer and branches to it, as calling a
// function pointer aimed at data does. The fetch faults if the stack is
// execute-never; otherwise the data decodes as an undefined instruction.
func (t *Target) ExecuteData(insn uint32) (uint32, bool) {
	buf := t.currentSP() - 8
	t.bus.Poke(buf, insn)
	if tr, ok := t.checkFetch(buf); !ok {
		t.raise(tr, site{r0: insn, pc: buf})
		return 0, true
	}
	t.raise(trap{exc: excUsageFault, cfsr: fault.UNDEFINSTR}, site{r0: insn, pc: buf})
	return 0, true
}

// ExecuteAddress calls the code at addr. The default memory map makes the
// system region execute-never, and nothing answers at unmapped addresses.
// RAM holding data decodes as undefined; flash is assumed to hold code and
// the call returns normally.
func (t *Target) ExecuteAddress(addr uint32) (uint32, bool) {
	pc := addr &^ 1
	if tr, ok := t.checkFetch(pc); !ok {
		t.raise(tr, site{r0: addr, pc: pc})
		return 0, true
	}
	if writable(pc) {
		t.raise(trap{exc: excUsageFault, cfsr: fault.UNDEFINSTR}, site{r0: addr, pc: pc})
		return 0, true
	}
	return 0, false
}

// CallNull calls through a function pointer that was never set. The branch
// clears the Thumb state bit, so the core raises INVSTATE on the first
// instruction unless the MPU rejects the fetch from address zero first.
func (t *Target) CallNull() (uint32, bool) {
	if t.nullGuard > 0 {
		t.raise(trap{exc: excMemManage, cfsr: fault.IACCVIOL}, site{pc: 0})
		return 0, true
	}
	t.raise(trap{exc: excUsageFault, cfsr: fault.INVSTATE}, site{pc: 0})
	return 0, true
}

func (t *Target) checkData(addr uint32, write bool) (trap, bool) {
	unaligned := addr%mmio.WordSize != 0
	switch {
	case unaligned && t.ccr(mmio.CCRUnalignTrap):
		return trap{exc: excUsageFault, cfsr: fault.UNALIGNED}, false
	case unaligned && mmio.SCB.Contains(addr, 1):
		return trap{exc: excBusFault, cfsr: fault.PRECISERR | fault.BFARVALID, far: addr}, false
	case t.nullGuard > 0 && addr < t.nullGuard:
		return trap{exc: excMemManage, cfsr: fault.DACCVIOL | fault.MMARVALID, far: addr}, false
	case !mapped(addr) || !mapped(addr+mmio.WordSize-1):
		if write {
			return trap{exc: excBusFault, cfsr: fault.IMPRECISERR}, false
		}
		return trap{exc: excBusFault, cfsr: fault.PRECISERR | fault.BFARVALID, far: addr}, false
	}
	return trap{}, true
}

func (t *Target) checkFetch(pc uint32) (trap, bool) {
	if t.nullGuard > 0 && pc < t.nullGuard {
		return trap{exc: excMemManage, cfsr: fault.IACCVIOL}, false
	}
	if SystemSpace.Contains(pc, 2) {
		return trap{exc: excMemManage, cfsr: fault.IACCVIOL}, false
	}
	for _, r := range t.executeNever {
		if r.Contains(pc, 2) {
			return trap{exc: excMemManage, cfsr: fault.IACCVIOL}, false
		}
	}
	if !mapped(pc) {
		return trap{exc: excBusFault, cfsr: fault.IBUSERR}, false
	}
	return trap{}, true
}

// raise takes the exception: status bits, escalation, stacking, then the
// vector. It returns once the handler returns or the part has been reset.
func (t *Target) raise(tr trap, s site) {
	cfsr := tr.cfsr
	switch {
	case cfsr&fault.MMARVALID != 0:
		t.bus.Poke(mmio.MMFAR, tr.far)
	case cfsr&fault.BFARVALID != 0:
		t.bus.Poke(mmio.BFAR, tr.far)
	}

	stack := capture.StackMain
	if t.depth == 0 && t.processSP {
		stack = capture.StackProcess
	}
	saved := t.currentSPFor(stack)
	sp := saved - capture.BasicFrameSize
	xpsr := uint32(xpsrThumb)
	if sp%8 != 0 {
		sp -= 4
		xpsr |= 1 << 9
	}
	if !writable(sp) || !writable(sp+capture.BasicFrameSize-1) {
		cfsr |= fault.STKERR
	} else {
		words := [capture.FrameWords]uint32{s.r0, s.r1, s.r2, s.r3, s.r12, LRCaller, s.pc, xpsr}
		for i, w := range words {
			t.bus.Poke(sp+uint32(i*mmio.WordSize), w)
		}
	}

	t.bus.Poke(mmio.CFSR, t.bus.Peek(mmio.CFSR)|cfsr)
	if t.depth > 0 || t.bus.Peek(mmio.SHCSR)&handlerEnable[tr.exc] == 0 {
		t.bus.Poke(mmio.HFSR, t.bus.Peek(mmio.HFSR)|fault.FORCED)
	}

	excReturn := uint32(ExcReturnThreadMain)
	switch {
	case t.depth > 0:
		excReturn = ExcReturnHandler
	case stack == capture.StackProcess:
		excReturn = ExcReturnThreadProc
	}
	t.SetStackPointer(stack, sp)

	if t.handler == nil {
		// Default_Handler spins forever.
		t.lockedUp = true
		return
	}

	resets := t.resets
	t.depth++
	t.handler(capture.Entry{ExcReturn: capture.ExcReturn(excReturn), MSP: t.msp, PSP: t.psp})
	if t.resets != resets {
		return
	}
	t.depth--
	t.SetStackPointer(stack, saved)
}

func (t *Target) currentSP() uint32 {
	if t.depth == 0 && t.processSP {
		return t.psp
	}
	return t.msp
}

func (t *Target) currentSPFor(s capture.Stack) uint32 {
	if s == capture.StackProcess {
		return t.psp
	}
	return t.msp
}

// resolve maps the boot alias onto flash.
func resolve(addr uint32) uint32 {
	if BootAlias.Contains(addr, 1) {
		return Flash.Origin + addr
	}
	return addr
}

func (t *Target) peekByte(addr uint32) byte {
	addr = resolve(addr)
	return byte(t.bus.Peek(addr) >> (8 * (addr % 4)))
}

func (t *Target) pokeByte(addr uint32, b byte) {
	shift := 8 * (addr % 4)
	w := t.bus.Peek(addr) &^ (0xFF << shift)
	t.bus.Poke(addr, w|uint32(b)<<shift)
}
