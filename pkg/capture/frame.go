// Package capture locates and reads the register frame the processor stacks
// on exception entry.
//
// On ARMv7-M the hardware pushes r0-r3, r12, lr, the return address and xPSR
// onto whichever stack was active when the fault was taken, then loads LR with
// an EXC_RETURN value whose bit 2 says which one that was. The trampoline
// that runs first in the vector (two instructions on the real part) only has
// to hand LR, MSP and PSP to Capture; everything else happens here.
package capture

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

var (
	// ErrBadExcReturn is returned when LR does not hold an EXC_RETURN value.
	ErrBadExcReturn = errors.New("capture: LR is not an EXC_RETURN value")
	// ErrFrameOutOfRange is returned when the stacked frame would have to be
	// read from outside known RAM. The stack pointer itself may be the
	// casualty of the fault, so it is never followed blindly.
	ErrFrameOutOfRange = errors.New("capture: stacked frame outside RAM")
)

const (
	// FrameWords is the number of words in a basic exception frame.
	FrameWords = 8
	// BasicFrameSize is the byte size of a basic exception frame.
	BasicFrameSize = FrameWords * mmio.WordSize
	// ExtendedFrameSize adds s0-s15, FPSCR and a reserved word.
	ExtendedFrameSize = BasicFrameSize + 18*mmio.WordSize
	// ReturnAddressOffset locates the stacked return address in a frame.
	ReturnAddressOffset = 6 * mmio.WordSize

	xpsrStackAlign = 1 << 9
)

// ExcReturn is the value the processor loads into LR on exception entry.
type ExcReturn uint32

// Valid reports whether the value has the EXC_RETURN prefix.
func (e ExcReturn) Valid() bool {
	return uint32(e)>>24 == 0xFF
}

// UsesProcessStack reports whether the frame was pushed to PSP.
func (e ExcReturn) UsesProcessStack() bool {
	return e&(1<<2) != 0
}

// ThreadMode reports whether the exception was taken from Thread mode.
func (e ExcReturn) ThreadMode() bool {
	return e&(1<<3) != 0
}

// ExtendedFrame reports whether floating-point state was stacked as well.
func (e ExcReturn) ExtendedFrame() bool {
	return e&(1<<4) == 0
}

// Stack identifies one of the two banked stack pointers.
type Stack uint8

const (
	StackMain Stack = iota
	StackProcess
)

func (s Stack) String() string {
	if s == StackProcess {
		return "PSP"
	}
	return "MSP"
}

// Entry is the processor state visible to the trampoline at trap entry.
type Entry struct {
	ExcReturn ExcReturn
	MSP       uint32
	PSP       uint32
}

// Stack returns the stack the frame was pushed to and its current pointer.
func (e Entry) Stack() (Stack, uint32) {
	if e.ExcReturn.UsesProcessStack() {
		return StackProcess, e.PSP
	}
	return StackMain, e.MSP
}

// Frame is the register snapshot stacked by hardware at trap entry.
type Frame struct {
	R0            uint32
	R1            uint32
	R2            uint32
	R3            uint32
	R12           uint32
	LR            uint32
	ReturnAddress uint32
	XPSR          uint32

	Stack    Stack
	Address  uint32 // where the frame starts
	Extended bool   // FP context follows the basic frame
}

// Size is the number of bytes the hardware pushed for this frame.
func (f Frame) Size() uint32 {
	if f.Extended {
		return ExtendedFrameSize
	}
	return BasicFrameSize
}

// StackPointer returns the value SP had just before the exception was taken.
func (f Frame) StackPointer() uint32 {
	sp := f.Address + f.Size()
	if f.XPSR&xpsrStackAlign != 0 {
		sp += 4
	}
	return sp
}

func (f Frame) String() string {
	return fmt.Sprintf("r0=0x%08X r1=0x%08X r2=0x%08X r3=0x%08X r12=0x%08X lr=0x%08X pc=0x%08X xpsr=0x%08X (%s@0x%08X)",
		f.R0, f.R1, f.R2, f.R3, f.R12, f.LR, f.ReturnAddress, f.XPSR, f.Stack, f.Address)
}
