package policy

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceFault/pkg/capture"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/fault"
	"github.com/OpenTraceLab/OpenTraceFault/pkg/mmio"
)

// Actuator carries out a decision on the target.
type Actuator struct {
	Bus mmio.Bus

	// Breakpoint stops the core for the debugger (BKPT #0 on target). It
	// returns if the debugger resumes execution.
	Breakpoint func()
}

// Apply executes d. regs are the fault registers as decoded and frame is the
// captured exception frame; Continue clears exactly those bits and moves the
// stacked return address past the faulting instruction.
//
// On hardware a Reset never returns. A simulated target resets synchronously
// inside the AIRCR write and Apply returns nil.
func (a Actuator) Apply(d Decision, regs fault.Registers, frame capture.Frame) error {
	switch d {
	case Halt:
		if a.Breakpoint != nil {
			a.Breakpoint()
		}
		return nil
	case Reset:
		return RequestReset(a.Bus)
	case Continue:
		if _, err := SkipInstruction(a.Bus, frame); err != nil {
			return err
		}
		return fault.Clear(a.Bus, regs)
	}
	return fmt.Errorf("policy: unknown decision %s", d)
}

// RequestReset asks the core for a system reset through AIRCR.
func RequestReset(bus mmio.Bus) error {
	if err := bus.WriteWord(mmio.AIRCR, mmio.AIRCRVectKey|mmio.AIRCRSysResetReq); err != nil {
		return fmt.Errorf("policy: request reset: %w", err)
	}
	return nil
}

// SkipInstruction rewrites the return address stacked in frame to point past
// the instruction it addresses and returns the new value.
func SkipInstruction(bus mmio.Bus, frame capture.Frame) (uint32, error) {
	pc := frame.ReturnAddress &^ 1
	word, err := bus.ReadWord(pc &^ 3)
	if err != nil {
		return 0, fmt.Errorf("policy: read instruction at 0x%08X: %w", pc, err)
	}
	next := pc + InstructionLength(uint16(word>>((pc&2)*8)))
	if err := bus.WriteWord(frame.Address+capture.ReturnAddressOffset, next); err != nil {
		return 0, fmt.Errorf("policy: write return address: %w", err)
	}
	return next, nil
}

// InstructionLength returns the size in bytes of the Thumb instruction whose
// first halfword is hw.
func InstructionLength(hw uint16) uint32 {
	switch hw >> 11 {
	case 0b11101, 0b11110, 0b11111:
		return 4
	}
	return 2
}
